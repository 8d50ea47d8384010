package folder

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"assessor/pkg/cursor"
	"assessor/pkg/domain"
	dErrors "assessor/pkg/domain-errors"
	"assessor/pkg/platform/sentinel"
	"assessor/pkg/requestcontext"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Service is the entry point for folder operations. Assignment of
// assessments into folders lives on the assessment service, which owns the
// assessment row the membership is stored on.
type Service struct {
	store Store
}

// NewService constructs the folder service.
func NewService(st Store) *Service {
	return &Service{store: st}
}

// Create registers a new folder with a fresh identity. Names are unique per
// organization.
func (s *Service) Create(ctx context.Context, org domain.OrgDomain, name string) (*Folder, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "folder name cannot be empty")
	}
	f := &Folder{
		OrgDomain: org,
		ID:        domain.FolderID(uuid.NewString()),
		Name:      name,
		CreatedAt: requestcontext.Now(ctx),
	}
	if err := s.store.Create(ctx, f); err != nil {
		return nil, translateStoreErr(err, "create folder")
	}
	return f, nil
}

// Get returns one folder.
func (s *Service) Get(ctx context.Context, org domain.OrgDomain, id domain.FolderID) (*Folder, error) {
	f, err := s.store.Get(ctx, org, id)
	if err != nil {
		return nil, translateStoreErr(err, "get folder")
	}
	return f, nil
}

// PageRequest bounds one folder listing page.
type PageRequest struct {
	Limit  int
	Cursor string
}

// Page is one page of folders plus the continuation token.
type Page struct {
	Folders    []Folder
	NextCursor string
}

// List pages the organization's folders name-ascending.
func (s *Service) List(ctx context.Context, org domain.OrgDomain, p PageRequest) (*Page, error) {
	limit := clampLimit(p.Limit)
	pos, err := cursor.Decode(p.Cursor, cursor.ScopeFolders)
	if err != nil {
		return nil, err
	}

	rows, err := s.store.List(ctx, org, ListParams{Limit: limit + 1, AfterName: pos.Key})
	if err != nil {
		return nil, translateStoreErr(err, "list folders")
	}

	page := &Page{}
	if len(rows) > limit {
		rows = rows[:limit]
		page.NextCursor = cursor.Encode(cursor.Position{
			Scope: cursor.ScopeFolders,
			Key:   rows[len(rows)-1].Name,
		})
	}
	page.Folders = rows
	return page, nil
}

// Rename changes a folder's display name, keeping per-organization
// uniqueness.
func (s *Service) Rename(ctx context.Context, org domain.OrgDomain, id domain.FolderID, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return dErrors.New(dErrors.CodeBadRequest, "folder name cannot be empty")
	}
	if err := s.store.Rename(ctx, org, id, name); err != nil {
		return translateStoreErr(err, "rename folder")
	}
	return nil
}

// Delete removes the folder. Member assessments survive and lose only their
// folder reference.
func (s *Service) Delete(ctx context.Context, org domain.OrgDomain, id domain.FolderID) error {
	if err := s.store.Delete(ctx, org, id); err != nil {
		return translateStoreErr(err, "delete folder")
	}
	return nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultPageSize
	}
	if limit > maxPageSize {
		return maxPageSize
	}
	return limit
}

func translateStoreErr(err error, op string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, op)
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, op)
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, op)
	}
}
