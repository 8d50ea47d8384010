// Package service owns the file export lifecycle: request rows, the status
// machine, and pre-signed artifact downloads.
package service

import (
	"context"
	"errors"

	"assessor/internal/audit"
	"assessor/internal/export/models"
	"assessor/internal/export/store"
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

// DownloadSigner issues pre-signed GET URLs for stored artifacts.
type DownloadSigner interface {
	SignDownload(ctx context.Context, objectKey string) (string, error)
}

// Service is the entry point for export lifecycle operations.
type Service struct {
	store    store.Store
	signer   DownloadSigner
	auditPub audit.Publisher
}

// Option configures optional service collaborators.
type Option func(*Service)

// WithAuditPublisher attaches the review-trail publisher.
func WithAuditPublisher(p audit.Publisher) Option {
	return func(s *Service) { s.auditPub = p }
}

// New constructs the export service.
func New(st store.Store, signer DownloadSigner, opts ...Option) *Service {
	s := &Service{store: st, signer: signer}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Request creates a fresh NOT_STARTED export row. Reruns never reset an
// existing row, so failed and completed attempts stay visible in the list.
func (s *Service) Request(ctx context.Context, org domain.OrgDomain, id domain.AssessmentID, versionName string) (*models.FileExport, error) {
	e, err := models.NewFileExport(id, versionName, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, org, e); err != nil {
		return nil, translateStoreErr(err, "request export")
	}
	s.emit(ctx, audit.ActionExportRequested, org, id, e.ID.String())
	return e, nil
}

// Get returns one export request.
func (s *Service) Get(ctx context.Context, org domain.OrgDomain, id domain.AssessmentID, exportID domain.FileExportID) (*models.FileExport, error) {
	e, err := s.store.Get(ctx, org, id, exportID)
	if err != nil {
		return nil, translateStoreErr(err, "get export")
	}
	return e, nil
}

// UpdateStatus applies a pipeline-reported transition after validating it
// against the status machine and its payload rules.
func (s *Service) UpdateStatus(ctx context.Context, org domain.OrgDomain, id domain.AssessmentID, exportID domain.FileExportID, u models.StatusUpdate) (*models.FileExport, error) {
	e, err := s.Get(ctx, org, id, exportID)
	if err != nil {
		return nil, err
	}
	if err := e.CanApply(u); err != nil {
		return nil, err
	}
	// The store write guards on the status the caller validated against, so a
	// concurrent transition that commits first surfaces here instead of being
	// overwritten from a stale snapshot.
	expected := e.Status
	e.Apply(u)
	if err := s.store.UpdateStatus(ctx, org, id, exportID, expected, u); err != nil {
		return nil, translateStoreErr(err, "update export status")
	}
	if u.Status == domain.ExportCompleted {
		s.emit(ctx, audit.ActionExportCompleted, org, id, exportID.String())
	}
	return e, nil
}

// ListParams bounds one export listing page.
type ListParams struct {
	Limit  int
	Cursor string
}

// Page is one page of export requests plus the continuation token.
type Page struct {
	Exports    []models.FileExport
	NextCursor string
}

// List pages an assessment's export history newest-first.
func (s *Service) List(ctx context.Context, org domain.OrgDomain, id domain.AssessmentID, p ListParams) (*Page, error) {
	limit := clampLimit(p.Limit)
	pos, err := cursor.Decode(p.Cursor, cursor.ScopeExports)
	if err != nil {
		return nil, err
	}
	params := store.ListParams{Limit: limit + 1}
	if pos.Key != "" {
		createdAt, afterID, err := store.ParseListKey(pos.Key)
		if err != nil {
			return nil, err
		}
		params.AfterCreatedAt = createdAt
		params.AfterID = afterID
	}

	rows, err := s.store.List(ctx, org, id, params)
	if err != nil {
		return nil, translateStoreErr(err, "list exports")
	}

	page := &Page{}
	if len(rows) > limit {
		rows = rows[:limit]
		page.NextCursor = cursor.Encode(cursor.Position{
			Scope: cursor.ScopeExports,
			Key:   store.ListKey(&rows[len(rows)-1]),
		})
	}
	page.Exports = rows
	return page, nil
}

// PresignDownload issues a time-limited download URL for a COMPLETED export.
// Requests against a non-terminal or errored export are rejected as
// IllegalTransition, not NotFound: the row exists, it just has no artifact.
func (s *Service) PresignDownload(ctx context.Context, org domain.OrgDomain, id domain.AssessmentID, exportID domain.FileExportID) (string, error) {
	e, err := s.Get(ctx, org, id, exportID)
	if err != nil {
		return "", err
	}
	if !e.Downloadable() {
		return "", dErrors.Newf(dErrors.CodeIllegalTransition,
			"export %s has no downloadable artifact while status is %s", exportID, e.Status)
	}
	url, err := s.signer.SignDownload(ctx, e.ObjectKey)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, "sign download")
	}
	return url, nil
}

func (s *Service) emit(ctx context.Context, action audit.Action, org domain.OrgDomain, id domain.AssessmentID, detail string) {
	if s.auditPub == nil {
		return
	}
	s.auditPub.Publish(ctx, audit.Event{
		Action:       action,
		Timestamp:    requestcontext.Now(ctx),
		OrgDomain:    org,
		AssessmentID: id,
		ActorID:      requestcontext.ActorID(ctx),
		RequestID:    requestcontext.RequestID(ctx),
		Detail:       detail,
	})
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
	case errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.Wrap(err, dErrors.CodeIllegalTransition, op)
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, op)
	}
}
