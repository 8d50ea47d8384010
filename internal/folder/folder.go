// Package folder groups assessments into organization-scoped folders.
// Folders are tags: membership lives on the assessment row, and deleting a
// folder unassigns its members instead of deleting them.
package folder

import (
	"context"
	"time"

	"assessor/pkg/domain"
)

// Folder is one organization-scoped grouping of assessments.
type Folder struct {
	OrgDomain domain.OrgDomain `json:"organizationDomain"`
	ID        domain.FolderID  `json:"folderId"`
	Name      string           `json:"name"`
	CreatedAt time.Time        `json:"createdAt"`
}

// ListParams bounds one page of folders, name ascending. AfterName is the
// keyset continuation point.
type ListParams struct {
	Limit     int
	AfterName string
}

// Store is the persistence boundary for folders. Names are unique per
// organization; a duplicate surfaces as sentinel.ErrConflict.
type Store interface {
	Create(ctx context.Context, f *Folder) error
	Get(ctx context.Context, org domain.OrgDomain, id domain.FolderID) (*Folder, error)
	List(ctx context.Context, org domain.OrgDomain, p ListParams) ([]Folder, error)
	Rename(ctx context.Context, org domain.OrgDomain, id domain.FolderID, name string) error

	// Delete removes the folder and unassigns every member assessment.
	Delete(ctx context.Context, org domain.OrgDomain, id domain.FolderID) error
}
