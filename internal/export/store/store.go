// Package store persists file export requests. Rows are append-only aside
// from validated status updates.
package store

import (
	"context"
	"strings"

	"assessor/internal/export/models"
	"assessor/pkg/domain"
	dErrors "assessor/pkg/domain-errors"
)

// listKeyTimeFormat is fixed-width so continuation keys compare the same way
// the (created_at, file_export_id) keyset does in SQL.
const listKeyTimeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// ListKey derives the cursor continuation key for an export row.
func ListKey(e *models.FileExport) string {
	return e.CreatedAt.UTC().Format(listKeyTimeFormat) + "|" + e.ID.String()
}

// ParseListKey splits a continuation key back into its keyset parts.
func ParseListKey(key string) (createdAt string, id domain.FileExportID, err error) {
	ts, rest, ok := strings.Cut(key, "|")
	if !ok || ts == "" || rest == "" {
		return "", domain.FileExportID{}, dErrors.New(dErrors.CodeInvalidCursor, "cursor key does not match this listing")
	}
	exportID, err := domain.ParseFileExportID(rest)
	if err != nil {
		return "", domain.FileExportID{}, dErrors.New(dErrors.CodeInvalidCursor, "cursor key does not match this listing")
	}
	return ts, exportID, nil
}

// ListParams bounds one page of exports, newest-first. The keyset
// continuation point is (AfterCreatedAt, AfterID); zero values start from the
// latest.
type ListParams struct {
	Limit          int
	AfterCreatedAt string
	AfterID        domain.FileExportID
}

// Store is the persistence boundary of export requests.
type Store interface {
	Create(ctx context.Context, org domain.OrgDomain, e *models.FileExport) error
	Get(ctx context.Context, org domain.OrgDomain, id domain.AssessmentID, exportID domain.FileExportID) (*models.FileExport, error)
	List(ctx context.Context, org domain.OrgDomain, id domain.AssessmentID, p ListParams) ([]models.FileExport, error)

	// UpdateStatus persists a transition already validated by the model, but
	// only if the row still holds the status the caller validated against; a
	// lost race surfaces as sentinel.ErrInvalidState so a concurrent update
	// can never move the machine out of a terminal status.
	UpdateStatus(ctx context.Context, org domain.OrgDomain, id domain.AssessmentID, exportID domain.FileExportID, expected domain.ExportStatus, u models.StatusUpdate) error
}
