// Package models defines the file export artifact and its status machine
// helpers.
package models

import (
	"time"

	"assessor/pkg/domain"
	dErrors "assessor/pkg/domain-errors"
)

// FileExport is one PDF export request for an assessment. Requests are
// append-only history: a rerun creates a fresh row instead of resetting an
// old one, so the list view shows every attempt.
type FileExport struct {
	AssessmentID domain.AssessmentID `json:"assessmentId"`
	ID           domain.FileExportID `json:"fileExportId"`
	Type         domain.ExportType   `json:"type"`
	Status       domain.ExportStatus `json:"status"`
	Error        string              `json:"error,omitempty"`
	VersionName  string              `json:"versionName"`
	ObjectKey    string              `json:"objectKey,omitempty"`
	CreatedAt    time.Time           `json:"createdAt"`
}

// NewFileExport creates a NOT_STARTED export request.
func NewFileExport(id domain.AssessmentID, versionName string, now time.Time) (*FileExport, error) {
	if versionName == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "version name cannot be empty")
	}
	return &FileExport{
		AssessmentID: id,
		ID:           domain.NewFileExportID(),
		Type:         domain.ExportTypePDF,
		Status:       domain.ExportNotStarted,
		VersionName:  versionName,
		CreatedAt:    now,
	}, nil
}

// StatusUpdate carries one requested status transition with its payload.
// ObjectKey is mandatory for COMPLETED and Error for ERRORED; both are
// rejected elsewhere.
type StatusUpdate struct {
	Status    domain.ExportStatus
	ObjectKey string
	Error     string
}

// CanApply validates the transition and its payload against the current
// state.
func (e *FileExport) CanApply(u StatusUpdate) error {
	if !e.Status.CanTransitionTo(u.Status) {
		return dErrors.Newf(dErrors.CodeIllegalTransition,
			"export %s cannot move from %s to %s", e.ID, e.Status, u.Status)
	}
	switch u.Status {
	case domain.ExportCompleted:
		if u.ObjectKey == "" {
			return dErrors.New(dErrors.CodeBadRequest, "completed export requires an object key")
		}
	case domain.ExportErrored:
		if u.Error == "" {
			return dErrors.New(dErrors.CodeBadRequest, "errored export requires an error")
		}
	default:
		if u.ObjectKey != "" || u.Error != "" {
			return dErrors.New(dErrors.CodeBadRequest, "object key and error are only valid on terminal statuses")
		}
	}
	return nil
}

// Apply moves the machine. Callers must have validated with CanApply.
func (e *FileExport) Apply(u StatusUpdate) {
	e.Status = u.Status
	e.ObjectKey = u.ObjectKey
	e.Error = u.Error
}

// Downloadable reports whether a pre-signed download can be issued.
func (e *FileExport) Downloadable() bool {
	return e.Status == domain.ExportCompleted && e.ObjectKey != ""
}
