// Package store persists findings, their comments, and the association edge
// set linking findings to best practices. Tenancy is enforced here: every
// statement is scoped through the owning assessments row.
package store

import (
	"context"

	"assessor/internal/finding/models"
	"assessor/pkg/domain"
)

// ListParams bounds one page of findings for a best practice. AfterID is the
// keyset continuation point; ordering is always finding id ascending so that
// continuation never skips or repeats.
type ListParams struct {
	Limit      int
	AfterID    domain.FindingID
	SearchTerm string
	ShowHidden bool
}

// Store is the persistence boundary of the association graph.
type Store interface {
	// BulkUpsert loads a scan run's findings and association edges
	// idempotently: replaying the same run must not duplicate anything.
	// Existing reviewer state (hidden flag, comments) survives the upsert.
	BulkUpsert(ctx context.Context, org domain.OrgDomain, id domain.AssessmentID, findings []models.Finding, edges []models.Association) error

	Get(ctx context.Context, org domain.OrgDomain, id domain.AssessmentID, findingID domain.FindingID) (*models.Finding, error)
	ListForBestPractice(ctx context.Context, org domain.OrgDomain, id domain.AssessmentID, key domain.BestPracticeKey, p ListParams) ([]models.Finding, error)
	Delete(ctx context.Context, org domain.OrgDomain, id domain.AssessmentID, findingID domain.FindingID) error

	SetHidden(ctx context.Context, org domain.OrgDomain, id domain.AssessmentID, findingID domain.FindingID, hidden bool) error

	AddComment(ctx context.Context, org domain.OrgDomain, id domain.AssessmentID, findingID domain.FindingID, c models.Comment) error
	UpdateComment(ctx context.Context, org domain.OrgDomain, id domain.AssessmentID, findingID domain.FindingID, commentID domain.CommentID, text string) error
	DeleteComment(ctx context.Context, org domain.OrgDomain, id domain.AssessmentID, findingID domain.FindingID, commentID domain.CommentID) error

	// CountPerBestPractice excludes hidden findings; it feeds the
	// informational findingAmount and never mutates review state.
	CountPerBestPractice(ctx context.Context, org domain.OrgDomain, id domain.AssessmentID) (map[domain.BestPracticeKey]int, error)
}
