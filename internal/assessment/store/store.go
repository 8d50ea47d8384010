// Package store persists the assessment content aggregate: the
// assessment → pillar → question → best-practice tree and its reviewer flags.
//
// Tenancy is enforced here, not in calling code: every method takes the
// organization domain and every statement is scoped by it, so a bug in an
// adapter cannot leak rows across organizations. Child tables do not carry
// the organization domain; child statements join through the assessments row.
package store

import (
	"context"
	"strings"

	"assessor/internal/assessment/models"
	"assessor/pkg/domain"
	dErrors "assessor/pkg/domain-errors"
)

// listKeyTimeFormat is fixed-width so continuation keys compare the same way
// the (created_at, assessment_id) keyset does in SQL.
const listKeyTimeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// ListKey derives the cursor continuation key for an assessment row.
func ListKey(a *models.Assessment) string {
	return a.CreatedAt.UTC().Format(listKeyTimeFormat) + "|" + a.ID.String()
}

// ParseListKey splits a continuation key back into its keyset parts.
func ParseListKey(key string) (createdAt string, id domain.AssessmentID, err error) {
	ts, rest, ok := strings.Cut(key, "|")
	if !ok || ts == "" || rest == "" {
		return "", "", dErrors.New(dErrors.CodeInvalidCursor, "cursor key does not match this listing")
	}
	return ts, domain.AssessmentID(rest), nil
}

// ListParams bounds one page of an assessment listing. AfterCreatedAt and
// AfterID are the keyset continuation point (zero values mean first page).
type ListParams struct {
	Limit          int
	AfterCreatedAt string
	AfterID        domain.AssessmentID
	Folder         *domain.FolderID
}

// Store is the persistence boundary for the content aggregate. Postgres is
// the production implementation; InMemory mirrors it for unit tests.
type Store interface {
	Create(ctx context.Context, a *models.Assessment) error
	Get(ctx context.Context, org domain.OrgDomain, id domain.AssessmentID) (*models.Assessment, error)
	// GetHeader loads the assessment row without its tree.
	GetHeader(ctx context.Context, org domain.OrgDomain, id domain.AssessmentID) (*models.Assessment, error)
	List(ctx context.Context, org domain.OrgDomain, p ListParams) ([]models.Assessment, error)
	Delete(ctx context.Context, org domain.OrgDomain, id domain.AssessmentID) error

	SetPillarDisabled(ctx context.Context, org domain.OrgDomain, id domain.AssessmentID, pillar domain.PillarID, disabled bool) error
	SetQuestionFlags(ctx context.Context, org domain.OrgDomain, id domain.AssessmentID, pillar domain.PillarID, question domain.QuestionID, flags models.QuestionFlags) error
	SetBestPracticeChecked(ctx context.Context, org domain.OrgDomain, id domain.AssessmentID, pillar domain.PillarID, question domain.QuestionID, bp domain.BestPracticeID, checked bool) error

	// UpdateStep moves the step machine only if the row still holds the step
	// the caller validated against; a lost race surfaces as
	// sentinel.ErrInvalidState so a concurrent transition can never escape a
	// terminal step.
	UpdateStep(ctx context.Context, org domain.OrgDomain, id domain.AssessmentID, from, to domain.AssessmentStep, stepErr *models.StepError) error
	SetExportRegion(ctx context.Context, org domain.OrgDomain, id domain.AssessmentID, region string) error
	SetFolder(ctx context.Context, org domain.OrgDomain, id domain.AssessmentID, folder *domain.FolderID) error
}
