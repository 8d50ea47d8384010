// Package store persists the append-only version ledger. Milestones are not
// stored here: they live in the external review tool and are fetched
// read-through by the service.
package store

import (
	"context"

	"assessor/internal/history/models"
	"assessor/pkg/domain"
)

// ListParams bounds one page of versions, newest-first. AfterVersion is the
// keyset continuation point; zero means start from the latest.
type ListParams struct {
	Limit        int
	AfterVersion int
}

// Store is the persistence boundary of the version ledger.
type Store interface {
	// Append assigns v.Version = 1+max(existing) and writes the entry,
	// serialized per assessment so concurrent appends never produce gaps
	// or duplicates. A detected duplicate surfaces as sentinel.ErrConflict.
	Append(ctx context.Context, org domain.OrgDomain, v *models.AssessmentVersion) error

	List(ctx context.Context, org domain.OrgDomain, id domain.AssessmentID, p ListParams) ([]models.AssessmentVersion, error)
}
