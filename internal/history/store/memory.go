package store

import (
	"context"
	"fmt"
	"sync"

	"assessor/internal/history/models"
	"assessor/pkg/domain"
	"assessor/pkg/platform/sentinel"
)

type ledgerKey struct {
	org domain.OrgDomain
	id  domain.AssessmentID
}

// InMemory mirrors the Postgres ledger for unit tests. The store mutex plays
// the role of the row lock: appends are serialized per store, which is
// stricter than per assessment but preserves the monotonicity guarantee.
type InMemory struct {
	mu      sync.Mutex
	ledgers map[ledgerKey][]models.AssessmentVersion
}

// NewInMemory creates an empty in-memory version ledger.
func NewInMemory() *InMemory {
	return &InMemory{ledgers: make(map[ledgerKey][]models.AssessmentVersion)}
}

// Seed registers an assessment so appends and listings against it succeed.
func (s *InMemory) Seed(org domain.OrgDomain, id domain.AssessmentID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := ledgerKey{org, id}
	if _, ok := s.ledgers[key]; !ok {
		s.ledgers[key] = nil
	}
}

func (s *InMemory) Append(_ context.Context, org domain.OrgDomain, v *models.AssessmentVersion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := ledgerKey{org, v.AssessmentID}
	ledger, ok := s.ledgers[key]
	if !ok {
		return fmt.Errorf("assessment %s: %w", v.AssessmentID, sentinel.ErrNotFound)
	}
	v.Version = 1 + len(ledger)
	s.ledgers[key] = append(ledger, *v)
	return nil
}

func (s *InMemory) List(_ context.Context, org domain.OrgDomain, id domain.AssessmentID, p ListParams) ([]models.AssessmentVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ledger, ok := s.ledgers[ledgerKey{org, id}]
	if !ok {
		return nil, fmt.Errorf("assessment %s: %w", id, sentinel.ErrNotFound)
	}
	var out []models.AssessmentVersion
	for i := len(ledger) - 1; i >= 0; i-- {
		v := ledger[i]
		if p.AfterVersion > 0 && v.Version >= p.AfterVersion {
			continue
		}
		out = append(out, v)
		if len(out) == p.Limit {
			break
		}
	}
	return out, nil
}
