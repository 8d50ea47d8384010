package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"assessor/internal/export/models"
	"assessor/pkg/domain"
	"assessor/pkg/platform/sentinel"
)

type assessmentKey struct {
	org domain.OrgDomain
	id  domain.AssessmentID
}

// InMemory mirrors the Postgres export store for unit tests.
type InMemory struct {
	mu      sync.RWMutex
	exports map[assessmentKey]map[domain.FileExportID]*models.FileExport
}

// NewInMemory creates an empty in-memory export store.
func NewInMemory() *InMemory {
	return &InMemory{exports: make(map[assessmentKey]map[domain.FileExportID]*models.FileExport)}
}

// Seed registers an assessment so export writes against it succeed.
func (s *InMemory) Seed(org domain.OrgDomain, id domain.AssessmentID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := assessmentKey{org, id}
	if s.exports[key] == nil {
		s.exports[key] = make(map[domain.FileExportID]*models.FileExport)
	}
}

func (s *InMemory) Create(_ context.Context, org domain.OrgDomain, e *models.FileExport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byID := s.exports[assessmentKey{org, e.AssessmentID}]
	if byID == nil {
		return fmt.Errorf("assessment %s: %w", e.AssessmentID, sentinel.ErrNotFound)
	}
	clone := *e
	byID[e.ID] = &clone
	return nil
}

func (s *InMemory) Get(_ context.Context, org domain.OrgDomain, id domain.AssessmentID, exportID domain.FileExportID) (*models.FileExport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, err := s.find(org, id, exportID)
	if err != nil {
		return nil, err
	}
	clone := *e
	return &clone, nil
}

func (s *InMemory) List(_ context.Context, org domain.OrgDomain, id domain.AssessmentID, p ListParams) ([]models.FileExport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byID := s.exports[assessmentKey{org, id}]
	if byID == nil {
		return nil, fmt.Errorf("assessment %s: %w", id, sentinel.ErrNotFound)
	}

	all := make([]models.FileExport, 0, len(byID))
	for _, e := range byID {
		all = append(all, *e)
	}
	// Newest first, id descending as the tiebreak, matching the SQL keyset.
	sort.Slice(all, func(i, j int) bool { return ListKey(&all[i]) > ListKey(&all[j]) })

	afterKey := ""
	if p.AfterCreatedAt != "" {
		afterKey = p.AfterCreatedAt + "|" + p.AfterID.String()
	}

	var out []models.FileExport
	for i := range all {
		if afterKey != "" && ListKey(&all[i]) >= afterKey {
			continue
		}
		out = append(out, all[i])
		if len(out) == p.Limit {
			break
		}
	}
	return out, nil
}

func (s *InMemory) UpdateStatus(_ context.Context, org domain.OrgDomain, id domain.AssessmentID, exportID domain.FileExportID, expected domain.ExportStatus, u models.StatusUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.find(org, id, exportID)
	if err != nil {
		return err
	}
	if e.Status != expected {
		return fmt.Errorf("export %s left status %s concurrently: %w", exportID, expected, sentinel.ErrInvalidState)
	}
	e.Apply(u)
	return nil
}

func (s *InMemory) find(org domain.OrgDomain, id domain.AssessmentID, exportID domain.FileExportID) (*models.FileExport, error) {
	byID := s.exports[assessmentKey{org, id}]
	if byID == nil {
		return nil, fmt.Errorf("assessment %s: %w", id, sentinel.ErrNotFound)
	}
	e := byID[exportID]
	if e == nil {
		return nil, fmt.Errorf("export %s: %w", exportID, sentinel.ErrNotFound)
	}
	return e, nil
}
