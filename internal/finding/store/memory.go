package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"assessor/internal/finding/models"
	"assessor/pkg/domain"
	"assessor/pkg/platform/sentinel"
)

type assessmentKey struct {
	org domain.OrgDomain
	id  domain.AssessmentID
}

type edgeKey struct {
	finding domain.FindingID
	bp      domain.BestPracticeKey
}

type graph struct {
	findings map[domain.FindingID]*models.Finding
	edges    map[edgeKey]struct{}
}

// InMemory mirrors the Postgres store for unit tests, including the cascade
// from finding deletion to its association edges.
type InMemory struct {
	mu     sync.RWMutex
	graphs map[assessmentKey]*graph
}

// NewInMemory creates an empty in-memory association graph store.
func NewInMemory() *InMemory {
	return &InMemory{graphs: make(map[assessmentKey]*graph)}
}

// Seed registers an assessment so bulk loads and reads against it succeed.
// Mirrors the foreign key the SQL schema enforces.
func (s *InMemory) Seed(org domain.OrgDomain, id domain.AssessmentID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := assessmentKey{org, id}
	if s.graphs[key] == nil {
		s.graphs[key] = &graph{
			findings: make(map[domain.FindingID]*models.Finding),
			edges:    make(map[edgeKey]struct{}),
		}
	}
}

func (s *InMemory) BulkUpsert(_ context.Context, org domain.OrgDomain, id domain.AssessmentID, findings []models.Finding, edges []models.Association) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.graphs[assessmentKey{org, id}]
	if g == nil {
		return fmt.Errorf("assessment %s: %w", id, sentinel.ErrNotFound)
	}
	for i := range findings {
		f := copyFinding(&findings[i])
		f.AssessmentID = id
		if prev, ok := g.findings[f.ID]; ok {
			// Reviewer state survives a reprocessed scan run.
			f.Hidden = prev.Hidden
			f.Comments = prev.Comments
		}
		g.findings[f.ID] = f
	}
	for _, e := range edges {
		if _, ok := g.findings[e.FindingID]; !ok {
			return fmt.Errorf("finding %s: %w", e.FindingID, sentinel.ErrNotFound)
		}
		g.edges[edgeKey{e.FindingID, e.BestPracticeRef()}] = struct{}{}
	}
	return nil
}

func (s *InMemory) Get(_ context.Context, org domain.OrgDomain, id domain.AssessmentID, findingID domain.FindingID) (*models.Finding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, err := s.find(org, id, findingID)
	if err != nil {
		return nil, err
	}
	return copyFinding(f), nil
}

func (s *InMemory) ListForBestPractice(_ context.Context, org domain.OrgDomain, id domain.AssessmentID, key domain.BestPracticeKey, p ListParams) ([]models.Finding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g := s.graphs[assessmentKey{org, id}]
	if g == nil {
		return nil, fmt.Errorf("assessment %s: %w", id, sentinel.ErrNotFound)
	}

	var ids []domain.FindingID
	for ek := range g.edges {
		if ek.bp == key {
			ids = append(ids, ek.finding)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var out []models.Finding
	for _, fid := range ids {
		if p.AfterID != "" && fid <= p.AfterID {
			continue
		}
		f := g.findings[fid]
		if f == nil {
			continue
		}
		if !p.ShowHidden && f.Hidden {
			continue
		}
		if p.SearchTerm != "" && !matchesSearch(f, p.SearchTerm) {
			continue
		}
		out = append(out, *copyFinding(f))
		if len(out) == p.Limit {
			break
		}
	}
	return out, nil
}

func matchesSearch(f *models.Finding, term string) bool {
	term = strings.ToLower(term)
	if strings.Contains(strings.ToLower(f.StatusDetail), term) ||
		strings.Contains(strings.ToLower(f.RiskDetails), term) {
		return true
	}
	for _, r := range f.Resources {
		if strings.Contains(strings.ToLower(r.Name), term) {
			return true
		}
	}
	return false
}

func (s *InMemory) Delete(_ context.Context, org domain.OrgDomain, id domain.AssessmentID, findingID domain.FindingID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.graphs[assessmentKey{org, id}]
	if g == nil || g.findings[findingID] == nil {
		return fmt.Errorf("finding %s: %w", findingID, sentinel.ErrNotFound)
	}
	delete(g.findings, findingID)
	for ek := range g.edges {
		if ek.finding == findingID {
			delete(g.edges, ek)
		}
	}
	return nil
}

// DeleteBestPracticeEdges removes every edge pointing at a best practice.
// Mirrors the SQL cascade from best_practices deletion.
func (s *InMemory) DeleteBestPracticeEdges(_ context.Context, org domain.OrgDomain, id domain.AssessmentID, key domain.BestPracticeKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.graphs[assessmentKey{org, id}]
	if g == nil {
		return fmt.Errorf("assessment %s: %w", id, sentinel.ErrNotFound)
	}
	for ek := range g.edges {
		if ek.bp == key {
			delete(g.edges, ek)
		}
	}
	return nil
}

func (s *InMemory) SetHidden(_ context.Context, org domain.OrgDomain, id domain.AssessmentID, findingID domain.FindingID, hidden bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.find(org, id, findingID)
	if err != nil {
		return err
	}
	f.Hidden = hidden
	return nil
}

func (s *InMemory) AddComment(_ context.Context, org domain.OrgDomain, id domain.AssessmentID, findingID domain.FindingID, c models.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.find(org, id, findingID)
	if err != nil {
		return err
	}
	f.Comments = append(f.Comments, c)
	return nil
}

func (s *InMemory) UpdateComment(_ context.Context, org domain.OrgDomain, id domain.AssessmentID, findingID domain.FindingID, commentID domain.CommentID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.find(org, id, findingID)
	if err != nil {
		return err
	}
	for i := range f.Comments {
		if f.Comments[i].ID == commentID {
			f.Comments[i].Text = text
			return nil
		}
	}
	return fmt.Errorf("comment %s: %w", commentID, sentinel.ErrNotFound)
}

func (s *InMemory) DeleteComment(_ context.Context, org domain.OrgDomain, id domain.AssessmentID, findingID domain.FindingID, commentID domain.CommentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.find(org, id, findingID)
	if err != nil {
		return err
	}
	for i := range f.Comments {
		if f.Comments[i].ID == commentID {
			f.Comments = append(f.Comments[:i], f.Comments[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("comment %s: %w", commentID, sentinel.ErrNotFound)
}

func (s *InMemory) CountPerBestPractice(_ context.Context, org domain.OrgDomain, id domain.AssessmentID) (map[domain.BestPracticeKey]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g := s.graphs[assessmentKey{org, id}]
	if g == nil {
		return nil, fmt.Errorf("assessment %s: %w", id, sentinel.ErrNotFound)
	}
	counts := make(map[domain.BestPracticeKey]int)
	for ek := range g.edges {
		f := g.findings[ek.finding]
		if f == nil || f.Hidden {
			continue
		}
		counts[ek.bp]++
	}
	return counts, nil
}

// Edges returns a snapshot of the association edge set. Test helper.
func (s *InMemory) Edges(org domain.OrgDomain, id domain.AssessmentID) []models.Association {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g := s.graphs[assessmentKey{org, id}]
	if g == nil {
		return nil
	}
	var out []models.Association
	for ek := range g.edges {
		out = append(out, models.Association{
			AssessmentID: id,
			FindingID:    ek.finding,
			Pillar:       ek.bp.Pillar,
			Question:     ek.bp.Question,
			BestPractice: ek.bp.BestPractice,
		})
	}
	return out
}

func (s *InMemory) find(org domain.OrgDomain, id domain.AssessmentID, findingID domain.FindingID) (*models.Finding, error) {
	g := s.graphs[assessmentKey{org, id}]
	if g == nil {
		return nil, fmt.Errorf("assessment %s: %w", id, sentinel.ErrNotFound)
	}
	f := g.findings[findingID]
	if f == nil {
		return nil, fmt.Errorf("finding %s: %w", findingID, sentinel.ErrNotFound)
	}
	return f, nil
}

func copyFinding(f *models.Finding) *models.Finding {
	out := *f
	if f.Remediation != nil {
		r := *f.Remediation
		r.References = append([]string(nil), f.Remediation.References...)
		out.Remediation = &r
	}
	if f.Resources != nil {
		out.Resources = append([]models.Resource{}, f.Resources...)
	}
	if f.Comments != nil {
		out.Comments = append([]models.Comment{}, f.Comments...)
	}
	return &out
}
