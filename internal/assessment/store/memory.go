package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"assessor/internal/assessment/models"
	"assessor/pkg/domain"
	"assessor/pkg/platform/sentinel"
)

// InMemory mirrors the Postgres store for unit tests. It is keyed by
// (org, assessment id) so that two organizations holding the same assessment
// id never observe each other's rows, matching the SQL scoping.
type InMemory struct {
	mu sync.RWMutex
	// org → assessment id → aggregate
	assessments map[domain.OrgDomain]map[domain.AssessmentID]*models.Assessment
}

// NewInMemory creates an empty in-memory content aggregate store.
func NewInMemory() *InMemory {
	return &InMemory{assessments: make(map[domain.OrgDomain]map[domain.AssessmentID]*models.Assessment)}
}

func (s *InMemory) Create(_ context.Context, a *models.Assessment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// The id is unique across organizations, mirroring the relational
	// schema: children reference the assessment by id alone and carry no
	// organization column.
	for _, byID := range s.assessments {
		if _, exists := byID[a.ID]; exists {
			return fmt.Errorf("assessment %s: %w", a.ID, sentinel.ErrConflict)
		}
	}
	byID := s.assessments[a.OrgDomain]
	if byID == nil {
		byID = make(map[domain.AssessmentID]*models.Assessment)
		s.assessments[a.OrgDomain] = byID
	}
	byID[a.ID] = copyAssessment(a)
	return nil
}

func (s *InMemory) Get(_ context.Context, org domain.OrgDomain, id domain.AssessmentID) (*models.Assessment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, err := s.find(org, id)
	if err != nil {
		return nil, err
	}
	return copyAssessment(a), nil
}

func (s *InMemory) GetHeader(ctx context.Context, org domain.OrgDomain, id domain.AssessmentID) (*models.Assessment, error) {
	a, err := s.Get(ctx, org, id)
	if err != nil {
		return nil, err
	}
	a.Pillars = nil
	return a, nil
}

func (s *InMemory) List(_ context.Context, org domain.OrgDomain, p ListParams) ([]models.Assessment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []*models.Assessment
	for _, a := range s.assessments[org] {
		if p.Folder != nil && (a.Folder == nil || *a.Folder != *p.Folder) {
			continue
		}
		all = append(all, a)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID > all[j].ID
	})

	var out []models.Assessment
	for _, a := range all {
		if p.AfterCreatedAt != "" && !keysetAfter(a, p.AfterCreatedAt, p.AfterID) {
			continue
		}
		header := copyAssessment(a)
		header.Pillars = nil
		out = append(out, *header)
		if len(out) == p.Limit {
			break
		}
	}
	return out, nil
}

// keysetAfter reports whether a sorts strictly after the continuation point
// in the newest-first order.
func keysetAfter(a *models.Assessment, afterCreatedAt string, afterID domain.AssessmentID) bool {
	return ListKey(a) < afterCreatedAt+"|"+afterID.String()
}

func (s *InMemory) Delete(_ context.Context, org domain.OrgDomain, id domain.AssessmentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.find(org, id); err != nil {
		return err
	}
	delete(s.assessments[org], id)
	return nil
}

func (s *InMemory) SetPillarDisabled(_ context.Context, org domain.OrgDomain, id domain.AssessmentID, pillar domain.PillarID, disabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.findPillar(org, id, pillar)
	if err != nil {
		return err
	}
	p.Disabled = disabled
	return nil
}

func (s *InMemory) SetQuestionFlags(_ context.Context, org domain.OrgDomain, id domain.AssessmentID, pillar domain.PillarID, question domain.QuestionID, flags models.QuestionFlags) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, err := s.findQuestion(org, id, pillar, question)
	if err != nil {
		return err
	}
	if flags.None != nil {
		q.None = *flags.None
	}
	if flags.Disabled != nil {
		q.Disabled = *flags.Disabled
	}
	return nil
}

func (s *InMemory) SetBestPracticeChecked(_ context.Context, org domain.OrgDomain, id domain.AssessmentID, pillar domain.PillarID, question domain.QuestionID, bp domain.BestPracticeID, checked bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, err := s.findQuestion(org, id, pillar, question)
	if err != nil {
		return err
	}
	for i := range q.BestPractices {
		if q.BestPractices[i].ID == bp {
			q.BestPractices[i].Checked = checked
			return nil
		}
	}
	return fmt.Errorf("best practice %s: %w", bp, sentinel.ErrNotFound)
}

func (s *InMemory) UpdateStep(_ context.Context, org domain.OrgDomain, id domain.AssessmentID, from, to domain.AssessmentStep, stepErr *models.StepError) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.find(org, id)
	if err != nil {
		return err
	}
	if a.Step != from {
		return fmt.Errorf("assessment %s left step %s concurrently: %w", id, from, sentinel.ErrInvalidState)
	}
	a.Step = to
	a.StepError = stepErr
	return nil
}

func (s *InMemory) SetExportRegion(_ context.Context, org domain.OrgDomain, id domain.AssessmentID, region string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.find(org, id)
	if err != nil {
		return err
	}
	a.ExportRegion = region
	return nil
}

func (s *InMemory) SetFolder(_ context.Context, org domain.OrgDomain, id domain.AssessmentID, folder *domain.FolderID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.find(org, id)
	if err != nil {
		return err
	}
	if folder == nil {
		a.Folder = nil
		return nil
	}
	f := *folder
	a.Folder = &f
	return nil
}

// UnassignFolder clears the folder reference from every member assessment.
// Mirrors the ON DELETE SET NULL behavior of the SQL schema.
func (s *InMemory) UnassignFolder(_ context.Context, org domain.OrgDomain, folder domain.FolderID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.assessments[org] {
		if a.Folder != nil && *a.Folder == folder {
			a.Folder = nil
		}
	}
	return nil
}

func (s *InMemory) find(org domain.OrgDomain, id domain.AssessmentID) (*models.Assessment, error) {
	a := s.assessments[org][id]
	if a == nil {
		return nil, fmt.Errorf("assessment %s: %w", id, sentinel.ErrNotFound)
	}
	return a, nil
}

func (s *InMemory) findPillar(org domain.OrgDomain, id domain.AssessmentID, pillar domain.PillarID) (*models.Pillar, error) {
	a, err := s.find(org, id)
	if err != nil {
		return nil, err
	}
	for i := range a.Pillars {
		if a.Pillars[i].ID == pillar {
			return &a.Pillars[i], nil
		}
	}
	return nil, fmt.Errorf("pillar %s: %w", pillar, sentinel.ErrNotFound)
}

func (s *InMemory) findQuestion(org domain.OrgDomain, id domain.AssessmentID, pillar domain.PillarID, question domain.QuestionID) (*models.Question, error) {
	p, err := s.findPillar(org, id, pillar)
	if err != nil {
		return nil, err
	}
	for i := range p.Questions {
		if p.Questions[i].ID == question {
			return &p.Questions[i], nil
		}
	}
	return nil, fmt.Errorf("question %s: %w", question, sentinel.ErrNotFound)
}

func copyAssessment(a *models.Assessment) *models.Assessment {
	out := *a
	out.Regions = append([]string(nil), a.Regions...)
	out.Workflows = append([]string(nil), a.Workflows...)
	if a.StepError != nil {
		se := *a.StepError
		out.StepError = &se
	}
	if a.Folder != nil {
		f := *a.Folder
		out.Folder = &f
	}
	out.Pillars = make([]models.Pillar, len(a.Pillars))
	for i, p := range a.Pillars {
		cp := p
		cp.Questions = make([]models.Question, len(p.Questions))
		for j, q := range p.Questions {
			cq := q
			cq.BestPractices = append([]models.BestPractice(nil), q.BestPractices...)
			cp.Questions[j] = cq
		}
		out.Pillars[i] = cp
	}
	return &out
}
