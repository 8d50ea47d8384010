// Package service orchestrates the content aggregate: tree reads enriched
// with finding counts, reviewer flag mutations gated by the step machine, and
// pipeline-driven lifecycle movement.
package service

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"assessor/internal/assessment/metrics"
	"assessor/internal/assessment/models"
	"assessor/internal/assessment/store"
	"assessor/internal/audit"
	"assessor/pkg/cursor"
	"assessor/pkg/domain"
	dErrors "assessor/pkg/domain-errors"
	"assessor/pkg/platform/sentinel"
	platformstrings "assessor/pkg/platform/strings"
	"assessor/pkg/requestcontext"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// FindingCounter answers the per-best-practice association counts that
// populate the informational findingAmount field. Implemented by the finding
// store; hidden findings are excluded by contract.
type FindingCounter interface {
	CountPerBestPractice(ctx context.Context, org domain.OrgDomain, id domain.AssessmentID) (map[domain.BestPracticeKey]int, error)
}

// Service is the entry point for all content aggregate operations.
type Service struct {
	store    store.Store
	counts   FindingCounter
	auditPub audit.Publisher
	metrics  *metrics.Metrics
}

// Option configures optional service collaborators.
type Option func(*Service)

// WithAuditPublisher attaches the review-trail publisher.
func WithAuditPublisher(p audit.Publisher) Option {
	return func(s *Service) { s.auditPub = p }
}

// WithMetrics attaches prometheus metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// New constructs the assessment service.
func New(st store.Store, counts FindingCounter, opts ...Option) *Service {
	s := &Service{store: st, counts: counts}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateParams carries everything a scan launch provides, including the
// catalog tree snapshot the scanner resolved for this account.
type CreateParams struct {
	ID        domain.AssessmentID
	Name      string
	RoleArn   string
	Regions   []string
	Workflows []string
	Pillars   []models.Pillar
}

// Create registers a new assessment at scan launch with step
// SCANNING_STARTED.
func (s *Service) Create(ctx context.Context, org domain.OrgDomain, p CreateParams) (*models.Assessment, error) {
	a, err := models.NewAssessment(org, p.ID, p.Name, requestcontext.ActorID(ctx), p.RoleArn,
		platformstrings.DedupeAndTrim(p.Regions), platformstrings.DedupeAndTrim(p.Workflows),
		requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	a.Pillars = p.Pillars
	if err := s.store.Create(ctx, a); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Newf(dErrors.CodeConflict, "assessment %s already exists", p.ID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "create assessment")
	}
	if s.metrics != nil {
		s.metrics.AssessmentsCreated.Inc()
	}
	s.emit(ctx, audit.ActionAssessmentCreated, org, p.ID, "")
	return a, nil
}

// Get returns the full tree with findingAmount populated on every best
// practice. The tree read and the count aggregation fan out concurrently;
// both are scoped reads so abandoning mid-flight is safe.
func (s *Service) Get(ctx context.Context, org domain.OrgDomain, id domain.AssessmentID) (*models.Assessment, error) {
	start := time.Now()

	var (
		a      *models.Assessment
		counts map[domain.BestPracticeKey]int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		a, err = s.store.Get(gctx, org, id)
		return err
	})
	g.Go(func() error {
		var err error
		counts, err = s.counts.CountPerBestPractice(gctx, org, id)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, translateStoreErr(err, "get assessment")
	}

	for pi := range a.Pillars {
		for qi := range a.Pillars[pi].Questions {
			q := &a.Pillars[pi].Questions[qi]
			for bi := range q.BestPractices {
				bp := &q.BestPractices[bi]
				bp.FindingAmount = counts[domain.BestPracticeKey{
					Pillar:       a.Pillars[pi].ID,
					Question:     q.ID,
					BestPractice: bp.ID,
				}]
			}
		}
	}

	if s.metrics != nil {
		s.metrics.ObserveGetAssessment(start)
	}
	return a, nil
}

// ListParams bounds one assessment listing page.
type ListParams struct {
	Limit  int
	Cursor string
	Folder *domain.FolderID
}

// Page is one page of assessment headers plus the continuation token.
type Page struct {
	Assessments []models.Assessment
	NextCursor  string
}

// List returns assessment headers newest-first with cursor continuation.
func (s *Service) List(ctx context.Context, org domain.OrgDomain, p ListParams) (*Page, error) {
	limit := clampLimit(p.Limit)
	pos, err := cursor.Decode(p.Cursor, cursor.ScopeAssessments)
	if err != nil {
		return nil, err
	}

	params := store.ListParams{Limit: limit + 1, Folder: p.Folder}
	if pos.Key != "" {
		createdAt, afterID, err := store.ParseListKey(pos.Key)
		if err != nil {
			return nil, err
		}
		params.AfterCreatedAt = createdAt
		params.AfterID = afterID
	}

	rows, err := s.store.List(ctx, org, params)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list assessments")
	}

	page := &Page{}
	if len(rows) > limit {
		rows = rows[:limit]
		last := rows[len(rows)-1]
		page.NextCursor = cursor.Encode(cursor.Position{
			Scope: cursor.ScopeAssessments,
			Key:   store.ListKey(&last),
		})
	}
	page.Assessments = rows
	return page, nil
}

// Delete removes the assessment and all children. The store's foreign keys
// make the cascade atomic with the root delete.
func (s *Service) Delete(ctx context.Context, org domain.OrgDomain, id domain.AssessmentID) error {
	if err := s.store.Delete(ctx, org, id); err != nil {
		return translateStoreErr(err, "delete assessment")
	}
	s.emit(ctx, audit.ActionAssessmentDeleted, org, id, "")
	return nil
}

// SetPillarDisabled toggles a pillar's disabled flag. Requires a FINISHED
// assessment.
func (s *Service) SetPillarDisabled(ctx context.Context, org domain.OrgDomain, id domain.AssessmentID, pillar domain.PillarID, disabled bool) error {
	if err := s.requireEditable(ctx, org, id); err != nil {
		return err
	}
	if err := s.store.SetPillarDisabled(ctx, org, id, pillar, disabled); err != nil {
		return translateStoreErr(err, "set pillar disabled")
	}
	return nil
}

// SetQuestionFlags applies the none/disabled point mutations to a question.
// Requires a FINISHED assessment. Setting none never touches the checked
// flags underneath; completion math treats it as an override.
func (s *Service) SetQuestionFlags(ctx context.Context, org domain.OrgDomain, id domain.AssessmentID, pillar domain.PillarID, question domain.QuestionID, flags models.QuestionFlags) error {
	if err := s.requireEditable(ctx, org, id); err != nil {
		return err
	}
	if err := s.store.SetQuestionFlags(ctx, org, id, pillar, question, flags); err != nil {
		return translateStoreErr(err, "set question flags")
	}
	return nil
}

// SetBestPracticeChecked marks a best practice resolved or unresolved.
// Requires a FINISHED assessment.
func (s *Service) SetBestPracticeChecked(ctx context.Context, org domain.OrgDomain, id domain.AssessmentID, pillar domain.PillarID, question domain.QuestionID, bp domain.BestPracticeID, checked bool) error {
	if err := s.requireEditable(ctx, org, id); err != nil {
		return err
	}
	if err := s.store.SetBestPracticeChecked(ctx, org, id, pillar, question, bp, checked); err != nil {
		return translateStoreErr(err, "set best practice checked")
	}
	s.emit(ctx, audit.ActionBestPracticeEdited, org, id, bp.String())
	return nil
}

// AdvanceStep applies a pipeline transition after validating it against the
// step machine.
func (s *Service) AdvanceStep(ctx context.Context, org domain.OrgDomain, id domain.AssessmentID, next domain.AssessmentStep, stepErr *models.StepError) error {
	a, err := s.header(ctx, org, id)
	if err != nil {
		return err
	}
	if err := a.CanAdvanceTo(next); err != nil {
		if s.metrics != nil {
			s.metrics.RejectedTransitions.Inc()
		}
		return err
	}
	from := a.Step
	a.ApplyStep(next, stepErr)
	if err := s.store.UpdateStep(ctx, org, id, from, a.Step, a.StepError); err != nil {
		return translateStoreErr(err, "update step")
	}
	if s.metrics != nil {
		s.metrics.IncrementStepTransition(next.String())
	}
	s.emit(ctx, audit.ActionStepChanged, org, id, next.String())
	return nil
}

// Rescan resets the step machine for a new pipeline run against the same
// assessment identity. Legal only from a terminal step.
func (s *Service) Rescan(ctx context.Context, org domain.OrgDomain, id domain.AssessmentID) error {
	a, err := s.header(ctx, org, id)
	if err != nil {
		return err
	}
	if err := a.CanRescan(); err != nil {
		return err
	}
	from := a.Step
	a.ApplyRescan()
	if err := s.store.UpdateStep(ctx, org, id, from, a.Step, nil); err != nil {
		return translateStoreErr(err, "reset step")
	}
	s.emit(ctx, audit.ActionAssessmentRescan, org, id, "")
	return nil
}

// AssignFolder moves the assessment into a folder, or out of any folder when
// folder is nil. A missing folder surfaces as NotFound.
func (s *Service) AssignFolder(ctx context.Context, org domain.OrgDomain, id domain.AssessmentID, folder *domain.FolderID) error {
	if err := s.store.SetFolder(ctx, org, id, folder); err != nil {
		return translateStoreErr(err, "assign folder")
	}
	detail := ""
	if folder != nil {
		detail = folder.String()
	}
	s.emit(ctx, audit.ActionFolderAssigned, org, id, detail)
	return nil
}

// GetHeader returns the assessment without its tree. Used by collaborators
// that only need identity, role, and region fields.
func (s *Service) GetHeader(ctx context.Context, org domain.OrgDomain, id domain.AssessmentID) (*models.Assessment, error) {
	return s.header(ctx, org, id)
}

// SetExportRegion records the region used for review-tool interactions.
func (s *Service) SetExportRegion(ctx context.Context, org domain.OrgDomain, id domain.AssessmentID, region string) error {
	if region == "" {
		return dErrors.New(dErrors.CodeBadRequest, "export region cannot be empty")
	}
	if err := s.store.SetExportRegion(ctx, org, id, region); err != nil {
		return translateStoreErr(err, "set export region")
	}
	return nil
}

// requireEditable loads the assessment header and rejects reviewer edits
// unless the pipeline has finished. An absent assessment stays NotFound; a
// present one in the wrong step is an IllegalTransition — clients remediate
// those differently.
func (s *Service) requireEditable(ctx context.Context, org domain.OrgDomain, id domain.AssessmentID) error {
	a, err := s.header(ctx, org, id)
	if err != nil {
		return err
	}
	if !a.EditsAllowed() {
		return dErrors.Newf(dErrors.CodeIllegalTransition,
			"assessment %s is not editable while step is %s", id, a.Step)
	}
	return nil
}

func (s *Service) header(ctx context.Context, org domain.OrgDomain, id domain.AssessmentID) (*models.Assessment, error) {
	a, err := s.store.GetHeader(ctx, org, id)
	if err != nil {
		return nil, translateStoreErr(err, "get assessment")
	}
	return a, nil
}

func (s *Service) emit(ctx context.Context, action audit.Action, org domain.OrgDomain, id domain.AssessmentID, detail string) {
	if s.auditPub == nil {
		return
	}
	s.auditPub.Publish(ctx, audit.Event{
		Action:       action,
		Timestamp:    requestcontext.Now(ctx),
		OrgDomain:    org,
		AssessmentID: id,
		ActorID:      requestcontext.ActorID(ctx),
		RequestID:    requestcontext.RequestID(ctx),
		Detail:       detail,
	})
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultPageSize
	}
	if limit > maxPageSize {
		return maxPageSize
	}
	return limit
}

func translateStoreErr(err error, op string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, op)
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, op)
	case errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.Wrap(err, dErrors.CodeIllegalTransition, op)
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, op)
	}
}
