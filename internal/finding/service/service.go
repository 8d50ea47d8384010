// Package service orchestrates the finding association graph: scan run
// ingestion, per-best-practice listings, and reviewer triage (hide flags and
// comments).
package service

import (
	"context"
	"errors"
	"strings"

	"assessor/internal/audit"
	"assessor/internal/finding/metrics"
	"assessor/internal/finding/models"
	"assessor/internal/finding/store"
	"assessor/pkg/cursor"
	"assessor/pkg/domain"
	dErrors "assessor/pkg/domain-errors"
	"assessor/pkg/platform/sentinel"
	"assessor/pkg/requestcontext"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Service is the entry point for all finding graph operations.
type Service struct {
	store    store.Store
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

// New constructs the finding service.
func New(st store.Store, opts ...Option) *Service {
	s := &Service{store: st}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BulkUpsert ingests one scan run: findings plus the association edges
// linking them to best practices. Replaying the same run is a no-op for
// edges and preserves reviewer state on findings.
func (s *Service) BulkUpsert(ctx context.Context, org domain.OrgDomain, id domain.AssessmentID, findings []models.Finding, edges []models.Association) error {
	for i := range findings {
		if _, err := domain.ParseFindingID(findings[i].ID.String()); err != nil {
			return err
		}
	}
	if err := s.store.BulkUpsert(ctx, org, id, findings, edges); err != nil {
		return translateStoreErr(err, "bulk upsert findings")
	}
	if s.metrics != nil {
		s.metrics.FindingsLoaded.Add(float64(len(findings)))
		s.metrics.EdgesLoaded.Add(float64(len(edges)))
	}
	return nil
}

// Get returns one finding with its comments.
func (s *Service) Get(ctx context.Context, org domain.OrgDomain, id domain.AssessmentID, findingID domain.FindingID) (*models.Finding, error) {
	f, err := s.store.Get(ctx, org, id, findingID)
	if err != nil {
		return nil, translateStoreErr(err, "get finding")
	}
	return f, nil
}

// ListParams bounds one finding listing page under a best practice.
type ListParams struct {
	Limit      int
	Cursor     string
	SearchTerm string
	ShowHidden bool
}

// Page is one page of findings plus the continuation token.
type Page struct {
	Findings   []models.Finding
	NextCursor string
}

// ListForBestPractice pages the findings associated to one best practice,
// finding id ascending. Hidden findings are skipped unless ShowHidden; the
// search term filters by case-insensitive substring over status detail, risk
// details, and resource names without affecting ordering.
func (s *Service) ListForBestPractice(ctx context.Context, org domain.OrgDomain, id domain.AssessmentID, key domain.BestPracticeKey, p ListParams) (*Page, error) {
	limit := clampLimit(p.Limit)
	pos, err := cursor.Decode(p.Cursor, cursor.ScopeFindings)
	if err != nil {
		return nil, err
	}

	params := store.ListParams{
		Limit:      limit + 1,
		AfterID:    domain.FindingID(pos.Key),
		SearchTerm: strings.TrimSpace(p.SearchTerm),
		ShowHidden: p.ShowHidden,
	}
	rows, err := s.store.ListForBestPractice(ctx, org, id, key, params)
	if err != nil {
		return nil, translateStoreErr(err, "list findings")
	}

	page := &Page{}
	if len(rows) > limit {
		rows = rows[:limit]
		page.NextCursor = cursor.Encode(cursor.Position{
			Scope: cursor.ScopeFindings,
			Key:   rows[len(rows)-1].ID.String(),
		})
	}
	page.Findings = rows
	return page, nil
}

// Delete removes a finding; foreign keys cascade to its association edges in
// the same transaction.
func (s *Service) Delete(ctx context.Context, org domain.OrgDomain, id domain.AssessmentID, findingID domain.FindingID) error {
	if err := s.store.Delete(ctx, org, id, findingID); err != nil {
		return translateStoreErr(err, "delete finding")
	}
	return nil
}

// SetHidden flips a finding's hidden flag. Idempotent; associations are
// never touched, only listings and counts change.
func (s *Service) SetHidden(ctx context.Context, org domain.OrgDomain, id domain.AssessmentID, findingID domain.FindingID, hidden bool) error {
	if err := s.store.SetHidden(ctx, org, id, findingID, hidden); err != nil {
		return translateStoreErr(err, "set finding hidden")
	}
	if s.metrics != nil {
		s.metrics.HiddenToggles.Inc()
	}
	s.emit(ctx, audit.ActionFindingHiddenSet, org, id, findingID.String())
	return nil
}

// AddComment appends a reviewer comment with a fresh id and returns it.
func (s *Service) AddComment(ctx context.Context, org domain.OrgDomain, id domain.AssessmentID, findingID domain.FindingID, text string) (*models.Comment, error) {
	if strings.TrimSpace(text) == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "comment text cannot be empty")
	}
	c := models.Comment{
		ID:        domain.NewCommentID(),
		AuthorID:  requestcontext.ActorID(ctx),
		Text:      text,
		CreatedAt: requestcontext.Now(ctx),
	}
	if err := s.store.AddComment(ctx, org, id, findingID, c); err != nil {
		return nil, translateStoreErr(err, "add comment")
	}
	if s.metrics != nil {
		s.metrics.CommentMutations.WithLabelValues("add").Inc()
	}
	return &c, nil
}

// UpdateComment replaces a comment's text in full. The author is never
// reassigned.
func (s *Service) UpdateComment(ctx context.Context, org domain.OrgDomain, id domain.AssessmentID, findingID domain.FindingID, commentID domain.CommentID, text string) error {
	if strings.TrimSpace(text) == "" {
		return dErrors.New(dErrors.CodeBadRequest, "comment text cannot be empty")
	}
	if err := s.store.UpdateComment(ctx, org, id, findingID, commentID, text); err != nil {
		return translateStoreErr(err, "update comment")
	}
	if s.metrics != nil {
		s.metrics.CommentMutations.WithLabelValues("update").Inc()
	}
	return nil
}

// DeleteComment removes one comment.
func (s *Service) DeleteComment(ctx context.Context, org domain.OrgDomain, id domain.AssessmentID, findingID domain.FindingID, commentID domain.CommentID) error {
	if err := s.store.DeleteComment(ctx, org, id, findingID, commentID); err != nil {
		return translateStoreErr(err, "delete comment")
	}
	if s.metrics != nil {
		s.metrics.CommentMutations.WithLabelValues("delete").Inc()
	}
	return nil
}

// CountPerBestPractice aggregates visible association counts for a whole
// assessment. Feeds the informational findingAmount on tree reads.
func (s *Service) CountPerBestPractice(ctx context.Context, org domain.OrgDomain, id domain.AssessmentID) (map[domain.BestPracticeKey]int, error) {
	counts, err := s.store.CountPerBestPractice(ctx, org, id)
	if err != nil {
		return nil, translateStoreErr(err, "count findings")
	}
	return counts, nil
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
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, op)
	}
}
