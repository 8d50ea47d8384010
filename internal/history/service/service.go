// Package service owns the append-only version ledger and the read-through
// milestone access. Versions are local and immutable; milestones live in the
// external review tool and are fetched fresh on every read, never cached.
package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"assessor/internal/audit"
	"assessor/internal/history/models"
	"assessor/internal/history/reviewtool"
	"assessor/internal/history/store"
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

// AssessmentHeader is the slice of the owning assessment the history module
// needs: role, workload, and the recorded export region.
type AssessmentHeader struct {
	RoleArn         string
	WafrWorkloadArn string
	ExportRegion    string
}

// HeaderReader resolves the owning assessment's header within the caller's
// tenancy. Implemented by the assessment service.
type HeaderReader interface {
	Header(ctx context.Context, org domain.OrgDomain, id domain.AssessmentID) (AssessmentHeader, error)
}

// ReviewToolClient fetches milestone snapshots from the external review
// tool. Upstream absence surfaces as sentinel.ErrNotFound, any other failure
// as sentinel.ErrUnavailable.
type ReviewToolClient interface {
	GetMilestone(ctx context.Context, target reviewtool.Target, id domain.MilestoneID) (*models.Milestone, error)
	ListMilestones(ctx context.Context, target reviewtool.Target, nextToken string, limit int) ([]models.MilestoneSummary, string, error)
}

// Service is the entry point for version and milestone history operations.
type Service struct {
	store    store.Store
	headers  HeaderReader
	tool     ReviewToolClient
	auditPub audit.Publisher
}

// Option configures optional service collaborators.
type Option func(*Service)

// WithAuditPublisher attaches the review-trail publisher.
func WithAuditPublisher(p audit.Publisher) Option {
	return func(s *Service) { s.auditPub = p }
}

// New constructs the history service.
func New(st store.Store, headers HeaderReader, tool ReviewToolClient, opts ...Option) *Service {
	s := &Service{store: st, headers: headers, tool: tool}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AppendParams carries what a completed scan run records in the ledger.
type AppendParams struct {
	ExecutionArn    string
	FinishedAt      *time.Time
	Error           string
	WafrWorkloadArn string
	ExportRegion    string
}

// AppendVersion writes the next ledger entry for the assessment and returns
// it with the assigned version number. Appends for the same assessment
// serialize in the store; a lost race surfaces as Conflict for the caller to
// retry.
func (s *Service) AppendVersion(ctx context.Context, org domain.OrgDomain, id domain.AssessmentID, p AppendParams) (*models.AssessmentVersion, error) {
	if p.ExecutionArn == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "execution arn cannot be empty")
	}
	v := &models.AssessmentVersion{
		AssessmentID:    id,
		CreatedAt:       requestcontext.Now(ctx),
		CreatedBy:       requestcontext.ActorID(ctx),
		ExecutionArn:    p.ExecutionArn,
		FinishedAt:      p.FinishedAt,
		Error:           p.Error,
		WafrWorkloadArn: p.WafrWorkloadArn,
		ExportRegion:    p.ExportRegion,
	}
	if err := s.store.Append(ctx, org, v); err != nil {
		return nil, translateStoreErr(err, "append version")
	}
	s.emit(ctx, audit.ActionVersionAppended, org, id, strconv.Itoa(v.Version))
	return v, nil
}

// ListParams bounds one history listing page.
type ListParams struct {
	Limit  int
	Cursor string
}

// VersionPage is one page of ledger entries plus the continuation token.
type VersionPage struct {
	Versions   []models.AssessmentVersion
	NextCursor string
}

// ListVersions pages the ledger newest-first.
func (s *Service) ListVersions(ctx context.Context, org domain.OrgDomain, id domain.AssessmentID, p ListParams) (*VersionPage, error) {
	limit := clampLimit(p.Limit)
	pos, err := cursor.Decode(p.Cursor, cursor.ScopeVersions)
	if err != nil {
		return nil, err
	}
	params := store.ListParams{Limit: limit + 1}
	if pos.Key != "" {
		after, err := strconv.Atoi(pos.Key)
		if err != nil || after < 1 {
			return nil, dErrors.New(dErrors.CodeInvalidCursor, "cursor does not address a version")
		}
		params.AfterVersion = after
	}

	rows, err := s.store.List(ctx, org, id, params)
	if err != nil {
		return nil, translateStoreErr(err, "list versions")
	}

	page := &VersionPage{}
	if len(rows) > limit {
		rows = rows[:limit]
		page.NextCursor = cursor.Encode(cursor.Position{
			Scope: cursor.ScopeVersions,
			Key:   strconv.Itoa(rows[len(rows)-1].Version),
		})
	}
	page.Versions = rows
	return page, nil
}

// GetMilestone reads one snapshot through to the review tool. The region is
// the explicit argument when given, otherwise the assessment's recorded
// export region; when neither exists the request is rejected before any
// upstream call.
func (s *Service) GetMilestone(ctx context.Context, org domain.OrgDomain, id domain.AssessmentID, milestoneID domain.MilestoneID, region string) (*models.Milestone, error) {
	target, err := s.resolveTarget(ctx, org, id, region)
	if err != nil {
		return nil, err
	}
	m, err := s.tool.GetMilestone(ctx, target, milestoneID)
	if err != nil {
		return nil, translateUpstreamErr(err)
	}
	return m, nil
}

// MilestonePage is one page of upstream snapshot summaries plus the
// continuation token.
type MilestonePage struct {
	Milestones []models.MilestoneSummary
	NextCursor string
}

// ListMilestones pages the upstream snapshot listing. The cursor wraps the
// upstream continuation token so callers see the same pagination contract as
// every other list.
func (s *Service) ListMilestones(ctx context.Context, org domain.OrgDomain, id domain.AssessmentID, region string, p ListParams) (*MilestonePage, error) {
	limit := clampLimit(p.Limit)
	pos, err := cursor.Decode(p.Cursor, cursor.ScopeMilestones)
	if err != nil {
		return nil, err
	}
	target, err := s.resolveTarget(ctx, org, id, region)
	if err != nil {
		return nil, err
	}

	summaries, nextToken, err := s.tool.ListMilestones(ctx, target, pos.Key, limit)
	if err != nil {
		return nil, translateUpstreamErr(err)
	}

	page := &MilestonePage{Milestones: summaries}
	if nextToken != "" {
		page.NextCursor = cursor.Encode(cursor.Position{Scope: cursor.ScopeMilestones, Key: nextToken})
	}
	return page, nil
}

func (s *Service) resolveTarget(ctx context.Context, org domain.OrgDomain, id domain.AssessmentID, region string) (reviewtool.Target, error) {
	header, err := s.headers.Header(ctx, org, id)
	if err != nil {
		return reviewtool.Target{}, err
	}
	if region == "" {
		region = header.ExportRegion
	}
	if region == "" {
		return reviewtool.Target{}, dErrors.Newf(dErrors.CodeExportRegionNotSet,
			"assessment %s has no export region and none was supplied", id)
	}
	return reviewtool.Target{
		Region:      region,
		RoleArn:     header.RoleArn,
		WorkloadArn: header.WafrWorkloadArn,
	}, nil
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

func translateUpstreamErr(err error) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, "milestone")
	case errors.Is(err, sentinel.ErrUnavailable):
		return dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, "review tool")
	default:
		return dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, "review tool")
	}
}
