package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assessor/internal/assessment/models"
	"assessor/internal/assessment/store"
	"assessor/pkg/cursor"
	"assessor/pkg/domain"
	dErrors "assessor/pkg/domain-errors"
	"assessor/pkg/requestcontext"
)

const org = domain.OrgDomain("acme.example")

type staticCounts map[domain.BestPracticeKey]int

func (c staticCounts) CountPerBestPractice(context.Context, domain.OrgDomain, domain.AssessmentID) (map[domain.BestPracticeKey]int, error) {
	return c, nil
}

func newService(t *testing.T, counts staticCounts) (*Service, *store.InMemory) {
	t.Helper()
	st := store.NewInMemory()
	if counts == nil {
		counts = staticCounts{}
	}
	return New(st, counts), st
}

func testCtx(now time.Time) context.Context {
	ctx := requestcontext.WithActorID(context.Background(), "reviewer")
	return requestcontext.WithTime(ctx, now)
}

func securityPillar() models.Pillar {
	return models.Pillar{
		ID:    "SEC",
		Label: "Security",
		Questions: []models.Question{
			{
				ID:    "SEC01",
				Label: "How do you manage identities?",
				BestPractices: []models.BestPractice{
					{ID: "SEC01-BP01", Label: "Use strong sign-in", Risk: domain.SeverityHigh},
					{ID: "SEC01-BP02", Label: "Rotate credentials", Risk: domain.SeverityMedium},
				},
			},
		},
	}
}

func createAssessment(t *testing.T, s *Service, id domain.AssessmentID, at time.Time) *models.Assessment {
	t.Helper()
	a, err := s.Create(testCtx(at), org, CreateParams{
		ID:      id,
		Name:    "prod account",
		RoleArn: "arn:aws:iam::123456789012:role/assessor",
		Regions: []string{"eu-west-1"},
		Pillars: []models.Pillar{securityPillar()},
	})
	require.NoError(t, err)
	return a
}

func finish(t *testing.T, s *Service, id domain.AssessmentID) {
	t.Helper()
	ctx := testCtx(time.Now())
	for _, step := range []domain.AssessmentStep{
		domain.StepPreparingAssociations,
		domain.StepAssociatingFindings,
		domain.StepFinished,
	} {
		require.NoError(t, s.AdvanceStep(ctx, org, id, step, nil))
	}
}

func TestCreateStartsAtScanningStarted(t *testing.T) {
	s, _ := newService(t, nil)
	a := createAssessment(t, s, "a-1", time.Now())
	assert.Equal(t, domain.StepScanningStarted, a.Step)
	assert.Equal(t, "reviewer", a.CreatedBy)
}

func TestCreateDuplicateIsConflict(t *testing.T) {
	s, _ := newService(t, nil)
	createAssessment(t, s, "a-1", time.Now())
	_, err := s.Create(testCtx(time.Now()), org, CreateParams{
		ID: "a-1", Name: "again", RoleArn: "arn:aws:iam::123456789012:role/assessor",
		Regions: []string{"eu-west-1"},
	})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
}

func TestGetPopulatesFindingAmounts(t *testing.T) {
	key := domain.BestPracticeKey{Pillar: "SEC", Question: "SEC01", BestPractice: "SEC01-BP01"}
	s, _ := newService(t, staticCounts{key: 4})
	createAssessment(t, s, "a-1", time.Now())

	a, err := s.Get(testCtx(time.Now()), org, "a-1")
	require.NoError(t, err)
	bps := a.Pillars[0].Questions[0].BestPractices
	assert.Equal(t, 4, bps[0].FindingAmount)
	assert.Equal(t, 0, bps[1].FindingAmount)
}

func TestEditsGatedUntilFinished(t *testing.T) {
	s, _ := newService(t, nil)
	createAssessment(t, s, "a-1", time.Now())
	ctx := testCtx(time.Now())

	err := s.SetBestPracticeChecked(ctx, org, "a-1", "SEC", "SEC01", "SEC01-BP01", true)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeIllegalTransition))

	err = s.SetQuestionFlags(ctx, org, "a-1", "SEC", "SEC01", models.QuestionFlags{})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeIllegalTransition))

	finish(t, s, "a-1")

	require.NoError(t, s.SetBestPracticeChecked(ctx, org, "a-1", "SEC", "SEC01", "SEC01-BP01", true))
}

func TestEditMissingIdentityIsNotFound(t *testing.T) {
	s, _ := newService(t, nil)
	createAssessment(t, s, "a-1", time.Now())
	finish(t, s, "a-1")
	ctx := testCtx(time.Now())

	err := s.SetBestPracticeChecked(ctx, org, "a-1", "SEC", "SEC01", "SEC99-BPXX", true)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))

	err = s.SetPillarDisabled(ctx, org, "a-1", "NOPE", true)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestNoneOverrideKeepsCheckedFlags(t *testing.T) {
	s, st := newService(t, nil)
	createAssessment(t, s, "a-1", time.Now())
	finish(t, s, "a-1")
	ctx := testCtx(time.Now())

	require.NoError(t, s.SetBestPracticeChecked(ctx, org, "a-1", "SEC", "SEC01", "SEC01-BP01", true))

	on, off := true, false
	require.NoError(t, s.SetQuestionFlags(ctx, org, "a-1", "SEC", "SEC01", models.QuestionFlags{None: &on}))
	require.NoError(t, s.SetQuestionFlags(ctx, org, "a-1", "SEC", "SEC01", models.QuestionFlags{None: &off}))

	a, err := st.Get(ctx, org, "a-1")
	require.NoError(t, err)
	assert.True(t, a.Pillars[0].Questions[0].BestPractices[0].Checked)
}

func TestStepMachine(t *testing.T) {
	s, _ := newService(t, nil)
	createAssessment(t, s, "a-1", time.Now())
	ctx := testCtx(time.Now())

	// Skipping a phase is rejected.
	err := s.AdvanceStep(ctx, org, "a-1", domain.StepAssociatingFindings, nil)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeIllegalTransition))

	// ERRORED is reachable from any non-terminal step and records the cause.
	stepErr := &models.StepError{Error: "scanner crashed", Cause: "oom"}
	require.NoError(t, s.AdvanceStep(ctx, org, "a-1", domain.StepErrored, stepErr))

	// Terminal states are final.
	err = s.AdvanceStep(ctx, org, "a-1", domain.StepFinished, nil)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeIllegalTransition))
}

func TestRescanOnlyFromTerminal(t *testing.T) {
	s, st := newService(t, nil)
	createAssessment(t, s, "a-1", time.Now())
	ctx := testCtx(time.Now())

	err := s.Rescan(ctx, org, "a-1")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeIllegalTransition))

	finish(t, s, "a-1")
	require.NoError(t, s.Rescan(ctx, org, "a-1"))

	a, err := st.Get(ctx, org, "a-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StepScanningStarted, a.Step)
	assert.Nil(t, a.StepError)
}

func TestListNewestFirstWithCursor(t *testing.T) {
	s, _ := newService(t, nil)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		createAssessment(t, s, domain.AssessmentID(fmt.Sprintf("a-%d", i)), base.Add(time.Duration(i)*time.Minute))
	}
	ctx := testCtx(time.Now())

	var seen []domain.AssessmentID
	var token string
	for {
		page, err := s.List(ctx, org, ListParams{Limit: 2, Cursor: token})
		require.NoError(t, err)
		for _, a := range page.Assessments {
			seen = append(seen, a.ID)
		}
		if page.NextCursor == "" {
			break
		}
		token = page.NextCursor
	}

	assert.Equal(t, []domain.AssessmentID{"a-4", "a-3", "a-2", "a-1", "a-0"}, seen)
}

func TestListRejectsForeignCursor(t *testing.T) {
	s, _ := newService(t, nil)
	token := cursor.Encode(cursor.Position{Scope: cursor.ScopeFindings, Key: "x"})
	_, err := s.List(testCtx(time.Now()), org, ListParams{Cursor: token})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidCursor))
}

func TestTenancyIsolation(t *testing.T) {
	s, _ := newService(t, nil)
	createAssessment(t, s, "a-1", time.Now())

	_, err := s.Get(testCtx(time.Now()), "other.example", "a-1")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))

	// Assessment ids are unique across organizations; a second organization
	// cannot claim an existing id, it can only fail to see it.
	_, err = s.Create(testCtx(time.Now()), "other.example", CreateParams{
		ID: "a-1", Name: "their copy", RoleArn: "arn:aws:iam::210987654321:role/assessor",
		Regions: []string{"us-east-1"},
	})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
}

func TestSetExportRegionValidation(t *testing.T) {
	s, st := newService(t, nil)
	createAssessment(t, s, "a-1", time.Now())
	ctx := testCtx(time.Now())

	err := s.SetExportRegion(ctx, org, "a-1", "")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))

	require.NoError(t, s.SetExportRegion(ctx, org, "a-1", "eu-central-1"))
	a, err := st.Get(ctx, org, "a-1")
	require.NoError(t, err)
	assert.Equal(t, "eu-central-1", a.ExportRegion)
}

// staleHeaderStore serves GetHeader from a snapshot captured earlier while
// writes go to the live store, standing in for a second pipeline callback that
// validated the same row before the first one committed.
type staleHeaderStore struct {
	store.Store
	snapshot *models.Assessment
}

func (s *staleHeaderStore) GetHeader(context.Context, domain.OrgDomain, domain.AssessmentID) (*models.Assessment, error) {
	clone := *s.snapshot
	return &clone, nil
}

func TestAdvanceStepLostRaceCannotLeaveTerminalStep(t *testing.T) {
	s, st := newService(t, nil)
	createAssessment(t, s, "a-1", time.Now())
	ctx := testCtx(time.Now())
	require.NoError(t, s.AdvanceStep(ctx, org, "a-1", domain.StepPreparingAssociations, nil))

	// Two callbacks validate the same PREPARING_ASSOCIATIONS row. The errored
	// one commits first.
	snapshot, err := st.GetHeader(ctx, org, "a-1")
	require.NoError(t, err)
	stepErr := &models.StepError{Error: "scanner crashed", Cause: "oom"}
	require.NoError(t, s.AdvanceStep(ctx, org, "a-1", domain.StepErrored, stepErr))

	// The loser carries the stale snapshot and must not drag the row back out
	// of ERRORED.
	loser := New(&staleHeaderStore{Store: st, snapshot: snapshot}, staticCounts{})
	err = loser.AdvanceStep(ctx, org, "a-1", domain.StepAssociatingFindings, nil)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeIllegalTransition))

	got, err := st.GetHeader(ctx, org, "a-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StepErrored, got.Step)
	require.NotNil(t, got.StepError)
	assert.Equal(t, "scanner crashed", got.StepError.Error)
}
