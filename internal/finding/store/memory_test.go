package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assessor/internal/finding/models"
	"assessor/pkg/domain"
	"assessor/pkg/platform/sentinel"
)

const (
	testOrg        = domain.OrgDomain("acme.example")
	testAssessment = domain.AssessmentID("a-1")
)

var bpKey = domain.BestPracticeKey{Pillar: "SEC", Question: "SEC01", BestPractice: "SEC01-BP01"}

func seeded(t *testing.T) *InMemory {
	t.Helper()
	s := NewInMemory()
	s.Seed(testOrg, testAssessment)
	return s
}

func finding(id string) models.Finding {
	return models.Finding{
		ID:           domain.FindingID(id),
		Severity:     domain.SeverityMedium,
		StatusCode:   "FAIL",
		StatusDetail: "bucket is public",
		RiskDetails:  "data exposure",
	}
}

func edge(id string) models.Association {
	return models.Association{
		FindingID:    domain.FindingID(id),
		Pillar:       bpKey.Pillar,
		Question:     bpKey.Question,
		BestPractice: bpKey.BestPractice,
	}
}

func TestBulkUpsertIdempotent(t *testing.T) {
	ctx := context.Background()
	s := seeded(t)

	load := func() {
		err := s.BulkUpsert(ctx, testOrg, testAssessment,
			[]models.Finding{finding("prowler#f1"), finding("prowler#f2")},
			[]models.Association{edge("prowler#f1"), edge("prowler#f2")})
		require.NoError(t, err)
	}

	load()
	load()

	got, err := s.ListForBestPractice(ctx, testOrg, testAssessment, bpKey, ListParams{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Len(t, s.Edges(testOrg, testAssessment), 2)
}

func TestBulkUpsertPreservesReviewerState(t *testing.T) {
	ctx := context.Background()
	s := seeded(t)

	require.NoError(t, s.BulkUpsert(ctx, testOrg, testAssessment, []models.Finding{finding("prowler#f1")}, nil))
	require.NoError(t, s.SetHidden(ctx, testOrg, testAssessment, "prowler#f1", true))
	require.NoError(t, s.AddComment(ctx, testOrg, testAssessment, "prowler#f1", models.Comment{
		ID:        domain.NewCommentID(),
		AuthorID:  "reviewer",
		Text:      "accepted risk",
		CreatedAt: time.Now(),
	}))

	// The scanner replays the run: hidden flag and comments must survive.
	require.NoError(t, s.BulkUpsert(ctx, testOrg, testAssessment, []models.Finding{finding("prowler#f1")}, nil))

	got, err := s.Get(ctx, testOrg, testAssessment, "prowler#f1")
	require.NoError(t, err)
	assert.True(t, got.Hidden)
	assert.Len(t, got.Comments, 1)
}

func TestListOrderingAndKeyset(t *testing.T) {
	ctx := context.Background()
	s := seeded(t)
	require.NoError(t, s.BulkUpsert(ctx, testOrg, testAssessment,
		[]models.Finding{finding("prowler#c"), finding("prowler#a"), finding("prowler#b")},
		[]models.Association{edge("prowler#c"), edge("prowler#a"), edge("prowler#b")}))

	page, err := s.ListForBestPractice(ctx, testOrg, testAssessment, bpKey, ListParams{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, domain.FindingID("prowler#a"), page[0].ID)
	assert.Equal(t, domain.FindingID("prowler#b"), page[1].ID)

	page, err = s.ListForBestPractice(ctx, testOrg, testAssessment, bpKey, ListParams{Limit: 2, AfterID: page[1].ID})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, domain.FindingID("prowler#c"), page[0].ID)
}

func TestListFilters(t *testing.T) {
	ctx := context.Background()
	s := seeded(t)

	visible := finding("prowler#v")
	hidden := finding("prowler#h")
	named := finding("prowler#r")
	named.Resources = []models.Resource{{UID: "u", Name: "payments-bucket", Type: "s3", Region: "eu-west-1"}}

	require.NoError(t, s.BulkUpsert(ctx, testOrg, testAssessment,
		[]models.Finding{visible, hidden, named},
		[]models.Association{edge("prowler#v"), edge("prowler#h"), edge("prowler#r")}))
	require.NoError(t, s.SetHidden(ctx, testOrg, testAssessment, "prowler#h", true))

	got, err := s.ListForBestPractice(ctx, testOrg, testAssessment, bpKey, ListParams{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = s.ListForBestPractice(ctx, testOrg, testAssessment, bpKey, ListParams{Limit: 10, ShowHidden: true})
	require.NoError(t, err)
	assert.Len(t, got, 3)

	got, err = s.ListForBestPractice(ctx, testOrg, testAssessment, bpKey, ListParams{Limit: 10, SearchTerm: "PAYMENTS"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, domain.FindingID("prowler#r"), got[0].ID)
}

func TestDeleteCascadesEdges(t *testing.T) {
	ctx := context.Background()
	s := seeded(t)
	require.NoError(t, s.BulkUpsert(ctx, testOrg, testAssessment,
		[]models.Finding{finding("prowler#f1")}, []models.Association{edge("prowler#f1")}))

	require.NoError(t, s.Delete(ctx, testOrg, testAssessment, "prowler#f1"))

	assert.Empty(t, s.Edges(testOrg, testAssessment))
	_, err := s.Get(ctx, testOrg, testAssessment, "prowler#f1")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestCountPerBestPracticeExcludesHidden(t *testing.T) {
	ctx := context.Background()
	s := seeded(t)
	require.NoError(t, s.BulkUpsert(ctx, testOrg, testAssessment,
		[]models.Finding{finding("prowler#f1"), finding("prowler#f2")},
		[]models.Association{edge("prowler#f1"), edge("prowler#f2")}))

	counts, err := s.CountPerBestPractice(ctx, testOrg, testAssessment)
	require.NoError(t, err)
	assert.Equal(t, 2, counts[bpKey])

	require.NoError(t, s.SetHidden(ctx, testOrg, testAssessment, "prowler#f1", true))

	counts, err = s.CountPerBestPractice(ctx, testOrg, testAssessment)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[bpKey])
}

func TestTenancyIsolation(t *testing.T) {
	ctx := context.Background()
	s := seeded(t)
	require.NoError(t, s.BulkUpsert(ctx, testOrg, testAssessment, []models.Finding{finding("prowler#f1")}, nil))

	_, err := s.Get(ctx, "other.example", testAssessment, "prowler#f1")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestCommentLifecycle(t *testing.T) {
	ctx := context.Background()
	s := seeded(t)
	require.NoError(t, s.BulkUpsert(ctx, testOrg, testAssessment, []models.Finding{finding("prowler#f1")}, nil))

	c := models.Comment{ID: domain.NewCommentID(), AuthorID: "reviewer", Text: "check this", CreatedAt: time.Now()}
	require.NoError(t, s.AddComment(ctx, testOrg, testAssessment, "prowler#f1", c))

	require.NoError(t, s.UpdateComment(ctx, testOrg, testAssessment, "prowler#f1", c.ID, "resolved"))
	got, err := s.Get(ctx, testOrg, testAssessment, "prowler#f1")
	require.NoError(t, err)
	require.Len(t, got.Comments, 1)
	assert.Equal(t, "resolved", got.Comments[0].Text)
	assert.Equal(t, "reviewer", got.Comments[0].AuthorID)

	require.NoError(t, s.DeleteComment(ctx, testOrg, testAssessment, "prowler#f1", c.ID))
	got, err = s.Get(ctx, testOrg, testAssessment, "prowler#f1")
	require.NoError(t, err)
	assert.Empty(t, got.Comments)

	err = s.DeleteComment(ctx, testOrg, testAssessment, "prowler#f1", c.ID)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}
