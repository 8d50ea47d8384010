package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assessor/internal/finding/models"
	"assessor/internal/finding/store"
	"assessor/pkg/cursor"
	"assessor/pkg/domain"
	dErrors "assessor/pkg/domain-errors"
)

const (
	org          = domain.OrgDomain("acme.example")
	assessmentID = domain.AssessmentID("a-1")
)

var bpKey = domain.BestPracticeKey{Pillar: "SEC", Question: "SEC01", BestPractice: "SEC01-BP01"}

func newService(t *testing.T) (*Service, *store.InMemory) {
	t.Helper()
	st := store.NewInMemory()
	st.Seed(org, assessmentID)
	return New(st), st
}

func loadFindings(t *testing.T, s *Service, n int) {
	t.Helper()
	var findings []models.Finding
	var edges []models.Association
	for i := 0; i < n; i++ {
		id := domain.FindingID(fmt.Sprintf("prowler#f%02d", i))
		findings = append(findings, models.Finding{
			ID:           id,
			Severity:     domain.SeverityHigh,
			StatusCode:   "FAIL",
			StatusDetail: "open security group",
		})
		edges = append(edges, models.Association{
			FindingID:    id,
			Pillar:       bpKey.Pillar,
			Question:     bpKey.Question,
			BestPractice: bpKey.BestPractice,
		})
	}
	require.NoError(t, s.BulkUpsert(context.Background(), org, assessmentID, findings, edges))
}

func TestListPaginatesWithoutSkipsOrRepeats(t *testing.T) {
	ctx := context.Background()
	s, _ := newService(t)
	loadFindings(t, s, 5)

	var seen []domain.FindingID
	var token string
	pages := 0
	for {
		page, err := s.ListForBestPractice(ctx, org, assessmentID, bpKey, ListParams{Limit: 2, Cursor: token})
		require.NoError(t, err)
		for _, f := range page.Findings {
			seen = append(seen, f.ID)
		}
		pages++
		if page.NextCursor == "" {
			break
		}
		token = page.NextCursor
	}

	assert.Equal(t, 3, pages)
	require.Len(t, seen, 5)
	for i := 1; i < len(seen); i++ {
		assert.Less(t, seen[i-1], seen[i])
	}
}

func TestListLastFullPageEndsCursor(t *testing.T) {
	ctx := context.Background()
	s, _ := newService(t)
	loadFindings(t, s, 4)

	page, err := s.ListForBestPractice(ctx, org, assessmentID, bpKey, ListParams{Limit: 2})
	require.NoError(t, err)
	require.NotEmpty(t, page.NextCursor)

	page, err = s.ListForBestPractice(ctx, org, assessmentID, bpKey, ListParams{Limit: 2, Cursor: page.NextCursor})
	require.NoError(t, err)
	assert.Len(t, page.Findings, 2)
	assert.Empty(t, page.NextCursor)
}

func TestListRejectsForeignCursor(t *testing.T) {
	ctx := context.Background()
	s, _ := newService(t)
	loadFindings(t, s, 1)

	token := cursor.Encode(cursor.Position{Scope: cursor.ScopeAssessments, Key: "x"})
	_, err := s.ListForBestPractice(ctx, org, assessmentID, bpKey, ListParams{Limit: 2, Cursor: token})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidCursor))
}

func TestHiddenFindingLeavesListingsAndCounts(t *testing.T) {
	ctx := context.Background()
	s, st := newService(t)
	loadFindings(t, s, 3)

	require.NoError(t, s.SetHidden(ctx, org, assessmentID, "prowler#f01", true))

	page, err := s.ListForBestPractice(ctx, org, assessmentID, bpKey, ListParams{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, page.Findings, 2)

	counts, err := s.CountPerBestPractice(ctx, org, assessmentID)
	require.NoError(t, err)
	assert.Equal(t, 2, counts[bpKey])

	// The association edges stay in place while hidden.
	assert.Len(t, st.Edges(org, assessmentID), 3)

	page, err = s.ListForBestPractice(ctx, org, assessmentID, bpKey, ListParams{Limit: 10, ShowHidden: true})
	require.NoError(t, err)
	assert.Len(t, page.Findings, 3)

	// Unhide restores it everywhere.
	require.NoError(t, s.SetHidden(ctx, org, assessmentID, "prowler#f01", false))
	counts, err = s.CountPerBestPractice(ctx, org, assessmentID)
	require.NoError(t, err)
	assert.Equal(t, 3, counts[bpKey])
}

func TestBulkUpsertRejectsMalformedFindingID(t *testing.T) {
	s, _ := newService(t)
	err := s.BulkUpsert(context.Background(), org, assessmentID,
		[]models.Finding{{ID: "no-separator", StatusCode: "FAIL"}}, nil)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
}

func TestCommentsRequireText(t *testing.T) {
	ctx := context.Background()
	s, _ := newService(t)
	loadFindings(t, s, 1)

	_, err := s.AddComment(ctx, org, assessmentID, "prowler#f00", "  ")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))

	c, err := s.AddComment(ctx, org, assessmentID, "prowler#f00", "needs review")
	require.NoError(t, err)
	require.NotNil(t, c)

	err = s.UpdateComment(ctx, org, assessmentID, "prowler#f00", c.ID, "")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))

	require.NoError(t, s.UpdateComment(ctx, org, assessmentID, "prowler#f00", c.ID, "resolved"))
	require.NoError(t, s.DeleteComment(ctx, org, assessmentID, "prowler#f00", c.ID))

	err = s.DeleteComment(ctx, org, assessmentID, "prowler#f00", c.ID)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestGetMissingFindingIsNotFound(t *testing.T) {
	s, _ := newService(t)
	_, err := s.Get(context.Background(), org, assessmentID, "prowler#missing")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}
