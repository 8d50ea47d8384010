package folder

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	assessmentmodels "assessor/internal/assessment/models"
	assessmentstore "assessor/internal/assessment/store"
	"assessor/pkg/domain"
	dErrors "assessor/pkg/domain-errors"
	"assessor/pkg/requestcontext"
)

const org = domain.OrgDomain("acme.example")

func newService(t *testing.T) (*Service, *assessmentstore.InMemory) {
	t.Helper()
	assessments := assessmentstore.NewInMemory()
	st := NewInMemory(func(org domain.OrgDomain, id domain.FolderID) {
		_ = assessments.UnassignFolder(context.Background(), org, id)
	})
	return NewService(st), assessments
}

func testCtx() context.Context {
	return requestcontext.WithTime(context.Background(), time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
}

func TestCreateAndGet(t *testing.T) {
	s, _ := newService(t)
	ctx := testCtx()

	f, err := s.Create(ctx, org, "production accounts")
	require.NoError(t, err)
	require.NotEmpty(t, f.ID)

	got, err := s.Get(ctx, org, f.ID)
	require.NoError(t, err)
	assert.Equal(t, "production accounts", got.Name)
}

func TestCreateValidation(t *testing.T) {
	s, _ := newService(t)
	ctx := testCtx()

	_, err := s.Create(ctx, org, "   ")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))

	_, err = s.Create(ctx, org, "production accounts")
	require.NoError(t, err)
	_, err = s.Create(ctx, org, "production accounts")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
}

func TestRename(t *testing.T) {
	s, _ := newService(t)
	ctx := testCtx()

	a, err := s.Create(ctx, org, "alpha")
	require.NoError(t, err)
	_, err = s.Create(ctx, org, "beta")
	require.NoError(t, err)

	err = s.Rename(ctx, org, a.ID, "beta")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))

	require.NoError(t, s.Rename(ctx, org, a.ID, "gamma"))
	got, err := s.Get(ctx, org, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "gamma", got.Name)

	err = s.Rename(ctx, org, "missing", "delta")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestListPagesNameAscending(t *testing.T) {
	s, _ := newService(t)
	ctx := testCtx()
	for i := 0; i < 5; i++ {
		_, err := s.Create(ctx, org, fmt.Sprintf("folder-%d", i))
		require.NoError(t, err)
	}

	var names []string
	var token string
	for {
		page, err := s.List(ctx, org, PageRequest{Limit: 2, Cursor: token})
		require.NoError(t, err)
		for _, f := range page.Folders {
			names = append(names, f.Name)
		}
		if page.NextCursor == "" {
			break
		}
		token = page.NextCursor
	}
	assert.Equal(t, []string{"folder-0", "folder-1", "folder-2", "folder-3", "folder-4"}, names)
}

func TestDeleteUnassignsMembers(t *testing.T) {
	s, assessments := newService(t)
	ctx := testCtx()

	f, err := s.Create(ctx, org, "to delete")
	require.NoError(t, err)

	a := seedAssessment(t, assessments, "a-1")
	require.NoError(t, assessments.SetFolder(ctx, org, a, &f.ID))

	require.NoError(t, s.Delete(ctx, org, f.ID))

	got, err := assessments.Get(ctx, org, a)
	require.NoError(t, err)
	assert.Nil(t, got.Folder)

	err = s.Delete(ctx, org, f.ID)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func seedAssessment(t *testing.T, st *assessmentstore.InMemory, id domain.AssessmentID) domain.AssessmentID {
	t.Helper()
	a, err := assessmentmodels.NewAssessment(org, id, "prod account", "reviewer",
		"arn:aws:iam::123456789012:role/assessor", []string{"eu-west-1"}, nil, time.Now())
	require.NoError(t, err)
	require.NoError(t, st.Create(context.Background(), a))
	return id
}
