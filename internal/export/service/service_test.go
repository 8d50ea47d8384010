package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assessor/internal/export/models"
	"assessor/internal/export/store"
	"assessor/pkg/domain"
	dErrors "assessor/pkg/domain-errors"
	"assessor/pkg/requestcontext"
)

const (
	org          = domain.OrgDomain("acme.example")
	assessmentID = domain.AssessmentID("a-1")
)

type fakeSigner struct {
	lastKey string
}

func (f *fakeSigner) SignDownload(_ context.Context, objectKey string) (string, error) {
	f.lastKey = objectKey
	return "https://exports.example/" + objectKey + "?signed", nil
}

func newService(t *testing.T) (*Service, *fakeSigner) {
	t.Helper()
	st := store.NewInMemory()
	st.Seed(org, assessmentID)
	signer := &fakeSigner{}
	return New(st, signer), signer
}

func ctxAt(now time.Time) context.Context {
	ctx := requestcontext.WithActorID(context.Background(), "reviewer")
	return requestcontext.WithTime(ctx, now)
}

func TestRequestAlwaysCreatesNewRow(t *testing.T) {
	s, _ := newService(t)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	first, err := s.Request(ctxAt(base), org, assessmentID, "v1")
	require.NoError(t, err)
	assert.Equal(t, domain.ExportNotStarted, first.Status)

	second, err := s.Request(ctxAt(base.Add(time.Minute)), org, assessmentID, "v1")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	page, err := s.List(ctxAt(base), org, assessmentID, ListParams{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, page.Exports, 2)
}

func TestRequestRequiresVersionName(t *testing.T) {
	s, _ := newService(t)
	_, err := s.Request(ctxAt(time.Now()), org, assessmentID, "")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
}

func TestStatusMachine(t *testing.T) {
	s, _ := newService(t)
	ctx := ctxAt(time.Now())
	e, err := s.Request(ctx, org, assessmentID, "v1")
	require.NoError(t, err)

	// NOT_STARTED cannot jump straight to COMPLETED.
	_, err = s.UpdateStatus(ctx, org, assessmentID, e.ID, models.StatusUpdate{Status: domain.ExportCompleted, ObjectKey: "k"})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeIllegalTransition))

	_, err = s.UpdateStatus(ctx, org, assessmentID, e.ID, models.StatusUpdate{Status: domain.ExportInProgress})
	require.NoError(t, err)

	// COMPLETED requires the object key.
	_, err = s.UpdateStatus(ctx, org, assessmentID, e.ID, models.StatusUpdate{Status: domain.ExportCompleted})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))

	got, err := s.UpdateStatus(ctx, org, assessmentID, e.ID, models.StatusUpdate{Status: domain.ExportCompleted, ObjectKey: "exports/a-1.pdf"})
	require.NoError(t, err)
	assert.Equal(t, "exports/a-1.pdf", got.ObjectKey)

	// Terminal states are final.
	_, err = s.UpdateStatus(ctx, org, assessmentID, e.ID, models.StatusUpdate{Status: domain.ExportErrored, Error: "late failure"})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeIllegalTransition))
}

func TestErroredRequiresError(t *testing.T) {
	s, _ := newService(t)
	ctx := ctxAt(time.Now())
	e, err := s.Request(ctx, org, assessmentID, "v1")
	require.NoError(t, err)

	_, err = s.UpdateStatus(ctx, org, assessmentID, e.ID, models.StatusUpdate{Status: domain.ExportErrored})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))

	got, err := s.UpdateStatus(ctx, org, assessmentID, e.ID, models.StatusUpdate{Status: domain.ExportErrored, Error: "renderer crashed"})
	require.NoError(t, err)
	assert.Equal(t, "renderer crashed", got.Error)
}

func TestListNewestFirstWithCursor(t *testing.T) {
	s, _ := newService(t)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	var ids []domain.FileExportID
	for i := 0; i < 5; i++ {
		e, err := s.Request(ctxAt(base.Add(time.Duration(i)*time.Minute)), org, assessmentID, "v1")
		require.NoError(t, err)
		ids = append(ids, e.ID)
	}

	var seen []domain.FileExportID
	var token string
	for {
		page, err := s.List(ctxAt(base), org, assessmentID, ListParams{Limit: 2, Cursor: token})
		require.NoError(t, err)
		for _, e := range page.Exports {
			seen = append(seen, e.ID)
		}
		if page.NextCursor == "" {
			break
		}
		token = page.NextCursor
	}

	require.Len(t, seen, 5)
	assert.Equal(t, ids[4], seen[0])
	assert.Equal(t, ids[0], seen[4])
}

func TestPresignDownload(t *testing.T) {
	s, signer := newService(t)
	ctx := ctxAt(time.Now())
	e, err := s.Request(ctx, org, assessmentID, "v1")
	require.NoError(t, err)

	// No artifact yet: the row exists, so this is not a NotFound.
	_, err = s.PresignDownload(ctx, org, assessmentID, e.ID)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeIllegalTransition))

	_, err = s.UpdateStatus(ctx, org, assessmentID, e.ID, models.StatusUpdate{Status: domain.ExportInProgress})
	require.NoError(t, err)
	_, err = s.UpdateStatus(ctx, org, assessmentID, e.ID, models.StatusUpdate{Status: domain.ExportCompleted, ObjectKey: "exports/a-1.pdf"})
	require.NoError(t, err)

	url, err := s.PresignDownload(ctx, org, assessmentID, e.ID)
	require.NoError(t, err)
	assert.Contains(t, url, "signed")
	assert.Equal(t, "exports/a-1.pdf", signer.lastKey)

	_, err = s.PresignDownload(ctx, org, assessmentID, domain.NewFileExportID())
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

// staleReadStore serves Get from a snapshot captured earlier while writes go
// to the live store, standing in for a second request that validated the same
// row before the first one committed.
type staleReadStore struct {
	store.Store
	snapshot *models.FileExport
}

func (s *staleReadStore) Get(context.Context, domain.OrgDomain, domain.AssessmentID, domain.FileExportID) (*models.FileExport, error) {
	clone := *s.snapshot
	return &clone, nil
}

func TestUpdateStatusLostRaceCannotLeaveTerminalState(t *testing.T) {
	st := store.NewInMemory()
	st.Seed(org, assessmentID)
	live := New(st, &fakeSigner{})
	ctx := ctxAt(time.Now())

	e, err := live.Request(ctx, org, assessmentID, "v1")
	require.NoError(t, err)
	_, err = live.UpdateStatus(ctx, org, assessmentID, e.ID, models.StatusUpdate{Status: domain.ExportInProgress})
	require.NoError(t, err)

	// Two pipeline callbacks read the IN_PROGRESS row. The errored one
	// commits first.
	snapshot, err := st.Get(ctx, org, assessmentID, e.ID)
	require.NoError(t, err)
	_, err = live.UpdateStatus(ctx, org, assessmentID, e.ID, models.StatusUpdate{Status: domain.ExportErrored, Error: "renderer crashed"})
	require.NoError(t, err)

	// The loser carries the stale snapshot and must not drag the row back out
	// of ERRORED.
	loser := New(&staleReadStore{Store: st, snapshot: snapshot}, &fakeSigner{})
	_, err = loser.UpdateStatus(ctx, org, assessmentID, e.ID, models.StatusUpdate{Status: domain.ExportCompleted, ObjectKey: "exports/a-1.pdf"})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeIllegalTransition))

	got, err := st.Get(ctx, org, assessmentID, e.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExportErrored, got.Status)
}
