package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assessor/internal/history/models"
	"assessor/internal/history/reviewtool"
	"assessor/internal/history/service"
	"assessor/internal/history/store"
	"assessor/pkg/domain"
	dErrors "assessor/pkg/domain-errors"
	"assessor/pkg/platform/sentinel"
	"assessor/pkg/testutil"
)

const (
	handlerOrg        = domain.OrgDomain("payments.example.com")
	handlerAssessment = domain.AssessmentID("a-1")
)

type stubHeaders map[domain.AssessmentID]service.AssessmentHeader

func (h stubHeaders) Header(_ context.Context, _ domain.OrgDomain, id domain.AssessmentID) (service.AssessmentHeader, error) {
	header, ok := h[id]
	if !ok {
		return service.AssessmentHeader{}, dErrors.Newf(dErrors.CodeNotFound, "assessment %s does not exist", id)
	}
	return header, nil
}

type stubReviewTool struct {
	milestones map[domain.MilestoneID]*models.Milestone
}

func (s *stubReviewTool) GetMilestone(_ context.Context, _ reviewtool.Target, id domain.MilestoneID) (*models.Milestone, error) {
	m, ok := s.milestones[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return m, nil
}

func (s *stubReviewTool) ListMilestones(context.Context, reviewtool.Target, string, int) ([]models.MilestoneSummary, string, error) {
	return nil, "", nil
}

func newTestRouter(headers stubHeaders, tool *stubReviewTool) chi.Router {
	st := store.NewInMemory()
	st.Seed(handlerOrg, handlerAssessment)
	if tool == nil {
		tool = &stubReviewTool{}
	}
	r := chi.NewRouter()
	New(service.New(st, headers, tool)).Register(r)
	return r
}

func TestAppendThenListVersions(t *testing.T) {
	router := newTestRouter(stubHeaders{handlerAssessment: {}}, nil)

	req := testutil.NewJSONRequest(t, http.MethodPost, "/assessments/a-1/versions",
		map[string]string{"executionArn": "arn:aws:states:::execution/run"})
	rr := testutil.DoRequest(router, testutil.WithTenancy(req, handlerOrg, "pipeline"))
	require.Equal(t, http.StatusCreated, rr.Code)

	created := testutil.DecodeResponse[struct {
		Version   int    `json:"version"`
		CreatedBy string `json:"createdBy"`
	}](t, rr)
	assert.Equal(t, 1, created.Version)
	assert.Equal(t, "pipeline", created.CreatedBy)

	req = testutil.NewRequest(t, http.MethodGet, "/assessments/a-1/versions")
	rr = testutil.DoRequest(router, testutil.WithTenancy(req, handlerOrg, "reviewer"))
	require.Equal(t, http.StatusOK, rr.Code)

	page := testutil.DecodeResponse[struct {
		Versions []struct {
			Version int `json:"version"`
		} `json:"versions"`
	}](t, rr)
	require.Len(t, page.Versions, 1)
	assert.Equal(t, 1, page.Versions[0].Version)
}

func TestAppendVersionRequiresExecutionArnOverHTTP(t *testing.T) {
	router := newTestRouter(stubHeaders{handlerAssessment: {}}, nil)

	req := testutil.NewJSONRequest(t, http.MethodPost, "/assessments/a-1/versions", map[string]string{})
	rr := testutil.DoRequest(router, testutil.WithTenancy(req, handlerOrg, "pipeline"))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	testutil.AssertErrorCode(t, rr, string(dErrors.CodeBadRequest))
}

func TestGetMilestoneValidation(t *testing.T) {
	headers := stubHeaders{handlerAssessment: {ExportRegion: "eu-west-1", WafrWorkloadArn: "arn:aws:wellarchitected:::workload/w-1"}}
	tool := &stubReviewTool{milestones: map[domain.MilestoneID]*models.Milestone{}}
	router := newTestRouter(headers, tool)

	testutil.Given(t, "a non-numeric milestone id", func(t *testing.T) {
		req := testutil.NewRequest(t, http.MethodGet, "/assessments/a-1/milestones/abc")
		rr := testutil.DoRequest(router, testutil.WithTenancy(req, handlerOrg, "reviewer"))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		testutil.AssertErrorCode(t, rr, string(dErrors.CodeBadRequest))
	})

	testutil.Given(t, "a milestone the review tool does not hold", func(t *testing.T) {
		req := testutil.NewRequest(t, http.MethodGet, "/assessments/a-1/milestones/7")
		rr := testutil.DoRequest(router, testutil.WithTenancy(req, handlerOrg, "reviewer"))
		assert.Equal(t, http.StatusNotFound, rr.Code)
		testutil.AssertErrorCode(t, rr, string(dErrors.CodeNotFound))
	})
}
