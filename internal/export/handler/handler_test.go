package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assessor/internal/export/service"
	"assessor/internal/export/store"
	"assessor/pkg/domain"
	dErrors "assessor/pkg/domain-errors"
	"assessor/pkg/testutil"
)

const (
	handlerOrg        = domain.OrgDomain("payments.example.com")
	handlerAssessment = domain.AssessmentID("a-1")
)

type stubSigner struct{}

func (stubSigner) SignDownload(_ context.Context, objectKey string) (string, error) {
	return "https://exports.example/" + objectKey + "?signed", nil
}

func newTestRouter() chi.Router {
	st := store.NewInMemory()
	st.Seed(handlerOrg, handlerAssessment)
	r := chi.NewRouter()
	New(service.New(st, stubSigner{})).Register(r)
	return r
}

func requestExportOverHTTP(t *testing.T, router chi.Router) string {
	t.Helper()
	req := testutil.NewJSONRequest(t, http.MethodPost, "/assessments/a-1/exports",
		map[string]string{"versionName": "v1"})
	rr := testutil.DoRequest(router, testutil.WithTenancy(req, handlerOrg, "reviewer"))
	require.Equal(t, http.StatusCreated, rr.Code)

	created := testutil.DecodeResponse[struct {
		FileExportID string `json:"fileExportId"`
		Status       string `json:"status"`
	}](t, rr)
	assert.Equal(t, "NOT_STARTED", created.Status)
	require.NotEmpty(t, created.FileExportID)
	return created.FileExportID
}

func TestRequestExportOverHTTP(t *testing.T) {
	router := newTestRouter()
	requestExportOverHTTP(t, router)
}

func TestUpdateStatusValidation(t *testing.T) {
	router := newTestRouter()
	exportID := requestExportOverHTTP(t, router)

	testutil.Given(t, "a status outside the machine", func(t *testing.T) {
		req := testutil.NewJSONRequest(t, http.MethodPut, "/assessments/a-1/exports/"+exportID+"/status",
			map[string]string{"status": "DONEish"})
		rr := testutil.DoRequest(router, testutil.WithTenancy(req, handlerOrg, "pipeline"))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		testutil.AssertErrorCode(t, rr, string(dErrors.CodeBadRequest))
	})

	testutil.Given(t, "a jump straight to COMPLETED", func(t *testing.T) {
		req := testutil.NewJSONRequest(t, http.MethodPut, "/assessments/a-1/exports/"+exportID+"/status",
			map[string]string{"status": "COMPLETED", "objectKey": "exports/a-1.pdf"})
		rr := testutil.DoRequest(router, testutil.WithTenancy(req, handlerOrg, "pipeline"))
		assert.Equal(t, http.StatusConflict, rr.Code)
		testutil.AssertErrorCode(t, rr, string(dErrors.CodeIllegalTransition))
	})
}

func TestDownloadBeforeCompletionIsRejected(t *testing.T) {
	router := newTestRouter()
	exportID := requestExportOverHTTP(t, router)

	req := testutil.NewRequest(t, http.MethodGet, "/assessments/a-1/exports/"+exportID+"/download")
	rr := testutil.DoRequest(router, testutil.WithTenancy(req, handlerOrg, "reviewer"))
	assert.Equal(t, http.StatusConflict, rr.Code)
	testutil.AssertErrorCode(t, rr, string(dErrors.CodeIllegalTransition))
}

func TestDownloadCompletedExportReturnsSignedURL(t *testing.T) {
	router := newTestRouter()
	exportID := requestExportOverHTTP(t, router)

	for _, body := range []map[string]string{
		{"status": "IN_PROGRESS"},
		{"status": "COMPLETED", "objectKey": "exports/a-1.pdf"},
	} {
		req := testutil.NewJSONRequest(t, http.MethodPut, "/assessments/a-1/exports/"+exportID+"/status", body)
		rr := testutil.DoRequest(router, testutil.WithTenancy(req, handlerOrg, "pipeline"))
		require.Equal(t, http.StatusOK, rr.Code)
	}

	req := testutil.NewRequest(t, http.MethodGet, "/assessments/a-1/exports/"+exportID+"/download")
	rr := testutil.DoRequest(router, testutil.WithTenancy(req, handlerOrg, "reviewer"))
	require.Equal(t, http.StatusOK, rr.Code)

	got := testutil.DecodeResponse[struct {
		URL string `json:"url"`
	}](t, rr)
	assert.Equal(t, "https://exports.example/exports/a-1.pdf?signed", got.URL)
}
