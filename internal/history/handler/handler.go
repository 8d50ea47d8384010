// Package handler exposes the version ledger and milestone read-through over
// HTTP.
package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"assessor/internal/history/models"
	"assessor/internal/history/service"
	"assessor/pkg/domain"
	dErrors "assessor/pkg/domain-errors"
	"assessor/pkg/platform/httputil"
	"assessor/pkg/requestcontext"
)

// Handler wires history endpoints to the history service.
type Handler struct {
	service *service.Service
}

// New constructs a history handler.
func New(svc *service.Service) *Handler {
	return &Handler{service: svc}
}

// Register mounts history endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	// Flat patterns so the shared /assessments/{assessmentID} subtree merges
	// with the other contexts' routes.
	r.Post("/assessments/{assessmentID}/versions", h.handleAppendVersion)
	r.Get("/assessments/{assessmentID}/versions", h.handleListVersions)
	r.Get("/assessments/{assessmentID}/milestones", h.handleListMilestones)
	r.Get("/assessments/{assessmentID}/milestones/{milestoneID}", h.handleGetMilestone)
}

type appendVersionRequest struct {
	ExecutionArn    string     `json:"executionArn"`
	FinishedAt      *time.Time `json:"finishedAt,omitempty"`
	Error           string     `json:"error,omitempty"`
	WafrWorkloadArn string     `json:"wafrWorkloadArn,omitempty"`
	ExportRegion    string     `json:"exportRegion,omitempty"`
}

func (h *Handler) handleAppendVersion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[appendVersionRequest](w, r)
	if !ok {
		return
	}

	v, err := h.service.AppendVersion(ctx, requestcontext.OrgDomain(ctx), assessmentID(r), service.AppendParams{
		ExecutionArn:    req.ExecutionArn,
		FinishedAt:      req.FinishedAt,
		Error:           req.Error,
		WafrWorkloadArn: req.WafrWorkloadArn,
		ExportRegion:    req.ExportRegion,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, fromVersion(v))
}

func (h *Handler) handleListVersions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	page, err := h.service.ListVersions(ctx, requestcontext.OrgDomain(ctx), assessmentID(r), service.ListParams{
		Limit:  queryLimit(r),
		Cursor: r.URL.Query().Get("cursor"),
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	resp := versionListResponse{NextCursor: page.NextCursor, Versions: []versionResponse{}}
	for i := range page.Versions {
		resp.Versions = append(resp.Versions, fromVersion(&page.Versions[i]))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetMilestone(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	raw := chi.URLParam(r, "milestoneID")
	id, err := strconv.Atoi(raw)
	if err != nil || id < 1 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "milestone id must be a positive integer"))
		return
	}

	m, err := h.service.GetMilestone(ctx, requestcontext.OrgDomain(ctx), assessmentID(r),
		domain.MilestoneID(id), r.URL.Query().Get("region"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, m)
}

func (h *Handler) handleListMilestones(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	page, err := h.service.ListMilestones(ctx, requestcontext.OrgDomain(ctx), assessmentID(r),
		r.URL.Query().Get("region"), service.ListParams{
			Limit:  queryLimit(r),
			Cursor: r.URL.Query().Get("cursor"),
		})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, milestoneListResponse{
		Milestones: page.Milestones,
		NextCursor: page.NextCursor,
	})
}

type versionResponse struct {
	AssessmentID    string     `json:"assessmentId"`
	Version         int        `json:"version"`
	CreatedAt       time.Time  `json:"createdAt"`
	CreatedBy       string     `json:"createdBy"`
	ExecutionArn    string     `json:"executionArn"`
	FinishedAt      *time.Time `json:"finishedAt,omitempty"`
	Error           string     `json:"error,omitempty"`
	WafrWorkloadArn string     `json:"wafrWorkloadArn,omitempty"`
	ExportRegion    string     `json:"exportRegion,omitempty"`
}

func fromVersion(v *models.AssessmentVersion) versionResponse {
	return versionResponse{
		AssessmentID:    v.AssessmentID.String(),
		Version:         v.Version,
		CreatedAt:       v.CreatedAt,
		CreatedBy:       v.CreatedBy,
		ExecutionArn:    v.ExecutionArn,
		FinishedAt:      v.FinishedAt,
		Error:           v.Error,
		WafrWorkloadArn: v.WafrWorkloadArn,
		ExportRegion:    v.ExportRegion,
	}
}

type versionListResponse struct {
	Versions   []versionResponse `json:"versions"`
	NextCursor string            `json:"nextCursor,omitempty"`
}

type milestoneListResponse struct {
	Milestones []models.MilestoneSummary `json:"milestones"`
	NextCursor string                    `json:"nextCursor,omitempty"`
}

func assessmentID(r *http.Request) domain.AssessmentID {
	return domain.AssessmentID(chi.URLParam(r, "assessmentID"))
}

func queryLimit(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0
	}
	return limit
}
