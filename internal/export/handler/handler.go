// Package handler exposes export requests, status callbacks and pre-signed
// downloads over HTTP.
package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"assessor/internal/export/models"
	"assessor/internal/export/service"
	"assessor/pkg/domain"
	"assessor/pkg/platform/httputil"
	"assessor/pkg/requestcontext"
)

// Handler wires export endpoints to the export service.
type Handler struct {
	service *service.Service
}

// New constructs an export handler.
func New(svc *service.Service) *Handler {
	return &Handler{service: svc}
}

// Register mounts export endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	// Flat patterns so the shared /assessments/{assessmentID} subtree merges
	// with the other contexts' routes.
	r.Post("/assessments/{assessmentID}/exports", h.handleRequest)
	r.Get("/assessments/{assessmentID}/exports", h.handleList)
	r.Get("/assessments/{assessmentID}/exports/{exportID}", h.handleGet)
	r.Put("/assessments/{assessmentID}/exports/{exportID}/status", h.handleUpdateStatus)
	r.Get("/assessments/{assessmentID}/exports/{exportID}/download", h.handleDownload)
}

type requestExportRequest struct {
	VersionName string `json:"versionName"`
}

func (h *Handler) handleRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[requestExportRequest](w, r)
	if !ok {
		return
	}

	e, err := h.service.Request(ctx, requestcontext.OrgDomain(ctx), assessmentID(r), req.VersionName)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, e)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	exportID, err := exportID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	e, err := h.service.Get(ctx, requestcontext.OrgDomain(ctx), assessmentID(r), exportID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, e)
}

type updateStatusRequest struct {
	Status    string `json:"status"`
	ObjectKey string `json:"objectKey,omitempty"`
	Error     string `json:"error,omitempty"`
}

func (h *Handler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	exportID, err := exportID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.Decode[updateStatusRequest](w, r)
	if !ok {
		return
	}
	status, err := domain.ParseExportStatus(req.Status)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	e, err := h.service.UpdateStatus(ctx, requestcontext.OrgDomain(ctx), assessmentID(r), exportID, models.StatusUpdate{
		Status:    status,
		ObjectKey: req.ObjectKey,
		Error:     req.Error,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, e)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	page, err := h.service.List(ctx, requestcontext.OrgDomain(ctx), assessmentID(r), service.ListParams{
		Limit:  queryLimit(r),
		Cursor: r.URL.Query().Get("cursor"),
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse{
		Exports:    page.Exports,
		NextCursor: page.NextCursor,
	})
}

type downloadResponse struct {
	URL string `json:"url"`
}

func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	exportID, err := exportID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	url, err := h.service.PresignDownload(ctx, requestcontext.OrgDomain(ctx), assessmentID(r), exportID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, downloadResponse{URL: url})
}

type listResponse struct {
	Exports    []models.FileExport `json:"exports"`
	NextCursor string              `json:"nextCursor,omitempty"`
}

func assessmentID(r *http.Request) domain.AssessmentID {
	return domain.AssessmentID(chi.URLParam(r, "assessmentID"))
}

func exportID(r *http.Request) (domain.FileExportID, error) {
	return domain.ParseFileExportID(chi.URLParam(r, "exportID"))
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
