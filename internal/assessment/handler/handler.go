// Package handler exposes the content aggregate over HTTP. Handlers decode,
// delegate, and map service errors through httputil; they hold no business
// rules of their own.
package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"assessor/internal/assessment/service"
	"assessor/pkg/domain"
	dErrors "assessor/pkg/domain-errors"
	"assessor/pkg/platform/httputil"
	"assessor/pkg/requestcontext"
)

// Handler wires assessment endpoints to the assessment service.
type Handler struct {
	service *service.Service
}

// New constructs an assessment handler.
func New(svc *service.Service) *Handler {
	return &Handler{service: svc}
}

// Register mounts assessment endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	// Flat patterns: other contexts register their own routes under the same
	// /assessments/{assessmentID} subtree, so nothing here may claim the whole
	// subtree with a nested mount.
	r.Post("/assessments", h.handleCreate)
	r.Get("/assessments", h.handleList)
	r.Get("/assessments/{assessmentID}", h.handleGet)
	r.Delete("/assessments/{assessmentID}", h.handleDelete)
	r.Post("/assessments/{assessmentID}/step", h.handleAdvanceStep)
	r.Post("/assessments/{assessmentID}/rescan", h.handleRescan)
	r.Put("/assessments/{assessmentID}/export-region", h.handleSetExportRegion)
	r.Put("/assessments/{assessmentID}/folder", h.handleAssignFolder)
	r.Patch("/assessments/{assessmentID}/pillars/{pillarID}", h.handleSetPillarDisabled)
	r.Patch("/assessments/{assessmentID}/pillars/{pillarID}/questions/{questionID}", h.handleSetQuestionFlags)
	r.Patch("/assessments/{assessmentID}/pillars/{pillarID}/questions/{questionID}/best-practices/{bestPracticeID}", h.handleSetBestPracticeChecked)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[createRequest](w, r)
	if !ok {
		return
	}
	if err := req.validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}

	a, err := h.service.Create(ctx, requestcontext.OrgDomain(ctx), req.toParams())
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("assessment_id", req.AssessmentID).Msg("create assessment failed")
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, fromAssessment(a))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	a, err := h.service.Get(ctx, requestcontext.OrgDomain(ctx), assessmentID(r))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromAssessment(a))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	params := service.ListParams{
		Limit:  queryLimit(r),
		Cursor: r.URL.Query().Get("cursor"),
	}
	if folder := r.URL.Query().Get("folder"); folder != "" {
		id := domain.FolderID(folder)
		params.Folder = &id
	}

	page, err := h.service.List(ctx, requestcontext.OrgDomain(ctx), params)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromAssessmentPage(page))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.service.Delete(ctx, requestcontext.OrgDomain(ctx), assessmentID(r)); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAdvanceStep(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[stepRequest](w, r)
	if !ok {
		return
	}
	step, stepErr, err := req.parse()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.service.AdvanceStep(ctx, requestcontext.OrgDomain(ctx), assessmentID(r), step, stepErr); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRescan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.service.Rescan(ctx, requestcontext.OrgDomain(ctx), assessmentID(r)); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSetExportRegion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[exportRegionRequest](w, r)
	if !ok {
		return
	}
	if err := h.service.SetExportRegion(ctx, requestcontext.OrgDomain(ctx), assessmentID(r), req.ExportRegion); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAssignFolder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[assignFolderRequest](w, r)
	if !ok {
		return
	}
	var folder *domain.FolderID
	if req.FolderID != nil && *req.FolderID != "" {
		id := domain.FolderID(*req.FolderID)
		folder = &id
	}
	if err := h.service.AssignFolder(ctx, requestcontext.OrgDomain(ctx), assessmentID(r), folder); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSetPillarDisabled(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[disabledRequest](w, r)
	if !ok {
		return
	}
	if req.Disabled == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "disabled is required"))
		return
	}
	err := h.service.SetPillarDisabled(ctx, requestcontext.OrgDomain(ctx), assessmentID(r),
		domain.PillarID(chi.URLParam(r, "pillarID")), *req.Disabled)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSetQuestionFlags(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[questionFlagsRequest](w, r)
	if !ok {
		return
	}
	if req.None == nil && req.Disabled == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "at least one of none or disabled is required"))
		return
	}
	err := h.service.SetQuestionFlags(ctx, requestcontext.OrgDomain(ctx), assessmentID(r),
		domain.PillarID(chi.URLParam(r, "pillarID")),
		domain.QuestionID(chi.URLParam(r, "questionID")),
		req.toFlags())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSetBestPracticeChecked(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[checkedRequest](w, r)
	if !ok {
		return
	}
	if req.Checked == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "checked is required"))
		return
	}
	err := h.service.SetBestPracticeChecked(ctx, requestcontext.OrgDomain(ctx), assessmentID(r),
		domain.PillarID(chi.URLParam(r, "pillarID")),
		domain.QuestionID(chi.URLParam(r, "questionID")),
		domain.BestPracticeID(chi.URLParam(r, "bestPracticeID")),
		*req.Checked)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
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
