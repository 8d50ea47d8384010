// Package handler exposes the finding association graph over HTTP.
package handler

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"assessor/internal/finding/service"
	"assessor/pkg/domain"
	dErrors "assessor/pkg/domain-errors"
	"assessor/pkg/platform/httputil"
	"assessor/pkg/requestcontext"
)

// Handler wires finding endpoints to the finding service.
type Handler struct {
	service *service.Service
}

// New constructs a finding handler.
func New(svc *service.Service) *Handler {
	return &Handler{service: svc}
}

// Register mounts finding endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	// Flat patterns so the shared /assessments/{assessmentID} subtree merges
	// with the other contexts' routes.
	r.Get("/assessments/{assessmentID}/pillars/{pillarID}/questions/{questionID}/best-practices/{bestPracticeID}/findings", h.handleList)
	r.Post("/assessments/{assessmentID}/findings/bulk", h.handleBulkUpsert)
	r.Get("/assessments/{assessmentID}/findings/{findingID}", h.handleGet)
	r.Delete("/assessments/{assessmentID}/findings/{findingID}", h.handleDelete)
	r.Put("/assessments/{assessmentID}/findings/{findingID}/hidden", h.handleSetHidden)
	r.Post("/assessments/{assessmentID}/findings/{findingID}/comments", h.handleAddComment)
	r.Put("/assessments/{assessmentID}/findings/{findingID}/comments/{commentID}", h.handleUpdateComment)
	r.Delete("/assessments/{assessmentID}/findings/{findingID}/comments/{commentID}", h.handleDeleteComment)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	params := service.ListParams{
		Limit:      queryLimit(r),
		Cursor:     q.Get("cursor"),
		SearchTerm: q.Get("searchTerm"),
	}
	if raw := q.Get("showHidden"); raw != "" {
		show, err := strconv.ParseBool(raw)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "showHidden must be a boolean"))
			return
		}
		params.ShowHidden = show
	}

	key := domain.BestPracticeKey{
		Pillar:       domain.PillarID(chi.URLParam(r, "pillarID")),
		Question:     domain.QuestionID(chi.URLParam(r, "questionID")),
		BestPractice: domain.BestPracticeID(chi.URLParam(r, "bestPracticeID")),
	}
	page, err := h.service.ListForBestPractice(ctx, requestcontext.OrgDomain(ctx), assessmentID(r), key, params)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromFindingPage(page))
}

func (h *Handler) handleBulkUpsert(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[bulkUpsertRequest](w, r)
	if !ok {
		return
	}
	id := assessmentID(r)
	findings, edges, err := req.parse(id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.service.BulkUpsert(ctx, requestcontext.OrgDomain(ctx), id, findings, edges); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("assessment_id", id.String()).
			Int("findings", len(findings)).Msg("bulk upsert failed")
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	f, err := h.service.Get(ctx, requestcontext.OrgDomain(ctx), assessmentID(r), findingID(r))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromFinding(f))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.service.Delete(ctx, requestcontext.OrgDomain(ctx), assessmentID(r), findingID(r)); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSetHidden(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[hiddenRequest](w, r)
	if !ok {
		return
	}
	if req.Hidden == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "hidden is required"))
		return
	}
	if err := h.service.SetHidden(ctx, requestcontext.OrgDomain(ctx), assessmentID(r), findingID(r), *req.Hidden); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAddComment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[commentRequest](w, r)
	if !ok {
		return
	}
	c, err := h.service.AddComment(ctx, requestcontext.OrgDomain(ctx), assessmentID(r), findingID(r), req.Text)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, fromComment(c))
}

func (h *Handler) handleUpdateComment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[commentRequest](w, r)
	if !ok {
		return
	}
	commentID, err := domain.ParseCommentID(chi.URLParam(r, "commentID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.UpdateComment(ctx, requestcontext.OrgDomain(ctx), assessmentID(r), findingID(r), commentID, req.Text); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDeleteComment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	commentID, err := domain.ParseCommentID(chi.URLParam(r, "commentID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.DeleteComment(ctx, requestcontext.OrgDomain(ctx), assessmentID(r), findingID(r), commentID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func assessmentID(r *http.Request) domain.AssessmentID {
	return domain.AssessmentID(chi.URLParam(r, "assessmentID"))
}

// findingID reads the path segment; the tool#nativeId separator arrives
// percent-encoded and chi decodes it.
func findingID(r *http.Request) domain.FindingID {
	// Finding ids carry a "|" separator, so clients send them percent-encoded
	// and chi hands the segment back still escaped.
	raw := chi.URLParam(r, "findingID")
	if decoded, err := url.PathUnescape(raw); err == nil {
		raw = decoded
	}
	return domain.FindingID(raw)
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
