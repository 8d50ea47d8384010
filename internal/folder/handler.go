package folder

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"assessor/pkg/domain"
	"assessor/pkg/platform/httputil"
	"assessor/pkg/requestcontext"
)

// Handler wires folder endpoints to the folder service.
type Handler struct {
	service *Service
}

// NewHandler constructs a folder handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{service: svc}
}

// Register mounts folder endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/folders", func(r chi.Router) {
		r.Post("/", h.handleCreate)
		r.Get("/", h.handleList)
		r.Route("/{folderID}", func(r chi.Router) {
			r.Get("/", h.handleGet)
			r.Put("/", h.handleRename)
			r.Delete("/", h.handleDelete)
		})
	})
}

type nameRequest struct {
	Name string `json:"name"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[nameRequest](w, r)
	if !ok {
		return
	}

	f, err := h.service.Create(ctx, requestcontext.OrgDomain(ctx), req.Name)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, fromFolder(f))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	f, err := h.service.Get(ctx, requestcontext.OrgDomain(ctx), folderID(r))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromFolder(f))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	page, err := h.service.List(ctx, requestcontext.OrgDomain(ctx), PageRequest{
		Limit:  queryLimit(r),
		Cursor: r.URL.Query().Get("cursor"),
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	resp := listResponse{NextCursor: page.NextCursor, Folders: []folderResponse{}}
	for i := range page.Folders {
		resp.Folders = append(resp.Folders, fromFolder(&page.Folders[i]))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleRename(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[nameRequest](w, r)
	if !ok {
		return
	}

	if err := h.service.Rename(ctx, requestcontext.OrgDomain(ctx), folderID(r), req.Name); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.service.Delete(ctx, requestcontext.OrgDomain(ctx), folderID(r)); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type folderResponse struct {
	FolderID  string    `json:"folderId"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

func fromFolder(f *Folder) folderResponse {
	return folderResponse{
		FolderID:  f.ID.String(),
		Name:      f.Name,
		CreatedAt: f.CreatedAt,
	}
}

type listResponse struct {
	Folders    []folderResponse `json:"folders"`
	NextCursor string           `json:"nextCursor,omitempty"`
}

func folderID(r *http.Request) domain.FolderID {
	return domain.FolderID(chi.URLParam(r, "folderID"))
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
