package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/tabcache/internal/apperr"
	"github.com/starford/tabcache/internal/checksum"
	"github.com/starford/tabcache/internal/models"
	"github.com/starford/tabcache/internal/session"
	"github.com/starford/tabcache/internal/store"
)

// Handler holds API route handlers.
type Handler struct {
	mgr     *session.Manager
	content store.ContentStore
}

// NewHandler creates a new Handler.
func NewHandler(mgr *session.Manager, content store.ContentStore) *Handler {
	return &Handler{mgr: mgr, content: content}
}

// wildcardPath extracts the trailing path from the URL. Supports encoded
// slashes from generated clients (e.g. dir%2Ffile.csv).
func wildcardPath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// PreviewFile handles GET /notebooks/{notebookID}/files/*.
//
// Query parameters: last_modified (the backend version token known to the
// caller, enables staleness detection) and notebook_name (optional
// metadata). A file absent at every backend path answers 204: absence is
// not an error.
func (h *Handler) PreviewFile(w http.ResponseWriter, r *http.Request) {
	notebookID := chi.URLParam(r, "notebookID")
	path := wildcardPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	q := r.URL.Query()

	rec, err := h.mgr.PreviewFile(r.Context(), notebookID, path, q.Get("last_modified"), q.Get("notebook_name"))
	if err != nil {
		if apperr.IsTransient(err) {
			writeJSON(w, http.StatusBadGateway, errorBody("backend unavailable, retry"))
			return
		}
		writeError(w, http.StatusInternalServerError, err,
			slog.String("notebook", notebookID), slog.String("path", path))
		return
	}
	if rec == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("ETag", checksum.ETag(rec.Content))
	writeJSON(w, http.StatusOK, rec)
}

// PreviewFileInSplit handles GET /notebooks/{notebookID}/split/*.
func (h *Handler) PreviewFileInSplit(w http.ResponseWriter, r *http.Request) {
	notebookID := chi.URLParam(r, "notebookID")
	path := wildcardPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}

	rec, err := h.mgr.PreviewFileInSplit(r.Context(), notebookID, path, r.URL.Query().Get("last_modified"))
	if err != nil {
		if apperr.IsTransient(err) {
			writeJSON(w, http.StatusBadGateway, errorBody("backend unavailable, retry"))
			return
		}
		writeError(w, http.StatusInternalServerError, err,
			slog.String("notebook", notebookID), slog.String("path", path))
		return
	}
	if rec == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// UpdateContent handles PUT /notebooks/{notebookID}/files/*.
func (h *Handler) UpdateContent(w http.ResponseWriter, r *http.Request) {
	notebookID := chi.URLParam(r, "notebookID")
	path := wildcardPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, 50<<20)
	var req UpdateContentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid body"))
		return
	}

	rec, err := h.mgr.UpdateContent(notebookID, path, req.Content)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err,
			slog.String("notebook", notebookID), slog.String("path", path))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// TabsByNotebook handles GET /notebooks/{notebookID}/tabs.
func (h *Handler) TabsByNotebook(w http.ResponseWriter, r *http.Request) {
	notebookID := chi.URLParam(r, "notebookID")
	tabs := h.mgr.TabsByNotebook(notebookID)
	writeJSON(w, http.StatusOK, TabListResponse{NotebookID: notebookID, Tabs: tabs})
}

// SwitchNotebook handles POST /notebooks/{notebookID}/switch.
func (h *Handler) SwitchNotebook(w http.ResponseWriter, r *http.Request) {
	notebookID := chi.URLParam(r, "notebookID")
	s, err := h.mgr.SwitchNotebook(r.Context(), notebookID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err, slog.String("notebook", notebookID))
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// ClearCache handles DELETE /notebooks/{notebookID}/cache.
func (h *Handler) ClearCache(w http.ResponseWriter, r *http.Request) {
	notebookID := chi.URLParam(r, "notebookID")
	if err := h.mgr.ClearNotebook(notebookID); err != nil {
		writeError(w, http.StatusInternalServerError, err, slog.String("notebook", notebookID))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListNotebooks handles GET /notebooks.
func (h *Handler) ListNotebooks(w http.ResponseWriter, r *http.Request) {
	nbs, err := h.content.ListNotebooks()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if nbs == nil {
		nbs = []models.NotebookInfo{}
	}
	writeJSON(w, http.StatusOK, NotebookListResponse{Notebooks: nbs})
}

// CloseTab handles DELETE /tabs/*. The wildcard is the composite tab id
// (notebookID::path), which may itself contain slashes.
func (h *Handler) CloseTab(w http.ResponseWriter, r *http.Request) {
	tabID := wildcardPath(r)
	if tabID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("tab id is required"))
		return
	}
	if err := h.mgr.CloseTab(tabID); err != nil {
		writeJSON(w, http.StatusNotFound, errorBody(err.Error()))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ReorderTabs handles POST /tabs/reorder.
func (h *Handler) ReorderTabs(w http.ResponseWriter, r *http.Request) {
	var req ReorderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid body"))
		return
	}
	if req.NotebookID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("notebook_id is required"))
		return
	}
	if err := h.mgr.ReorderTabs(req.NotebookID, req.TabIDs); err != nil {
		writeJSON(w, http.StatusConflict, errorBody(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, TabListResponse{
		NotebookID: req.NotebookID,
		Tabs:       h.mgr.TabsByNotebook(req.NotebookID),
	})
}

// SetDirty handles PUT /tabs/dirty.
func (h *Handler) SetDirty(w http.ResponseWriter, r *http.Request) {
	var req SetDirtyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid body"))
		return
	}
	if req.TabID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("tab_id is required"))
		return
	}
	h.mgr.SetDirty(req.TabID, req.Dirty)
	writeJSON(w, http.StatusOK, DirtyResponse{TabID: req.TabID, Dirty: req.Dirty})
}

// GetDirty handles GET /tabs/dirty?tab_id=...
func (h *Handler) GetDirty(w http.ResponseWriter, r *http.Request) {
	tabID := r.URL.Query().Get("tab_id")
	if tabID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("tab_id is required"))
		return
	}
	writeJSON(w, http.StatusOK, DirtyResponse{TabID: tabID, Dirty: h.mgr.IsDirty(tabID)})
}
