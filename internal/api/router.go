package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/tabcache/internal/session"
	"github.com/starford/tabcache/internal/store"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(mgr *session.Manager, content store.ContentStore, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(mgr, content)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Notebooks.
	r.Get("/notebooks", h.ListNotebooks)
	r.Post("/notebooks/{notebookID}/switch", h.SwitchNotebook)
	r.Get("/notebooks/{notebookID}/tabs", h.TabsByNotebook)
	r.Delete("/notebooks/{notebookID}/cache", h.ClearCache)

	// File preview and editing.
	r.Get("/notebooks/{notebookID}/files/*", h.PreviewFile)
	r.Put("/notebooks/{notebookID}/files/*", h.UpdateContent)
	r.Get("/notebooks/{notebookID}/split/*", h.PreviewFileInSplit)

	// Tabs. Dirty routes are registered before the wildcard so the
	// literal segment wins.
	r.Get("/tabs/dirty", h.GetDirty)
	r.Put("/tabs/dirty", h.SetDirty)
	r.Post("/tabs/reorder", h.ReorderTabs)
	r.Delete("/tabs/*", h.CloseTab)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
