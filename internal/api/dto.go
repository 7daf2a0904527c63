package api

import "github.com/starford/tabcache/internal/models"

// UpdateContentRequest is the request body for a local content edit.
type UpdateContentRequest struct {
	Content string `json:"content"`
}

// SetDirtyRequest is the request body for flagging unsaved edits.
type SetDirtyRequest struct {
	TabID string `json:"tab_id"`
	Dirty bool   `json:"dirty"`
}

// DirtyResponse reports a tab's unsaved-edits flag.
type DirtyResponse struct {
	TabID string `json:"tab_id"`
	Dirty bool   `json:"dirty"`
}

// ReorderRequest is the request body for rearranging tabs.
type ReorderRequest struct {
	NotebookID string   `json:"notebook_id"`
	TabIDs     []string `json:"tab_ids"`
}

// TabListResponse wraps a notebook's tab list.
type TabListResponse struct {
	NotebookID string       `json:"notebook_id"`
	Tabs       []models.Tab `json:"tabs"`
}

// NotebookListResponse wraps the cached-notebook listing.
type NotebookListResponse struct {
	Notebooks []models.NotebookInfo `json:"notebooks"`
}
