// Package models defines the domain types for tabcache.
package models

import (
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"
)

// FileType classifies a file by its extension. Classification happens once,
// when a record is built; all type-specific behavior (binary decoding, MIME
// lookup) is selected through the resulting value.
type FileType int

const (
	FileTypeOther FileType = iota
	FileTypeCSV
	FileTypeXLSX
	FileTypeImage
	FileTypePDF
	FileTypeDocx
	FileTypeCode
	FileTypeMarkdown
	FileTypeText
)

var fileTypeNames = map[FileType]string{
	FileTypeOther:    "other",
	FileTypeCSV:      "csv",
	FileTypeXLSX:     "xlsx",
	FileTypeImage:    "image",
	FileTypePDF:      "pdf",
	FileTypeDocx:     "docx",
	FileTypeCode:     "code",
	FileTypeMarkdown: "markdown",
	FileTypeText:     "text",
}

func (t FileType) String() string {
	if s, ok := fileTypeNames[t]; ok {
		return s
	}
	return "other"
}

// MarshalJSON encodes the type as its string name.
func (t FileType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON decodes a string name back into a FileType. Unknown names
// map to FileTypeOther so that old persisted sessions keep loading.
func (t *FileType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*t = ParseFileType(s)
	return nil
}

// ParseFileType maps a string name to a FileType, defaulting to other.
func ParseFileType(s string) FileType {
	for t, name := range fileTypeNames {
		if name == s {
			return t
		}
	}
	return FileTypeOther
}

var codeExts = map[string]struct{}{
	".go": {}, ".py": {}, ".js": {}, ".ts": {}, ".jsx": {}, ".tsx": {},
	".rb": {}, ".rs": {}, ".c": {}, ".h": {}, ".cpp": {}, ".java": {},
	".sh": {}, ".sql": {}, ".r": {}, ".json": {}, ".yaml": {}, ".yml": {},
	".toml": {}, ".xml": {}, ".html": {}, ".css": {},
}

var imageExts = map[string]struct{}{
	".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".webp": {},
	".svg": {}, ".bmp": {}, ".ico": {},
}

// ClassifyPath derives a FileType from the extension of p. The backend's
// response headers are deliberately ignored: the extension is the only
// signal the editor has when it renders a tab before content arrives.
func ClassifyPath(p string) FileType {
	ext := strings.ToLower(path.Ext(p))
	switch {
	case ext == ".csv" || ext == ".tsv":
		return FileTypeCSV
	case ext == ".xlsx" || ext == ".xls":
		return FileTypeXLSX
	case ext == ".pdf":
		return FileTypePDF
	case ext == ".docx" || ext == ".doc":
		return FileTypeDocx
	case ext == ".md" || ext == ".markdown":
		return FileTypeMarkdown
	case ext == ".txt" || ext == ".log":
		return FileTypeText
	default:
		if _, ok := imageExts[ext]; ok {
			return FileTypeImage
		}
		if _, ok := codeExts[ext]; ok {
			return FileTypeCode
		}
		return FileTypeOther
	}
}

// Binary reports whether content of this type is normalized into a typed
// data URI rather than passed through as text.
func (t FileType) Binary() bool {
	switch t {
	case FileTypeImage, FileTypePDF, FileTypeDocx, FileTypeXLSX:
		return true
	}
	return false
}

var imageMIMEs = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
	".svg":  "image/svg+xml",
	".bmp":  "image/bmp",
	".ico":  "image/x-icon",
}

// MIME returns the media type used when building a data URI for a file
// named name.
func (t FileType) MIME(name string) string {
	switch t {
	case FileTypeImage:
		if m, ok := imageMIMEs[strings.ToLower(path.Ext(name))]; ok {
			return m
		}
		return "image/png"
	case FileTypePDF:
		return "application/pdf"
	case FileTypeDocx:
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case FileTypeXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "application/octet-stream"
}

// FileRecord is the cached content and metadata for one file at one path
// within one notebook. Exactly one record exists per (tier, notebook, path).
type FileRecord struct {
	NotebookID   string    `json:"notebook_id"`
	Path         string    `json:"path"`
	Name         string    `json:"name"`
	Content      string    `json:"content"`
	FileType     FileType  `json:"file_type"`
	LastModified string    `json:"last_modified"` // opaque backend version token
	Size         int64     `json:"size"`
	CachedAt     time.Time `json:"cached_at"`
	AccessCount  int64     `json:"access_count"`
	LastAccessed time.Time `json:"last_accessed"`
	// DecodeError is set when declared-binary content could not be
	// normalized; the record is kept and the rendering layer shows a
	// decode-failure state instead of the content.
	DecodeError string `json:"decode_error,omitempty"`
}

// TabID builds the composite tab identifier for a file within a notebook.
func TabID(notebookID, filePath string) string {
	return notebookID + "::" + filePath
}

// SplitTabID splits a composite tab id back into notebook id and path.
func SplitTabID(id string) (notebookID, filePath string, ok bool) {
	i := strings.Index(id, "::")
	if i <= 0 || i+2 >= len(id) {
		return "", "", false
	}
	return id[:i], id[i+2:], true
}

// Tab is a lightweight projection of a FileRecord held by a notebook's
// session. A Tab may outlive the record it points at; content is fetched
// again lazily on activation.
type Tab struct {
	ID       string   `json:"id"`
	Path     string   `json:"path"`
	Name     string   `json:"name"`
	FileType FileType `json:"file_type"`
}

// NewTab builds a Tab for a file within a notebook.
func NewTab(notebookID, filePath string) Tab {
	return Tab{
		ID:       TabID(notebookID, filePath),
		Path:     filePath,
		Name:     path.Base(filePath),
		FileType: ClassifyPath(filePath),
	}
}

// Session is the ordered tab list and active-tab pointer for one notebook.
// ActiveTabID, when non-empty, always names a member of Tabs.
type Session struct {
	NotebookID  string `json:"notebook_id"`
	Tabs        []Tab  `json:"tabs"`
	ActiveTabID string `json:"active_tab_id,omitempty"`
}

// Clone returns a deep copy so that callers never observe a half-updated
// tab list.
func (s Session) Clone() Session {
	out := s
	out.Tabs = make([]Tab, len(s.Tabs))
	copy(out.Tabs, s.Tabs)
	return out
}

// Validate checks the active-tab invariant.
func (s Session) Validate() error {
	if s.ActiveTabID == "" {
		return nil
	}
	for _, t := range s.Tabs {
		if t.ID == s.ActiveTabID {
			return nil
		}
	}
	return fmt.Errorf("models: active tab %q not in tab list", s.ActiveTabID)
}

// NotebookInfo describes one notebook known to the content store.
type NotebookInfo struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
}

// TreeNode is one entry of the backend's directory listing.
type TreeNode struct {
	Name     string     `json:"name"`
	Path     string     `json:"path"`
	Type     string     `json:"type"` // "file" or "dir"
	Children []TreeNode `json:"children,omitempty"`
}

// Flatten returns every file path in the tree, depth-first.
func (n TreeNode) Flatten() []string {
	var out []string
	if n.Type == "file" && n.Path != "" {
		out = append(out, n.Path)
	}
	for _, c := range n.Children {
		out = append(out, c.Flatten()...)
	}
	return out
}
