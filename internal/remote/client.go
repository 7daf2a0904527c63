// Package remote implements the client for the notebook file backend.
// The backend is an external collaborator: this package only speaks its
// two endpoints (file fetch and directory listing) and classifies
// failures into the shared error taxonomy.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/starford/tabcache/internal/apperr"
	"github.com/starford/tabcache/internal/models"
)

// FileResponse is the backend's payload for a single file.
type FileResponse struct {
	Content      string `json:"content,omitempty"`
	DataURL      string `json:"data_url,omitempty"`
	Size         int64  `json:"size,omitempty"`
	LastModified string `json:"last_modified,omitempty"`
	Error        string `json:"error,omitempty"`
}

// Backend is the remote file API consumed by the fetch orchestrator.
type Backend interface {
	// GetFile fetches one file's content. A missing file returns
	// apperr.ErrNotFound; network and server failures return a
	// transient error.
	GetFile(ctx context.Context, notebookID, path string) (*FileResponse, error)
	// ListFiles returns the backend's directory tree for a notebook.
	ListFiles(ctx context.Context, notebookID string) (*models.TreeNode, error)
}

// Client is the HTTP implementation of Backend.
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu        sync.RWMutex
	authToken string
}

var _ Backend = (*Client)(nil)

// Config holds client configuration.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	AuthToken string
}

// New creates a new backend client.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		baseURL:   strings.TrimSuffix(cfg.BaseURL, "/"),
		authToken: cfg.AuthToken,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        100,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
	}
}

// SetAuthToken replaces the bearer token used for subsequent requests.
// Safe to call while requests are in flight; in-flight requests keep the
// token they were built with.
func (c *Client) SetAuthToken(token string) {
	c.mu.Lock()
	c.authToken = token
	c.mu.Unlock()
}

func (c *Client) token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authToken
}

func (c *Client) do(ctx context.Context, path string, query url.Values) (*http.Response, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("remote: build request: %w", err)
	}
	if token := c.token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Timeouts and connection failures are indistinguishable to
		// the caller: both are retryable on re-invocation.
		return nil, apperr.Transient(err)
	}
	return resp, nil
}

// GetFile fetches one file from the backend.
func (c *Client) GetFile(ctx context.Context, notebookID, path string) (*FileResponse, error) {
	q := url.Values{"path": {path}}
	resp, err := c.do(ctx, "/notebooks/"+url.PathEscape(notebookID)+"/file", q)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, apperr.ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, apperr.Transient(fmt.Errorf("remote: backend returned %d", resp.StatusCode))
	}

	var fr FileResponse
	if err := json.NewDecoder(resp.Body).Decode(&fr); err != nil {
		return nil, apperr.Transient(fmt.Errorf("remote: decode response: %w", err))
	}
	if fr.Error != "" {
		// Some backends report a missing file inside a 200 body.
		if strings.Contains(strings.ToLower(fr.Error), "not found") {
			return nil, apperr.ErrNotFound
		}
		return nil, apperr.Transient(fmt.Errorf("remote: backend error: %s", fr.Error))
	}
	return &fr, nil
}

// ListFiles fetches the directory tree for a notebook.
func (c *Client) ListFiles(ctx context.Context, notebookID string) (*models.TreeNode, error) {
	resp, err := c.do(ctx, "/notebooks/"+url.PathEscape(notebookID)+"/tree", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, apperr.ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, apperr.Transient(fmt.Errorf("remote: backend returned %d", resp.StatusCode))
	}

	var tree models.TreeNode
	if err := json.NewDecoder(resp.Body).Decode(&tree); err != nil {
		return nil, apperr.Transient(fmt.Errorf("remote: decode tree: %w", err))
	}
	return &tree, nil
}
