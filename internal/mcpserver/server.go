// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes tabcache tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/tabcache/internal/session"
	"github.com/starford/tabcache/internal/store"
)

// Server wraps the MCP server with tabcache tools.
type Server struct {
	mcp     *server.MCPServer
	mgr     *session.Manager
	content store.ContentStore
}

// New creates a new MCP server with all tabcache tools registered.
func New(mgr *session.Manager, content store.ContentStore) *Server {
	s := &Server{mgr: mgr, content: content}

	s.mcp = server.NewMCPServer(
		"Tabcache",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("preview_file",
		mcp.WithDescription("Fetch a notebook file through the preview cache and open it "+
			"as a tab. Returns the cached record as JSON, or an empty result when the "+
			"file does not exist on the backend. See the tabcache://preview-payload "+
			"resource for the payload shape."),
		mcp.WithString("notebook_id", mcp.Required(), mcp.Description("Owning notebook id")),
		mcp.WithString("path", mcp.Required(), mcp.Description("File path within the notebook (e.g. data/report.csv)")),
		mcp.WithString("last_modified", mcp.Description("Version token from a prior preview; triggers a refetch when the cached copy is older")),
	), s.previewFile)

	s.mcp.AddTool(mcp.NewTool("list_tabs",
		mcp.WithDescription("List the open tabs of a notebook in display order."),
		mcp.WithString("notebook_id", mcp.Required(), mcp.Description("Notebook id")),
	), s.listTabs)

	s.mcp.AddTool(mcp.NewTool("switch_notebook",
		mcp.WithDescription("Make a notebook the live one, restoring and validating its "+
			"persisted tab session. Returns the restored session as JSON."),
		mcp.WithString("notebook_id", mcp.Required(), mcp.Description("Notebook id to switch to")),
	), s.switchNotebook)

	s.mcp.AddTool(mcp.NewTool("close_tab",
		mcp.WithDescription("Close an open tab in the live notebook."),
		mcp.WithString("tab_id", mcp.Required(), mcp.Description("Tab id in the form <notebook_id>::<path>")),
	), s.closeTab)

	s.mcp.AddTool(mcp.NewTool("list_notebooks",
		mcp.WithDescription("List notebooks with cached content, most recently used first."),
	), s.listNotebooks)

	s.mcp.AddTool(mcp.NewTool("get_preview_contract",
		mcp.WithDescription("Returns the preview payload contract. Call this before "+
			"consuming preview_file results to understand the record shape."),
	), s.getPreviewContract)

	// Resource: preview payload contract.
	s.mcp.AddResource(
		mcp.NewResource("tabcache://preview-payload", "Preview Payload Contract",
			mcp.WithResourceDescription("JSON shape of the records returned by preview_file."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readContractResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) previewFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	notebookID, err := req.RequireString("notebook_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	lastModified := req.GetString("last_modified", "")

	rec, err := s.mgr.PreviewFile(ctx, notebookID, path, lastModified, "")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if rec == nil {
		return mcp.NewToolResultText(""), nil
	}
	out, _ := json.MarshalIndent(rec, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listTabs(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	notebookID, err := req.RequireString("notebook_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	tabs := s.mgr.TabsByNotebook(notebookID)
	if len(tabs) == 0 {
		return mcp.NewToolResultText("no open tabs"), nil
	}
	var lines []string
	for _, tab := range tabs {
		lines = append(lines, fmt.Sprintf("%s (%s)", tab.ID, tab.FileType))
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) switchNotebook(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	notebookID, err := req.RequireString("notebook_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sess, err := s.mgr.SwitchNotebook(ctx, notebookID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(sess, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) closeTab(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tabID, err := req.RequireString("tab_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.mgr.CloseTab(tabID); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("closed: %s", tabID)), nil
}

func (s *Server) listNotebooks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	nbs, err := s.content.ListNotebooks()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(nbs) == 0 {
		return mcp.NewToolResultText("no cached notebooks"), nil
	}
	var lines []string
	for _, nb := range nbs {
		lines = append(lines, fmt.Sprintf("%s\t%s", nb.ID, nb.Name))
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) getPreviewContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(PreviewPayloadContract), nil
}

func (s *Server) readContractResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "tabcache://preview-payload",
			MIMEType: "text/markdown",
			Text:     PreviewPayloadContract,
		},
	}, nil
}
