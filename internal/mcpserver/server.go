// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes lifeline tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/lifeline/internal/index"
	"github.com/starford/lifeline/internal/lifeline"
)

// indexSession is the index partition used by MCP loads.
const indexSession = "mcp"

// Server wraps the MCP server with lifeline tools. Every tool call loads the
// timelines afresh.
type Server struct {
	mcp *server.MCPServer
	agg *lifeline.Aggregator
	idx index.ItemIndex
}

// New creates a new MCP server with all lifeline tools registered. idx may
// be nil, in which case search_items is not offered.
func New(agg *lifeline.Aggregator, idx index.ItemIndex) *Server {
	s := &Server{agg: agg, idx: idx}

	s.mcp = server.NewMCPServer(
		"Lifeline",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("life_timeline",
		mcp.WithDescription("Items of every timeline that overlap a window. "+
			"Defaults to the current year up to now."),
		mcp.WithString("shortcut", mcp.Description("Preset window around today"), mcp.Enum("week", "month", "year")),
		mcp.WithString("start", mcp.Description("Window start, YYYY-MM-DD or RFC 3339")),
		mcp.WithString("end", mcp.Description("Window end, YYYY-MM-DD or RFC 3339")),
	), s.lifeTimeline)

	s.mcp.AddTool(mcp.NewTool("list_groups",
		mcp.WithDescription("List the timelines as groups with their ids and colors."),
	), s.listGroups)

	s.mcp.AddTool(mcp.NewTool("get_item",
		mcp.WithDescription("Get one normalized item by id, whatever its dates."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Item id")),
	), s.getItem)

	if idx != nil {
		s.mcp.AddTool(mcp.NewTool("search_items",
			mcp.WithDescription("Full-text search through item titles, descriptions and tags."),
			mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		), s.searchItems)
	}

	s.mcp.AddTool(mcp.NewTool("get_export_format",
		mcp.WithDescription("Returns the layout of a local timeline export. "+
			"Call this before writing item files."),
	), s.getExportFormat)

	s.mcp.AddResource(
		mcp.NewResource("lifeline://export-format", "Export Format",
			mcp.WithResourceDescription("Directory and Markdown layout of a local timeline export."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readExportFormatResource,
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

func (s *Server) load(ctx context.Context) (*lifeline.Dataset, error) {
	ds, err := s.agg.Load(ctx)
	if err != nil {
		return nil, err
	}
	if s.idx != nil {
		if err := s.idx.Replace(indexSession, ds.Intervals); err != nil {
			return nil, fmt.Errorf("index: %w", err)
		}
	}
	return ds, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

// window resolves the tool arguments: explicit bounds win over a shortcut.
func (s *Server) window(req mcp.CallToolRequest) (lifeline.Window, error) {
	now := s.agg.Now()
	start, end := req.GetString("start", ""), req.GetString("end", "")
	if start != "" || end != "" {
		w := lifeline.DefaultWindow(now)
		if start != "" {
			t, err := lifeline.ParseDate(start, now.Location())
			if err != nil {
				return lifeline.Window{}, fmt.Errorf("start: %w", err)
			}
			w.Start = t
		}
		if end != "" {
			t, err := lifeline.ParseDate(end, now.Location())
			if err != nil {
				return lifeline.Window{}, fmt.Errorf("end: %w", err)
			}
			w.End = t
		}
		return w, w.Validate()
	}
	if sc := req.GetString("shortcut", ""); sc != "" {
		return lifeline.ShortcutWindow(lifeline.Shortcut(sc), now)
	}
	return lifeline.DefaultWindow(now), nil
}

type timelineResult struct {
	Window  lifeline.Window     `json:"window"`
	Groups  []lifeline.Group    `json:"groups"`
	Items   []lifeline.Interval `json:"items"`
	Skipped int                 `json:"skipped,omitempty"`
}

func (s *Server) lifeTimeline(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	w, err := s.window(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ds, err := s.load(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	items := lifeline.Visible(ds.Intervals, w)
	if items == nil {
		items = []lifeline.Interval{}
	}
	return jsonResult(timelineResult{
		Window:  w,
		Groups:  ds.Groups,
		Items:   items,
		Skipped: len(ds.Skipped),
	})
}

func (s *Server) listGroups(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ds, err := s.load(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(ds.Groups) == 0 {
		return mcp.NewToolResultText("no timelines found"), nil
	}
	return jsonResult(ds.Groups)
}

func (s *Server) getItem(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ds, err := s.load(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	for _, iv := range ds.Intervals {
		if iv.ID == id {
			return jsonResult(iv)
		}
	}
	return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
}

func (s *Server) searchItems(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if _, err := s.load(ctx); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	hits, err := s.idx.Search(indexSession, query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(hits) == 0 {
		return mcp.NewToolResultText("no items found"), nil
	}
	return jsonResult(hits)
}

func (s *Server) getExportFormat(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(ItemFormatContract), nil
}

func (s *Server) readExportFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "lifeline://export-format",
			MIMEType: "text/markdown",
			Text:     ItemFormatContract,
		},
	}, nil
}
