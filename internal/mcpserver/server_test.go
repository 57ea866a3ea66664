package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/lifeline/internal/lifeline"
	"github.com/starford/lifeline/internal/source"
	"github.com/starford/lifeline/internal/testutil"
)

var fixedNow = time.Date(2024, 12, 15, 12, 0, 0, 0, time.UTC)

func testServer(t *testing.T) *Server {
	t.Helper()
	root := testutil.TestExport(t, map[string]string{
		"career/timeline.yaml": "title: Career\n",
		"career/job.md":        "---\ntitle: New job\nstartDate: 2024-03-01\nendDate: 2024-03-01\ntags: [work]\n---\nSigned the contract.\n",
		"travel/lisbon.md":     "---\nstartDate: 2024-06-10\nendDate: 2024-06-20\n---\n# Lisbon\n\nPastel de nata.\n",
		"travel/broken.md":     "---\nstartDate: someday\n---\n",
	})
	fs, err := source.NewFS(root)
	if err != nil {
		t.Fatal(err)
	}
	agg := lifeline.NewAggregator(fs,
		lifeline.WithNormalizer(&lifeline.Normalizer{Now: func() time.Time { return fixedNow }, Location: time.UTC}),
		lifeline.WithLogger(slog.New(slog.NewJSONHandler(io.Discard, nil))))
	return New(agg, testutil.TestDB(t))
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	var result *mcp.CallToolResult
	var err error

	switch name {
	case "life_timeline":
		result, err = srv.lifeTimeline(ctx, req)
	case "list_groups":
		result, err = srv.listGroups(ctx, req)
	case "get_item":
		result, err = srv.getItem(ctx, req)
	case "search_items":
		result, err = srv.searchItems(ctx, req)
	case "get_export_format":
		result, err = srv.getExportFormat(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestLifeTimeline_DefaultWindow(t *testing.T) {
	srv := testServer(t)
	r := callTool(t, srv, "life_timeline", map[string]interface{}{})
	if r.IsError {
		t.Fatalf("error: %s", resultText(r))
	}
	var got timelineResult
	if err := json.Unmarshal([]byte(resultText(r)), &got); err != nil {
		t.Fatal(err)
	}
	if len(got.Groups) != 2 || got.Groups[0].Label != "Career" || got.Groups[1].Label != "travel" {
		t.Errorf("groups = %+v", got.Groups)
	}
	if len(got.Items) != 2 {
		t.Fatalf("items = %+v", got.Items)
	}
	if got.Items[0].ID != "career/job.md" || got.Items[1].Title != "Lisbon" {
		t.Errorf("items = %+v", got.Items)
	}
	if got.Skipped != 1 {
		t.Errorf("skipped = %d, want 1", got.Skipped)
	}
}

func TestLifeTimeline_Windows(t *testing.T) {
	srv := testServer(t)

	r := callTool(t, srv, "life_timeline", map[string]interface{}{"shortcut": "month"})
	var got timelineResult
	_ = json.Unmarshal([]byte(resultText(r)), &got)
	if len(got.Items) != 0 {
		t.Errorf("december items = %+v", got.Items)
	}

	r = callTool(t, srv, "life_timeline", map[string]interface{}{"start": "2024-06-01", "end": "2024-06-30"})
	got = timelineResult{}
	_ = json.Unmarshal([]byte(resultText(r)), &got)
	if len(got.Items) != 1 || got.Items[0].ID != "travel/lisbon.md" {
		t.Errorf("june items = %+v", got.Items)
	}

	r = callTool(t, srv, "life_timeline", map[string]interface{}{"start": "2024-06-30", "end": "2024-06-01"})
	if !r.IsError {
		t.Error("reversed window should fail")
	}
	r = callTool(t, srv, "life_timeline", map[string]interface{}{"shortcut": "decade"})
	if !r.IsError {
		t.Error("unknown shortcut should fail")
	}
}

func TestListGroups(t *testing.T) {
	srv := testServer(t)
	r := callTool(t, srv, "list_groups", map[string]interface{}{})
	var groups []lifeline.Group
	if err := json.Unmarshal([]byte(resultText(r)), &groups); err != nil {
		t.Fatal(err)
	}
	if len(groups) != 2 || groups[0].ID != 1 || groups[1].ColorIndex != 1 {
		t.Errorf("groups = %+v", groups)
	}
}

func TestGetItem(t *testing.T) {
	srv := testServer(t)
	r := callTool(t, srv, "get_item", map[string]interface{}{"id": "career/job.md"})
	var iv lifeline.Interval
	if err := json.Unmarshal([]byte(resultText(r)), &iv); err != nil {
		t.Fatalf("%s: %v", resultText(r), err)
	}
	if iv.Description != "Signed the contract." || !iv.End.Equal(iv.Start.Add(24*time.Hour)) {
		t.Errorf("item = %+v", iv)
	}

	r = callTool(t, srv, "get_item", map[string]interface{}{"id": "travel/broken.md"})
	if !r.IsError {
		t.Error("skipped item should not be found")
	}
	r = callTool(t, srv, "get_item", map[string]interface{}{})
	if !r.IsError {
		t.Error("missing id should fail")
	}
}

func TestSearchItems(t *testing.T) {
	srv := testServer(t)
	r := callTool(t, srv, "search_items", map[string]interface{}{"query": "Lisbon"})
	if !strings.Contains(resultText(r), "travel/lisbon.md") {
		t.Errorf("search = %s", resultText(r))
	}
	r = callTool(t, srv, "search_items", map[string]interface{}{"query": "submarine"})
	if resultText(r) != "no items found" {
		t.Errorf("search = %s", resultText(r))
	}
}

func TestGetExportFormat(t *testing.T) {
	srv := testServer(t)
	r := callTool(t, srv, "get_export_format", map[string]interface{}{})
	if !strings.Contains(resultText(r), "timeline.yaml") {
		t.Error("format should describe timeline.yaml")
	}
}
