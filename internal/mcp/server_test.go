package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/codereview/internal/models"
	"github.com/joescharf/codereview/internal/scan"
	"github.com/joescharf/codereview/internal/state"
)

// ---------------------------------------------------------------------------
// Mock implementations
// ---------------------------------------------------------------------------

// mockRunner implements Runner for testing.
type mockRunner struct {
	rec    *state.Record
	err    error
	called []string
}

func (m *mockRunner) Run(_ context.Context, locator string) (*state.Record, error) {
	m.called = append(m.called, locator)
	if m.err != nil {
		return &state.Record{InputLocator: locator, TerminalError: m.err.Error()}, m.err
	}
	return m.rec, nil
}

func (m *mockRunner) Describe() string { return "graph TD\n    ingest --> gate\n" }

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func newTestServer(t *testing.T) (*Server, *mockRunner) {
	t.Helper()
	mr := &mockRunner{rec: &state.Record{
		RunID:         "01RUN",
		InputLocator:  "/src/app",
		SourceKind:    models.SourceLocal,
		FileInventory: models.FileInventory{TotalFiles: 2},
		SecurityFindings: []models.SecurityFinding{{
			FindingBase: models.FindingBase{File: "db.py", Line: models.IntPtr(2), IssueType: "SQL_INJECTION"},
			Severity:    models.LevelCritical,
			Confidence:  models.LevelHigh,
		}},
		PerformanceFindings: []models.PerformanceFinding{},
		StyleFindings:       []models.StyleFinding{},
		Warnings:            []string{"Style analysis: no text producer configured"},
		ReportLocation:      "/out/REVIEW_REPORT_x.md",
	}}
	srv := NewServer(mr, scan.New(scan.DefaultOptions(), nil), nil, "test")
	return srv, mr
}

// callToolReq builds a CallToolRequest with the given tool name and arguments.
func callToolReq(name string, args map[string]any) mcpgo.CallToolRequest {
	return mcpgo.CallToolRequest{
		Params: mcpgo.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

// resultText extracts the concatenated text from a CallToolResult.
func resultText(t *testing.T, result *mcpgo.CallToolResult) string {
	t.Helper()
	var b strings.Builder
	for _, c := range result.Content {
		tc, ok := c.(mcpgo.TextContent)
		if ok {
			b.WriteString(tc.Text)
		}
	}
	return b.String()
}

// resultJSON parses the text result as JSON into the provided target.
func resultJSON(t *testing.T, result *mcpgo.CallToolResult, target any) {
	t.Helper()
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), target))
}

// ---------------------------------------------------------------------------
// Tests: MCPServer registration
// ---------------------------------------------------------------------------

func TestNewServer(t *testing.T) {
	srv, _ := newTestServer(t)
	mcpSrv := srv.MCPServer()
	require.NotNil(t, mcpSrv, "MCPServer() should return non-nil")
}

// ---------------------------------------------------------------------------
// Tests: review_run
// ---------------------------------------------------------------------------

func TestHandleRun(t *testing.T) {
	srv, mr := newTestServer(t)

	result, err := srv.handleRun(context.Background(), callToolReq("review_run", map[string]any{"path": "/src/app"}))
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))
	assert.Equal(t, []string{"/src/app"}, mr.called)

	var out map[string]any
	resultJSON(t, result, &out)
	assert.Equal(t, "01RUN", out["run_id"])
	assert.Equal(t, 2.0, out["files_analyzed"])
	assert.Equal(t, "/out/REVIEW_REPORT_x.md", out["report_location"])
	counts := out["counts"].(map[string]any)
	assert.Equal(t, 1.0, counts["security"])
	assert.Equal(t, 0.0, counts["style"])
	health := out["health"].(map[string]any)
	assert.Equal(t, 90.0, health["total"])
	assert.NotContains(t, out, "findings")
}

func TestHandleRun_IncludeFindings(t *testing.T) {
	srv, _ := newTestServer(t)

	result, err := srv.handleRun(context.Background(), callToolReq("review_run", map[string]any{
		"path":             "/src/app",
		"include_findings": true,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "SQL_INJECTION")
	assert.Contains(t, text, "db.py")
}

func TestHandleRun_MissingPath(t *testing.T) {
	srv, mr := newTestServer(t)

	result, err := srv.handleRun(context.Background(), callToolReq("review_run", nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Empty(t, mr.called)
}

func TestHandleRun_TerminalError(t *testing.T) {
	srv, mr := newTestServer(t)
	mr.err = errors.New("no files found to analyze")

	result, err := srv.handleRun(context.Background(), callToolReq("review_run", map[string]any{"path": "/empty"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "no files found to analyze")
}

// ---------------------------------------------------------------------------
// Tests: review_scan
// ---------------------------------------------------------------------------

func TestHandleScan(t *testing.T) {
	srv, _ := newTestServer(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.py"), []byte("print('hi')\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\n"), 0o644))

	result, err := srv.handleScan(context.Background(), callToolReq("review_scan", map[string]any{
		"path":       dir,
		"list_files": true,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))

	var out scanOut
	resultJSON(t, result, &out)
	assert.Equal(t, 2, out.TotalFiles)
	assert.Equal(t, 1, out.Extensions[".py"])
	require.Len(t, out.Files, 2)
	assert.Equal(t, "app.py", out.Files[0].Path)
}

func TestHandleScan_RejectsRemote(t *testing.T) {
	srv, _ := newTestServer(t)

	result, err := srv.handleScan(context.Background(), callToolReq("review_scan", map[string]any{
		"path": "https://github.com/example/app.git",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleScan_MissingDirectory(t *testing.T) {
	srv, _ := newTestServer(t)

	result, err := srv.handleScan(context.Background(), callToolReq("review_scan", map[string]any{
		"path": filepath.Join(t.TempDir(), "nope"),
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "scan failed")
}

// ---------------------------------------------------------------------------
// Tests: review_extract_json
// ---------------------------------------------------------------------------

func TestHandleExtract(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		name  string
		text  string
		shape string
		want  string
	}{
		{"fenced list", "noise ```json [{\"a\":1}] ``` more noise", "list", `[{"a":1}]`},
		{"truncated list", `[{"a":1},{"b":2`, "list", `[{"a":1},{"b":2}]`},
		{"record in prose", `Here you go: {"ok": true} thanks`, "record", `{"ok":true}`},
		{"nothing", "no json here", "list", `[]`},
		{"auto", `{"k":"v"}`, "", `{"k":"v"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := map[string]any{"text": tt.text}
			if tt.shape != "" {
				args["shape"] = tt.shape
			}
			result, err := srv.handleExtract(context.Background(), callToolReq("review_extract_json", args))
			require.NoError(t, err)
			require.False(t, result.IsError)
			assert.JSONEq(t, tt.want, resultText(t, result))
		})
	}
}

func TestHandleExtract_InvalidShape(t *testing.T) {
	srv, _ := newTestServer(t)

	result, err := srv.handleExtract(context.Background(), callToolReq("review_extract_json", map[string]any{
		"text":  "[]",
		"shape": "table",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

// ---------------------------------------------------------------------------
// Tests: review_graph
// ---------------------------------------------------------------------------

func TestHandleGraph(t *testing.T) {
	srv, _ := newTestServer(t)

	result, err := srv.handleGraph(context.Background(), callToolReq("review_graph", nil))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "graph TD")
}
