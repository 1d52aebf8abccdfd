package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/joescharf/codereview/internal/extract"
	"github.com/joescharf/codereview/internal/git"
	"github.com/joescharf/codereview/internal/models"
	"github.com/joescharf/codereview/internal/report"
	"github.com/joescharf/codereview/internal/scan"
	"github.com/joescharf/codereview/internal/state"
)

// Runner runs reviews. *pipeline.Executor satisfies it.
type Runner interface {
	Run(ctx context.Context, locator string) (*state.Record, error)
	Describe() string
}

// Server exposes the review pipeline as MCP tools.
type Server struct {
	runner    Runner
	scanner   *scan.Scanner
	extractor *extract.Extractor
	scorer    *report.Scorer
	version   string
}

// NewServer creates the MCP server wrapper with all required dependencies.
func NewServer(r Runner, s *scan.Scanner, e *extract.Extractor, version string) *Server {
	if e == nil {
		e = extract.New(nil)
	}
	return &Server{
		runner:    r,
		scanner:   s,
		extractor: e,
		scorer:    report.NewScorer(),
		version:   version,
	}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("codereview", s.version, server.WithToolCapabilities(true))

	srv.AddTool(s.runTool())
	srv.AddTool(s.scanTool())
	srv.AddTool(s.extractTool())
	srv.AddTool(s.graphTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

// review_run
func (s *Server) runTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("review_run",
		mcp.WithDescription("Run a full code review of a local directory or git URL. Returns the health score, finding counts per category, warnings and the report location."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Local directory or git repository URL")),
		mcp.WithBoolean("include_findings", mcp.Description("Include every finding in the result")),
	)
	return tool, s.handleRun
}

type runOut struct {
	RunID          string             `json:"run_id"`
	Source         string             `json:"source"`
	SourceKind     models.SourceKind  `json:"source_kind,omitempty"`
	FilesAnalyzed  int                `json:"files_analyzed"`
	Health         report.HealthScore `json:"health"`
	Counts         map[string]int     `json:"counts"`
	Warnings       []string           `json:"warnings"`
	ReportLocation string             `json:"report_location,omitempty"`
	Findings       map[string]any     `json:"findings,omitempty"`
}

func (s *Server) handleRun(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: path"), nil
	}

	rec, err := s.runner.Run(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("review failed: %v", err)), nil
	}

	out := runOut{
		RunID:          rec.RunID,
		Source:         rec.InputLocator,
		SourceKind:     rec.SourceKind,
		FilesAnalyzed:  rec.FileInventory.TotalFiles,
		Health:         s.scorer.Score(rec),
		Counts:         make(map[string]int, len(models.Categories)),
		Warnings:       rec.Warnings,
		ReportLocation: rec.ReportLocation,
	}
	for _, c := range models.Categories {
		out.Counts[string(c)] = len(rec.Findings(c))
	}
	if request.GetBool("include_findings", false) {
		out.Findings = map[string]any{
			string(models.CategorySecurity):    rec.SecurityFindings,
			string(models.CategoryPerformance): rec.PerformanceFindings,
			string(models.CategoryStyle):       rec.StyleFindings,
		}
	}

	return jsonResult(out)
}

// review_scan
func (s *Server) scanTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("review_scan",
		mcp.WithDescription("Inventory the files a review of a local directory would analyze, after ignore rules and size limits."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Local directory")),
		mcp.WithBoolean("list_files", mcp.Description("Include each file's relative path and size")),
	)
	return tool, s.handleScan
}

type scanFileOut struct {
	Path      string `json:"path"`
	SizeBytes int64  `json:"size_bytes"`
}

type scanOut struct {
	Root           string         `json:"root"`
	TotalFiles     int            `json:"total_files"`
	TotalSizeBytes int64          `json:"total_size_bytes"`
	Extensions     map[string]int `json:"extensions"`
	Files          []scanFileOut  `json:"files,omitempty"`
}

func (s *Server) handleScan(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: path"), nil
	}
	if git.IsRemote(path) {
		return mcp.NewToolResultError("review_scan only accepts local directories; use review_run for repositories"), nil
	}

	inv, err := s.scanner.Scan(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("scan failed: %v", err)), nil
	}

	out := scanOut{
		Root:           inv.Root,
		TotalFiles:     inv.TotalFiles,
		TotalSizeBytes: inv.TotalSizeBytes,
		Extensions:     inv.ExtensionCounts,
	}
	if request.GetBool("list_files", false) {
		out.Files = make([]scanFileOut, len(inv.Files))
		for i, f := range inv.Files {
			out.Files[i] = scanFileOut{Path: f.RelativePath, SizeBytes: f.SizeBytes}
		}
	}
	return jsonResult(out)
}

// review_extract_json
func (s *Server) extractTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("review_extract_json",
		mcp.WithDescription("Recover JSON from free-form model output: fenced blocks, surrounding prose and truncated arrays are tolerated. Returns the parsed value, or an empty container when nothing can be recovered."),
		mcp.WithString("text", mcp.Required(), mcp.Description("Raw text containing JSON")),
		mcp.WithString("shape", mcp.Description("Expected container"), mcp.Enum("list", "record", "auto")),
	)
	return tool, s.handleExtract
}

func (s *Server) handleExtract(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := request.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: text"), nil
	}

	var shape extract.Shape
	switch v := request.GetString("shape", "auto"); v {
	case "list":
		shape = extract.ShapeList
	case "record":
		shape = extract.ShapeRecord
	case "auto", "":
		shape = extract.ShapeUnknown
	default:
		return mcp.NewToolResultError(fmt.Sprintf("invalid shape %q (want list, record or auto)", v)), nil
	}

	return jsonResult(s.extractor.Extract(text, shape))
}

// review_graph
func (s *Server) graphTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("review_graph",
		mcp.WithDescription("Describe the review pipeline as a mermaid flowchart."),
	)
	return tool, s.handleGraph
}

func (s *Server) handleGraph(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(s.runner.Describe()), nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
