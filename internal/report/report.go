// Package report turns a finished review record into a markdown report.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joescharf/codereview/internal/state"
)

// Writer declares the record keys aggregation may set.
var Writer = state.Writer{
	Name: "aggregate",
	Keys: []state.Key{state.KeyReport, state.KeyReportLocation},
}

// FilePrefix starts every report file name.
const FilePrefix = "REVIEW_REPORT_"

// FileName returns the report file name for a run generated at t.
func FileName(t time.Time) string {
	return FilePrefix + t.Format("2006-01-02_15-04-05") + ".md"
}

// Result is a rendered report and where it was written.
type Result struct {
	Content  string
	Path     string
	JSONPath string
}

// Update is the record update for a rendered report.
func (r Result) Update() *state.Update {
	u := state.NewUpdate().Set(state.KeyReport, r.Content)
	if r.Path != "" {
		u.Set(state.KeyReportLocation, r.Path)
	}
	return u
}

// Stage renders and saves reports.
type Stage struct {
	outputDir string
	json      bool
	now       func() time.Time
	logger    *slog.Logger
}

// Option configures a Stage.
type Option func(*Stage)

// WithJSON also writes the findings as a JSON file next to the report.
func WithJSON(enabled bool) Option {
	return func(s *Stage) { s.json = enabled }
}

// WithClock overrides the time source used for file names and headers.
func WithClock(now func() time.Time) Option {
	return func(s *Stage) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the stage logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Stage) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a report stage writing into outputDir. An empty outputDir
// renders without writing anything.
func New(outputDir string, opts ...Option) *Stage {
	s := &Stage{outputDir: outputDir, now: time.Now, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// sidecar is the JSON document written next to the markdown report.
type sidecar struct {
	state.Record
	Health HealthScore `json:"health"`
}

// Run renders rec and writes it to the output directory.
func (s *Stage) Run(ctx context.Context, rec state.Record) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	now := s.now()
	res := Result{Content: Render(&rec, now)}
	if s.outputDir == "" {
		return res, nil
	}

	if err := os.MkdirAll(s.outputDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("create output directory: %w", err)
	}
	res.Path = filepath.Join(s.outputDir, FileName(now))
	if err := os.WriteFile(res.Path, []byte(res.Content), 0o644); err != nil {
		return Result{}, fmt.Errorf("write report: %w", err)
	}
	s.logger.Info("report saved", "path", res.Path)

	if s.json {
		res.JSONPath = strings.TrimSuffix(res.Path, ".md") + ".json"
		data, err := json.MarshalIndent(sidecar{Record: rec, Health: NewScorer().Score(&rec)}, "", "  ")
		if err != nil {
			return Result{}, fmt.Errorf("encode findings: %w", err)
		}
		if err := os.WriteFile(res.JSONPath, data, 0o644); err != nil {
			return Result{}, fmt.Errorf("write findings: %w", err)
		}
		s.logger.Info("findings saved", "path", res.JSONPath)
	}
	return res, nil
}
