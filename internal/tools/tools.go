// Package tools runs static analyzers over a working copy and reports their
// diagnostics in one shape.
package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/joescharf/codereview/internal/models"
)

// ErrUnavailable is returned when an analyzer is not installed.
var ErrUnavailable = errors.New("analyzer not available")

// DefaultTimeout bounds one analyzer invocation.
const DefaultTimeout = 60 * time.Second

// Diagnostic is one issue reported by an analyzer. File is relative to the
// analysed directory when the analyzer reports a path inside it.
type Diagnostic struct {
	Tool    string `json:"tool"`
	File    string `json:"file"`
	Line    int    `json:"line,omitempty"`
	Rule    string `json:"rule"`
	Name    string `json:"name,omitempty"`
	Message string `json:"message"`
	// Recommendation is the analyzer's own fix advice, when it has one.
	Recommendation string       `json:"recommendation,omitempty"`
	Severity       models.Level `json:"severity"`
	Confidence     models.Level `json:"confidence,omitempty"`
	Snippet        string       `json:"snippet,omitempty"`
	CWE            int          `json:"cwe,omitempty"`
	Metric         float64      `json:"metric,omitempty"`
	Grade          string       `json:"grade,omitempty"`
	Principle      string       `json:"principle,omitempty"`
}

// Tool is a static analyzer.
type Tool interface {
	Name() string
	Run(ctx context.Context, dir string, files []models.FileEntry) ([]Diagnostic, error)
}

// Runner executes a command and returns its stdout. A non-zero exit is only
// an error when the command produced no stdout.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs commands with os/exec.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUnavailable, name)
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s: %w", name, ctx.Err())
		}
		if strings.Contains(stderr.String(), "No module named") {
			return nil, fmt.Errorf("%w: %s", ErrUnavailable, strings.TrimSpace(stderr.String()))
		}
		if stdout.Len() == 0 {
			return nil, fmt.Errorf("%s %s: %s", name, strings.Join(args, " "), strings.TrimSpace(stderr.String()))
		}
	}
	return stdout.Bytes(), nil
}

// ForFile returns the diagnostics reported against rel.
func ForFile(diags []Diagnostic, rel string) []Diagnostic {
	var out []Diagnostic
	for _, d := range diags {
		if d.File == rel {
			out = append(out, d)
		}
	}
	return out
}

// CountByFile tallies diagnostics per file.
func CountByFile(diags []Diagnostic) map[string]int {
	counts := make(map[string]int)
	for _, d := range diags {
		counts[d.File]++
	}
	return counts
}

// relTo rewrites path relative to dir when it lies inside it.
func relTo(dir, path string) string {
	if path == "" {
		return path
	}
	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(dir, path)
	}
	rel, err := filepath.Rel(dir, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = DefaultTimeout
	}
	return context.WithTimeout(ctx, d)
}
