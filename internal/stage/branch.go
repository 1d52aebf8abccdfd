package stage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/joescharf/codereview/internal/models"
	"github.com/joescharf/codereview/internal/scan"
	"github.com/joescharf/codereview/internal/tools"
)

// Options tunes a branch.
type Options struct {
	// MaxFiles caps how many files are sent to the text producer.
	MaxFiles int
	// Python is the interpreter used for Python-based analyzers.
	Python string
	// ToolTimeout bounds each analyzer invocation.
	ToolTimeout time.Duration
	// Tools replaces the branch's default analyzers when non-nil.
	Tools  []tools.Tool
	Logger *slog.Logger
}

// profile is what distinguishes one category's branch from another.
type profile struct {
	name       string
	category   models.Category
	system     string
	extensions []string
	// prioritize orders files by how many diagnostics point at them.
	prioritize bool
	// direct diagnostics are always reported as findings. The rest only
	// inform prompts, or stand in for the producer when it is missing.
	direct  func(tools.Tool) bool
	prompt  func(f models.FileEntry, content string, diags []tools.Diagnostic) string
	convert func(d tools.Diagnostic) models.Finding
}

// Branch is an Analyzer combining static analyzers with a per-file
// generative review.
type Branch struct {
	profile
	reviewer *Reviewer
	tools    []tools.Tool
	maxFiles int
	logger   *slog.Logger
}

func newBranch(p profile, r *Reviewer, defaults []tools.Tool, o Options) *Branch {
	b := &Branch{
		profile:  p,
		reviewer: r,
		tools:    o.Tools,
		maxFiles: o.MaxFiles,
		logger:   o.Logger,
	}
	if b.tools == nil {
		b.tools = defaults
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	return b
}

func (b *Branch) Name() string              { return b.name }
func (b *Branch) Category() models.Category { return b.category }

// Analyze runs the analyzers, then reviews the highest priority files.
func (b *Branch) Analyze(ctx context.Context, in Input) (Output, error) {
	log := b.logger.With("branch", b.category)
	files := in.Inventory.FilesWithExtension(b.extensions...)
	out := Output{Findings: []models.Finding{}}
	if len(files) == 0 {
		log.Info("no eligible files")
		return out, nil
	}

	var hints, direct []tools.Diagnostic
	for _, t := range b.tools {
		diags, err := t.Run(ctx, in.WorkingDirectory, files)
		switch {
		case errors.Is(err, tools.ErrUnavailable):
			log.Info("analyzer not available, continuing without it", "tool", t.Name(), "error", err)
			continue
		case err != nil:
			if ctx.Err() != nil {
				return Output{}, ctx.Err()
			}
			log.Warn("analyzer failed, continuing without it", "tool", t.Name(), "error", err)
			continue
		}
		log.Debug("analyzer finished", "tool", t.Name(), "diagnostics", len(diags))
		if b.direct != nil && b.direct(t) {
			direct = append(direct, diags...)
		} else {
			hints = append(hints, diags...)
		}
	}
	out.Findings = append(out.Findings, b.convertAll(direct)...)

	if !b.reviewer.Enabled() {
		out.Findings = append(out.Findings, b.convertAll(hints)...)
		out.Warnings = append(out.Warnings, fmt.Sprintf(
			"%s analysis: no text producer configured, reporting static analyzer results only", b.name))
		return out, nil
	}

	selected := b.selectFiles(files, hints)
	if len(selected) < len(files) {
		log.Info("limiting analysis to highest priority files", "selected", len(selected), "eligible", len(files))
	}

	var (
		attempts int
		failures int
		skipped  int
		lastErr  error
		reviewed []models.Finding
	)
	for i, f := range selected {
		if err := ctx.Err(); err != nil {
			return Output{}, err
		}
		log.Info("analyzing file", "n", i+1, "of", len(selected), "file", f.RelativePath)

		content, err := scan.ReadContent(f.Path)
		if err != nil || strings.TrimSpace(content) == "" {
			log.Warn("could not read file", "file", f.RelativePath, "error", err)
			continue
		}
		diags := tools.ForFile(hints, f.RelativePath)
		attempts++
		found, n, err := b.reviewer.Review(ctx, b.category, b.system, b.prompt(f, content, diags), f.RelativePath)
		if err != nil {
			if ctx.Err() != nil {
				return Output{}, ctx.Err()
			}
			log.Error("file review failed", "file", f.RelativePath, "error", err)
			failures++
			lastErr = err
			continue
		}
		skipped += n
		reviewed = append(reviewed, found...)
	}

	switch {
	case failures > 0 && failures == attempts:
		out.Findings = append(out.Findings, b.convertAll(hints)...)
		out.Warnings = append(out.Warnings, fmt.Sprintf(
			"%s analysis: text producer failed for all %d files (%v), reporting static analyzer results only",
			b.name, failures, lastErr))
	case failures > 0:
		out.Warnings = append(out.Warnings, fmt.Sprintf(
			"%s analysis: review failed for %d of %d files (%v)", b.name, failures, attempts, lastErr))
	}
	if skipped > 0 {
		out.Warnings = append(out.Warnings, fmt.Sprintf(
			"%s analysis: dropped %d malformed finding records", b.name, skipped))
	}
	out.Findings = append(out.Findings, reviewed...)

	log.Info("analysis complete", "findings", len(out.Findings))
	return out, nil
}

// selectFiles orders files by priority and applies the file cap.
func (b *Branch) selectFiles(files []models.FileEntry, diags []tools.Diagnostic) []models.FileEntry {
	selected := append([]models.FileEntry(nil), files...)
	if b.maxFiles <= 0 || len(selected) <= b.maxFiles {
		return selected
	}
	if b.prioritize {
		counts := tools.CountByFile(diags)
		sort.SliceStable(selected, func(i, j int) bool {
			return counts[selected[i].RelativePath] > counts[selected[j].RelativePath]
		})
	}
	return selected[:b.maxFiles]
}

func (b *Branch) convertAll(diags []tools.Diagnostic) []models.Finding {
	out := make([]models.Finding, 0, len(diags))
	seen := make(map[string]bool)
	for _, d := range diags {
		// The same weakness reported by two analyzers counts once.
		if d.CWE > 0 {
			key := fmt.Sprintf("%s:%d:%d", d.File, d.Line, d.CWE)
			if seen[key] {
				continue
			}
			seen[key] = true
		}
		out = append(out, b.convert(d))
	}
	return out
}

// lineOf returns nil for analyzers that report no line.
func lineOf(d tools.Diagnostic) *int {
	if d.Line <= 0 {
		return nil
	}
	return models.IntPtr(d.Line)
}

// issueType turns an analyzer label into an upper snake case issue type.
func issueType(label, fallback string) string {
	label = strings.TrimSpace(label)
	if label == "" {
		return fallback
	}
	var b strings.Builder
	for _, r := range label {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r - 'a' + 'A')
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			if s := b.String(); s != "" && !strings.HasSuffix(s, "_") {
				b.WriteByte('_')
			}
		}
	}
	if out := strings.TrimSuffix(b.String(), "_"); out != "" {
		return out
	}
	return fallback
}
