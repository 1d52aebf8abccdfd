// Package state holds the review record shared by every pipeline stage and
// the merge protocol that lets concurrent stages write to it safely.
package state

import (
	"math/rand"
	"slices"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/joescharf/codereview/internal/models"
)

// Record is the single review document threaded through a run.
//
// A nil findings slice means the owning branch never wrote it; an empty,
// non-nil slice means it ran and found nothing.
type Record struct {
	RunID     string    `json:"run_id"`
	StartedAt time.Time `json:"started_at"`

	InputLocator     string               `json:"input_locator"`
	SourceKind       models.SourceKind    `json:"source_kind,omitempty"`
	WorkingDirectory string               `json:"working_directory,omitempty"`
	FileInventory    models.FileInventory `json:"file_inventory"`

	SecurityFindings    []models.SecurityFinding    `json:"security_findings"`
	PerformanceFindings []models.PerformanceFinding `json:"performance_findings"`
	StyleFindings       []models.StyleFinding       `json:"style_findings"`

	Warnings      []string `json:"warnings"`
	TerminalError string   `json:"terminal_error,omitempty"`

	Report         string `json:"-"`
	ReportLocation string `json:"report_location,omitempty"`
}

// newRunID generates a new ULID string.
func newRunID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}

// Findings returns the findings of category c as the common interface.
func (r *Record) Findings(c models.Category) []models.Finding {
	var out []models.Finding
	switch c {
	case models.CategorySecurity:
		for _, f := range r.SecurityFindings {
			out = append(out, f)
		}
	case models.CategoryPerformance:
		for _, f := range r.PerformanceFindings {
			out = append(out, f)
		}
	case models.CategoryStyle:
		for _, f := range r.StyleFindings {
			out = append(out, f)
		}
	}
	return out
}

// TotalFindings counts findings across all categories.
func (r *Record) TotalFindings() int {
	return len(r.SecurityFindings) + len(r.PerformanceFindings) + len(r.StyleFindings)
}

// Failed reports whether the run halted on a terminal error.
func (r *Record) Failed() bool {
	return r.TerminalError != ""
}

// clone returns a deep copy of r.
func (r *Record) clone() Record {
	out := *r
	out.FileInventory = r.FileInventory.Clone()
	out.SecurityFindings = cloneSlice(r.SecurityFindings)
	out.PerformanceFindings = cloneSlice(r.PerformanceFindings)
	out.StyleFindings = cloneSlice(r.StyleFindings)
	out.Warnings = cloneSlice(r.Warnings)
	return out
}

// cloneSlice keeps the nil/empty distinction that slices.Clone also keeps.
func cloneSlice[T any](s []T) []T {
	if s == nil {
		return nil
	}
	return slices.Clone(s)
}
