package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/joescharf/codereview/internal/models"
)

// Radon runs cyclomatic complexity and maintainability index analysis.
type Radon struct {
	Python string
	// MinGrade is the lowest complexity grade reported (A best, F worst).
	MinGrade string
	// MinMaintainability reports files whose index is below this score.
	MinMaintainability float64
	Timeout            time.Duration
	Exec               Runner
}

// NewRadon returns a Radon wrapper with the usual thresholds (grade C, MI 10).
func NewRadon(python string, timeout time.Duration) *Radon {
	if python == "" {
		python = "python3"
	}
	return &Radon{Python: python, MinGrade: "C", MinMaintainability: 10, Timeout: timeout, Exec: ExecRunner}
}

func (r *Radon) Name() string { return "radon" }

var gradeDescriptions = map[string]string{
	"A": "Simple and well-structured",
	"B": "Acceptable complexity",
	"C": "Slightly complex, consider refactoring",
	"D": "Complex, refactoring recommended",
	"E": "Very complex, refactoring needed",
	"F": "Extremely complex, high maintenance risk",
}

// GradeLevel maps a complexity grade onto the shared level scale.
func GradeLevel(grade string) models.Level {
	switch strings.ToUpper(grade) {
	case "F":
		return models.LevelCritical
	case "D", "E":
		return models.LevelHigh
	case "C":
		return models.LevelMedium
	default:
		return models.LevelLow
	}
}

// Run reports complexity hot spots sorted by complexity, then files with a
// low maintainability index. Either half failing alone is tolerated.
func (r *Radon) Run(ctx context.Context, dir string, files []models.FileEntry) ([]Diagnostic, error) {
	if !hasExtension(files, ".py") {
		return nil, nil
	}
	cc, ccErr := r.complexity(ctx, dir)
	mi, miErr := r.maintainability(ctx, dir)
	if ccErr != nil && miErr != nil {
		return nil, fmt.Errorf("radon: %w", errors.Join(ccErr, miErr))
	}
	return append(cc, mi...), nil
}

type radonBlock struct {
	Name       string  `json:"name"`
	Type       string  `json:"type"`
	LineNo     int     `json:"lineno"`
	Complexity float64 `json:"complexity"`
	Rank       string  `json:"rank"`
}

func (r *Radon) complexity(ctx context.Context, dir string) ([]Diagnostic, error) {
	ctx, cancel := withTimeout(ctx, r.Timeout)
	defer cancel()

	out, err := r.Exec(ctx, r.Python, "-m", "radon", "cc", "-j", "-n", r.MinGrade, "-s", dir)
	if err != nil {
		return nil, err
	}
	return parseRadonCC(dir, out)
}

func parseRadonCC(dir string, data []byte) ([]Diagnostic, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}
	// radon reports {"error": "..."} in place of the block list for files it
	// cannot parse, so decode per file.
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse radon cc output: %w", err)
	}
	var diags []Diagnostic
	for file, msg := range raw {
		var blocks []radonBlock
		if err := json.Unmarshal(msg, &blocks); err != nil {
			continue
		}
		for _, b := range blocks {
			rank := b.Rank
			if rank == "" {
				rank = "F"
			}
			diags = append(diags, Diagnostic{
				Tool:     "radon",
				File:     relTo(dir, file),
				Line:     b.LineNo,
				Rule:     "CC",
				Name:     b.Name,
				Message:  fmt.Sprintf("%s (CC: %g)", gradeDescriptions[rank], b.Complexity),
				Severity: GradeLevel(rank),
				Metric:   b.Complexity,
				Grade:    rank,
			})
		}
	}
	sort.SliceStable(diags, func(i, j int) bool {
		if diags[i].Metric != diags[j].Metric {
			return diags[i].Metric > diags[j].Metric
		}
		if diags[i].File != diags[j].File {
			return diags[i].File < diags[j].File
		}
		return diags[i].Line < diags[j].Line
	})
	return diags, nil
}

func (r *Radon) maintainability(ctx context.Context, dir string) ([]Diagnostic, error) {
	ctx, cancel := withTimeout(ctx, r.Timeout)
	defer cancel()

	out, err := r.Exec(ctx, r.Python, "-m", "radon", "mi", "-j", dir)
	if err != nil {
		return nil, err
	}
	return parseRadonMI(dir, out, r.MinMaintainability)
}

func parseRadonMI(dir string, data []byte, minScore float64) ([]Diagnostic, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}
	var raw map[string]struct {
		MI   *float64 `json:"mi"`
		Rank string   `json:"rank"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse radon mi output: %w", err)
	}
	var diags []Diagnostic
	for file, v := range raw {
		if v.MI == nil || *v.MI >= minScore {
			continue
		}
		diags = append(diags, Diagnostic{
			Tool:     "radon",
			File:     relTo(dir, file),
			Rule:     "MI",
			Message:  fmt.Sprintf("%s (MI: %.2f, Rank: %s)", maintainabilityLabel(*v.MI), *v.MI, v.Rank),
			Severity: models.LevelHigh,
			Metric:   *v.MI,
			Grade:    v.Rank,
		})
	}
	sort.Slice(diags, func(i, j int) bool {
		if diags[i].Metric != diags[j].Metric {
			return diags[i].Metric < diags[j].Metric
		}
		return diags[i].File < diags[j].File
	})
	return diags, nil
}

func maintainabilityLabel(score float64) string {
	switch {
	case score >= 20:
		return "Highly maintainable"
	case score >= 10:
		return "Moderately maintainable"
	default:
		return "Difficult to maintain"
	}
}
