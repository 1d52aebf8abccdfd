package report

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/codereview/internal/models"
	"github.com/joescharf/codereview/internal/state"
)

var fixedTime = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

func sec(file string, level models.Level) models.SecurityFinding {
	return models.SecurityFinding{
		FindingBase: models.FindingBase{File: file, Line: models.IntPtr(3), IssueType: "SQL_INJECTION", Description: "query built by concatenation"},
		Severity:    level,
		Confidence:  models.LevelHigh,
		CWEID:       models.IntPtr(89),
	}
}

func perf(level models.Level) models.PerformanceFinding {
	return models.PerformanceFinding{
		FindingBase:       models.FindingBase{File: "loop.py", IssueType: "NESTED_LOOP"},
		Impact:            level,
		CurrentComplexity: "O(n^2)",
	}
}

func sampleRecord() state.Record {
	return state.Record{
		RunID:        "01TESTRUN",
		InputLocator: "/src/app",
		SourceKind:   models.SourceLocal,
		FileInventory: models.FileInventory{
			TotalFiles:      3,
			TotalSizeBytes:  2048,
			ExtensionCounts: map[string]int{".py": 2, ".md": 1},
		},
		SecurityFindings:    []models.SecurityFinding{sec("app/db.py", models.LevelCritical), sec("app/api.py", models.LevelHigh)},
		PerformanceFindings: []models.PerformanceFinding{perf(models.LevelHigh)},
		StyleFindings: []models.StyleFinding{{
			FindingBase:       models.FindingBase{File: "app/db.py", IssueType: "MISSING_DOC"},
			Severity:          models.LevelLow,
			PrincipleViolated: "Documentation",
		}},
		Warnings: []string{"Performance analysis: no text producer configured"},
	}
}

func TestScore(t *testing.T) {
	tests := []struct {
		name  string
		rec   state.Record
		total int
		label string
	}{
		{"clean", state.Record{}, 100, "Excellent"},
		{"sample", sampleRecord(), 100 - 10 - 5 - 3, "Good"},
		{"floor", state.Record{SecurityFindings: []models.SecurityFinding{
			sec("a", models.LevelCritical), sec("a", models.LevelCritical), sec("a", models.LevelCritical),
			sec("a", models.LevelCritical), sec("a", models.LevelCritical), sec("a", models.LevelCritical),
			sec("a", models.LevelCritical), sec("a", models.LevelCritical), sec("a", models.LevelCritical),
			sec("a", models.LevelCritical), sec("a", models.LevelCritical),
		}}, 0, "Needs Attention"},
		{"fair", state.Record{PerformanceFindings: []models.PerformanceFinding{
			perf(models.LevelCritical), perf(models.LevelCritical), perf(models.LevelHigh), perf(models.LevelHigh),
		}}, 100 - 20 - 6, "Fair"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewScorer().Score(&tt.rec)
			assert.Equal(t, tt.total, h.Total)
			assert.Equal(t, tt.label, h.Label)
		})
	}
}

func TestRender(t *testing.T) {
	rec := sampleRecord()
	out := Render(&rec, fixedTime)

	assert.True(t, strings.HasPrefix(out, "# Automated Code Review Report"))
	assert.Contains(t, out, "**Generated**: 2026-03-14 09:26:53")
	assert.Contains(t, out, "**Type**: Local")
	assert.Contains(t, out, "Code Health Score: 82/100 (Good)")
	assert.Contains(t, out, "| **Security** | 1 | 1 | 0 | 0 | 2 |")
	assert.Contains(t, out, "- **.py**: 2 files")
	assert.Contains(t, out, "## Critical Issues Requiring Immediate Attention")
	assert.Contains(t, out, "- **SQL_INJECTION** in `app/db.py`")
	assert.Contains(t, out, "### CRITICAL Severity (1 issues)")
	assert.Contains(t, out, "- **CWE**: CWE-89")
	assert.Contains(t, out, "- **Current Complexity**: O(n^2)")
	assert.Contains(t, out, "- **Principle Violated**: Documentation")
	assert.Contains(t, out, "- Fix SQL_INJECTION in `app/db.py`")
	assert.Contains(t, out, "## Analysis Warnings")
	assert.Contains(t, out, "- Performance analysis: no text producer configured")

	// Sections appear in a fixed order.
	order := []string{"## Executive Summary", "## Critical Issues", "## Security Analysis",
		"## Performance Analysis", "## Code Style & Quality Analysis", "## Prioritized Recommendations",
		"## Analysis Warnings", "## Additional Resources"}
	last := -1
	for _, h := range order {
		idx := strings.Index(out, h)
		require.Greater(t, idx, last, h)
		last = idx
	}
}

func TestRender_EmptyRecord(t *testing.T) {
	rec := state.Record{InputLocator: "/src/empty"}
	out := Render(&rec, fixedTime)

	assert.Contains(t, out, "Code Health Score: 100/100 (Excellent)")
	assert.Contains(t, out, "No extension data available")
	assert.Contains(t, out, "No critical issues found.")
	assert.Contains(t, out, "**Type**: Unknown")
	assert.NotContains(t, out, "## Security Analysis")
	assert.NotContains(t, out, "## Analysis Warnings")
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "REVIEW_REPORT_2026-03-14_09-26-53.md", FileName(fixedTime))
}

func TestStage_Run(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reviews")
	s := New(dir, WithJSON(true), WithClock(func() time.Time { return fixedTime }))

	res, err := s.Run(context.Background(), sampleRecord())
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "REVIEW_REPORT_2026-03-14_09-26-53.md"), res.Path)
	data, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.Equal(t, res.Content, string(data))

	raw, err := os.ReadFile(res.JSONPath)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, "01TESTRUN", doc["run_id"])
	assert.Len(t, doc["security_findings"], 2)
	health := doc["health"].(map[string]any)
	assert.Equal(t, 82.0, health["total"])

	st := state.NewStore("/src/app")
	require.NoError(t, st.Apply(Writer, res.Update()))
	snap := st.Snapshot()
	assert.Equal(t, res.Path, snap.ReportLocation)
	assert.Equal(t, res.Content, snap.Report)
}

func TestStage_RunWithoutOutputDir(t *testing.T) {
	res, err := New("").Run(context.Background(), sampleRecord())
	require.NoError(t, err)
	assert.NotEmpty(t, res.Content)
	assert.Empty(t, res.Path)
	assert.Empty(t, res.JSONPath)
}

func TestStage_RunUnwritableDir(t *testing.T) {
	file := filepath.Join(t.TempDir(), "occupied")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	_, err := New(file).Run(context.Background(), sampleRecord())
	assert.Error(t, err)
}
