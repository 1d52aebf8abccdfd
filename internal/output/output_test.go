package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/codereview/internal/models"
	"github.com/joescharf/codereview/internal/state"
)

func newTestUI() (*UI, *bytes.Buffer, *bytes.Buffer) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	return &UI{Out: out, ErrOut: errOut}, out, errOut
}

func TestInfo(t *testing.T) {
	u, out, _ := newTestUI()
	u.Info("hello %s", "world")
	assert.Contains(t, out.String(), "hello world")
}

func TestSuccess(t *testing.T) {
	u, out, _ := newTestUI()
	u.Success("done %d", 42)
	assert.Contains(t, out.String(), "done 42")
}

func TestWarning(t *testing.T) {
	u, _, errOut := newTestUI()
	u.Warning("careful %s", "now")
	assert.Contains(t, errOut.String(), "careful now")
}

func TestError(t *testing.T) {
	u, _, errOut := newTestUI()
	u.Error("failed %s", "badly")
	assert.Contains(t, errOut.String(), "failed badly")
}

func TestVerboseLog_Enabled(t *testing.T) {
	u, out, _ := newTestUI()
	u.Verbose = true
	u.VerboseLog("detail %d", 1)
	assert.Contains(t, out.String(), "detail 1")
}

func TestVerboseLog_Disabled(t *testing.T) {
	u, out, _ := newTestUI()
	u.Verbose = false
	u.VerboseLog("detail %d", 1)
	assert.Empty(t, out.String())
}

func TestDryRunMsg_Enabled(t *testing.T) {
	u, _, errOut := newTestUI()
	u.DryRun = true
	u.DryRunMsg("would create %s", "file")
	assert.Contains(t, errOut.String(), "[DRY-RUN]")
	assert.Contains(t, errOut.String(), "would create file")
}

func TestDryRunMsg_Disabled(t *testing.T) {
	u, _, errOut := newTestUI()
	u.DryRun = false
	u.DryRunMsg("would create %s", "file")
	assert.Empty(t, errOut.String())
}

func TestCyan(t *testing.T) {
	assert.Contains(t, Cyan("./repo"), "./repo")
}

func TestLevelColor(t *testing.T) {
	assert.Contains(t, LevelColor(models.LevelCritical), "CRITICAL")
	assert.Contains(t, LevelColor(models.LevelHigh), "HIGH")
	assert.Contains(t, LevelColor(models.LevelMedium), "MEDIUM")
	assert.Equal(t, "LOW", LevelColor(models.LevelLow))
}

func TestHealthColor(t *testing.T) {
	assert.NotEmpty(t, HealthColor(90))
	assert.NotEmpty(t, HealthColor(60))
	assert.NotEmpty(t, HealthColor(30))
}

func TestTable(t *testing.T) {
	u, out, _ := newTestUI()
	table := u.Table([]string{"Category", "Total"})
	require.NotNil(t, table)

	require.NoError(t, table.Append([]string{"security", "3"}))
	require.NoError(t, table.Append([]string{"style", "7"}))
	err := table.Render()
	require.NoError(t, err)

	result := out.String()
	assert.True(t, strings.Contains(result, "security") || strings.Contains(result, "SECURITY"),
		"table output should contain category names")
	assert.True(t, strings.Contains(result, "style") || strings.Contains(result, "STYLE"),
		"table output should contain category names")
}

func sampleRecord() *state.Record {
	return &state.Record{
		InputLocator:  "/src/app",
		SourceKind:    models.SourceLocal,
		FileInventory: models.FileInventory{TotalFiles: 2},
		SecurityFindings: []models.SecurityFinding{{
			FindingBase: models.FindingBase{File: "db.py", Line: models.IntPtr(4), IssueType: "SQL_INJECTION"},
			Severity:    models.LevelHigh,
		}},
		StyleFindings: []models.StyleFinding{
			{FindingBase: models.FindingBase{File: "README.md", IssueType: "MISSING_README"}, Severity: models.LevelLow},
			{FindingBase: models.FindingBase{File: "db.py", IssueType: "LONG_FUNCTION"}, Severity: models.LevelMedium},
		},
		Warnings:       []string{"Performance analysis failed: timeout"},
		ReportLocation: "/tmp/REVIEW_REPORT_x.md",
	}
}

func TestSummary(t *testing.T) {
	u, out, errOut := newTestUI()
	require.NoError(t, u.Summary(sampleRecord()))

	assert.Contains(t, out.String(), "/src/app")
	assert.Contains(t, out.String(), "security")
	assert.Contains(t, out.String(), "performance")
	assert.Contains(t, out.String(), "95/100")
	assert.Contains(t, out.String(), "/tmp/REVIEW_REPORT_x.md")
	assert.Contains(t, errOut.String(), "Performance analysis failed: timeout")
}

func TestSummary_Failed(t *testing.T) {
	u, out, errOut := newTestUI()
	require.NoError(t, u.Summary(&state.Record{TerminalError: "no files found to analyze"}))
	assert.Empty(t, out.String())
	assert.Contains(t, errOut.String(), "no files found to analyze")
}

func TestFindings(t *testing.T) {
	u, out, _ := newTestUI()
	require.NoError(t, u.Findings(sampleRecord(), models.CategoryStyle))

	result := out.String()
	assert.Contains(t, result, "LONG_FUNCTION")
	assert.Contains(t, result, "MISSING_README")
	assert.Less(t, strings.Index(result, "LONG_FUNCTION"), strings.Index(result, "MISSING_README"))

	out.Reset()
	require.NoError(t, u.Findings(sampleRecord(), models.CategoryPerformance))
	assert.Contains(t, out.String(), "No performance findings")
}
