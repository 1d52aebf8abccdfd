package output

import (
	"fmt"

	"github.com/joescharf/codereview/internal/models"
	"github.com/joescharf/codereview/internal/report"
	"github.com/joescharf/codereview/internal/state"
)

// Summary prints the outcome of a run: a findings table per category, the
// health score, warnings and where the report was written.
func (u *UI) Summary(rec *state.Record) error {
	if rec.Failed() {
		u.Error("Review failed: %s", rec.TerminalError)
		return nil
	}

	u.Info("Source: %s (%s, %d files)", Cyan(rec.InputLocator), rec.SourceKind, rec.FileInventory.TotalFiles)
	fmt.Fprintln(u.Out)

	table := u.Table([]string{"Category", "Critical", "High", "Medium", "Low", "Total"})
	for _, c := range models.Categories {
		findings := rec.Findings(c)
		counts := models.CountByRank(findings)
		if err := table.Append([]string{
			string(c),
			count(counts[models.LevelCritical], Red),
			count(counts[models.LevelHigh], Yellow),
			fmt.Sprintf("%d", counts[models.LevelMedium]),
			fmt.Sprintf("%d", counts[models.LevelLow]),
			fmt.Sprintf("%d", len(findings)),
		}); err != nil {
			return err
		}
	}
	if err := table.Render(); err != nil {
		return err
	}
	fmt.Fprintln(u.Out)

	h := report.NewScorer().Score(rec)
	u.Info("Code health: %s/100 (%s)", HealthColor(h.Total), h.Label)

	for _, w := range rec.Warnings {
		u.Warning("%s", w)
	}
	if rec.ReportLocation != "" {
		u.Success("Report saved to %s", rec.ReportLocation)
	}
	return nil
}

// Findings prints one row per finding of category c, most severe first.
func (u *UI) Findings(rec *state.Record, c models.Category) error {
	findings := models.SortByRank(rec.Findings(c))
	if len(findings) == 0 {
		u.Info("No %s findings", c)
		return nil
	}
	table := u.Table([]string{"Level", "Issue", "File", "Line"})
	for _, f := range findings {
		b := f.Common()
		line := "-"
		if b.Line != nil {
			line = fmt.Sprintf("%d", *b.Line)
		}
		if err := table.Append([]string{LevelColor(f.Rank()), b.IssueType, b.File, line}); err != nil {
			return err
		}
	}
	return table.Render()
}

func count(n int, paint func(string) string) string {
	s := fmt.Sprintf("%d", n)
	if n == 0 {
		return s
	}
	return paint(s)
}
