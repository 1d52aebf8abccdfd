package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/joescharf/codereview/internal/models"
	"github.com/joescharf/codereview/internal/state"
)

// List limits for the critical issue and immediate action sections.
const (
	criticalListLimit  = 5
	immediateListLimit = 3
)

// Render builds the markdown report for rec.
func Render(rec *state.Record, generated time.Time) string {
	score := NewScorer().Score(rec)
	sections := []string{
		header(rec, generated),
		summary(rec, score),
	}
	if s := criticalIssues(rec); s != "" {
		sections = append(sections, s)
	}
	if len(rec.SecurityFindings) > 0 {
		sections = append(sections, securitySection(rec.SecurityFindings))
	}
	if len(rec.PerformanceFindings) > 0 {
		sections = append(sections, performanceSection(rec.PerformanceFindings))
	}
	if len(rec.StyleFindings) > 0 {
		sections = append(sections, styleSection(rec.StyleFindings))
	}
	sections = append(sections, recommendations(rec))
	if len(rec.Warnings) > 0 {
		sections = append(sections, warningsSection(rec.Warnings))
	}
	sections = append(sections, footer(rec))
	return strings.Join(sections, "\n\n")
}

func header(rec *state.Record, generated time.Time) string {
	var b strings.Builder
	b.WriteString("# Automated Code Review Report\n\n")
	fmt.Fprintf(&b, "**Generated**: %s  \n", generated.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "**Source**: %s  \n", rec.InputLocator)
	fmt.Fprintf(&b, "**Type**: %s  \n", titleCase(string(rec.SourceKind)))
	fmt.Fprintf(&b, "**Run**: %s\n\n", rec.RunID)
	b.WriteString("---")
	return b.String()
}

func summary(rec *state.Record, score HealthScore) string {
	sec := models.CountByRank(rec.Findings(models.CategorySecurity))
	perf := models.CountByRank(rec.Findings(models.CategoryPerformance))
	style := models.CountByRank(rec.Findings(models.CategoryStyle))

	var b strings.Builder
	b.WriteString("## Executive Summary\n\n")
	fmt.Fprintf(&b, "### Code Health Score: %d/100 (%s)\n\n", score.Total, score.Label)

	b.WriteString("### Statistics\n")
	fmt.Fprintf(&b, "- **Files Analyzed**: %d\n", rec.FileInventory.TotalFiles)
	fmt.Fprintf(&b, "- **Total Code Size**: %.2f MB\n", rec.FileInventory.TotalSizeMB())
	fmt.Fprintf(&b, "- **Total Issues Found**: %d\n", rec.TotalFindings())
	fmt.Fprintf(&b, "- **Critical Issues**: %d\n\n", score.Critical)

	b.WriteString("### Findings Breakdown\n\n")
	b.WriteString("| Category | Critical | High | Medium | Low | Total |\n")
	b.WriteString("|----------|----------|------|--------|-----|-------|\n")
	row := func(name string, counts map[models.Level]int, total int) {
		fmt.Fprintf(&b, "| **%s** | %d | %d | %d | %d | %d |\n", name,
			counts[models.LevelCritical], counts[models.LevelHigh],
			counts[models.LevelMedium], counts[models.LevelLow], total)
	}
	row("Security", sec, len(rec.SecurityFindings))
	row("Performance", perf, len(rec.PerformanceFindings))
	row("Style & Quality", style, len(rec.StyleFindings))

	b.WriteString("\n### File Type Distribution\n")
	top := rec.FileInventory.TopExtensions(5)
	if len(top) == 0 {
		b.WriteString("No extension data available\n")
	}
	for _, ec := range top {
		fmt.Fprintf(&b, "- **%s**: %d files\n", ec.Extension, ec.Count)
	}
	return strings.TrimRight(b.String(), "\n")
}

func criticalIssues(rec *state.Record) string {
	sec := models.FilterRank(rec.Findings(models.CategorySecurity), models.LevelCritical, models.LevelHigh)
	perf := models.FilterRank(rec.Findings(models.CategoryPerformance), models.LevelCritical, models.LevelHigh)
	if len(sec) == 0 && len(perf) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("## Critical Issues Requiring Immediate Attention\n\n")
	b.WriteString("> **Action Required**: The following issues should be addressed as soon as possible.\n")
	list := func(title, label string, findings []models.Finding) {
		if len(findings) == 0 {
			return
		}
		fmt.Fprintf(&b, "\n### %s\n\n", title)
		for _, f := range findings[:min(len(findings), criticalListLimit)] {
			c := f.Common()
			fmt.Fprintf(&b, "- **%s** in `%s`\n", c.IssueType, c.File)
			fmt.Fprintf(&b, "  - %s: %s\n", label, f.Rank())
			fmt.Fprintf(&b, "  - %s\n", orDefault(c.Description, "No description"))
		}
	}
	list("Security", "Severity", sec)
	list("Performance", "Impact", perf)
	return strings.TrimRight(b.String(), "\n")
}

// writeFinding writes the common lines of one numbered finding.
func writeFinding(b *strings.Builder, idx int, c models.FindingBase, extra ...string) {
	fmt.Fprintf(b, "#### %d. %s\n", idx, c.IssueType)
	fmt.Fprintf(b, "- **File**: `%s` (Line %s)\n", c.File, lineText(c.Line))
	for _, e := range extra {
		b.WriteString(e)
	}
	fmt.Fprintf(b, "- **Description**: %s\n", orDefault(c.Description, "No description"))
	fmt.Fprintf(b, "- **Recommendation**: %s\n\n", orDefault(c.Recommendation, "No recommendation"))
}

// byLevel groups findings by their rank, preserving order inside a group.
func byLevel[T models.Finding](findings []T) map[models.Level][]T {
	out := make(map[models.Level][]T)
	for _, f := range findings {
		out[f.Rank()] = append(out[f.Rank()], f)
	}
	return out
}

func securitySection(findings []models.SecurityFinding) string {
	var b strings.Builder
	b.WriteString("## Security Analysis\n\n")
	b.WriteString("### Overview\n")
	b.WriteString("Static security analysis combined with generative expert review.\n")
	groups := byLevel(findings)
	for _, level := range models.Levels {
		items := groups[level]
		if len(items) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n### %s Severity (%d issues)\n\n", level, len(items))
		for i, f := range items {
			var extra []string
			if f.CWEID != nil {
				extra = append(extra, fmt.Sprintf("- **CWE**: CWE-%d\n", *f.CWEID))
			}
			if f.OWASPCategory != "" {
				extra = append(extra, fmt.Sprintf("- **OWASP**: %s\n", f.OWASPCategory))
			}
			writeFinding(&b, i+1, f.FindingBase, extra...)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func performanceSection(findings []models.PerformanceFinding) string {
	var b strings.Builder
	b.WriteString("## Performance Analysis\n\n")
	b.WriteString("### Overview\n")
	b.WriteString("Complexity metrics combined with generative optimization review.\n")
	groups := byLevel(findings)
	for _, level := range models.Levels {
		items := groups[level]
		if len(items) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n### %s Impact (%d issues)\n\n", level, len(items))
		for i, f := range items {
			var extra []string
			if f.CurrentComplexity != "" {
				extra = append(extra, fmt.Sprintf("- **Current Complexity**: %s\n", f.CurrentComplexity))
			}
			if f.OptimizedComplexity != "" {
				extra = append(extra, fmt.Sprintf("- **Optimized Complexity**: %s\n", f.OptimizedComplexity))
			}
			if f.EstimatedImprovement != "" {
				extra = append(extra, fmt.Sprintf("- **Estimated Improvement**: %s\n", f.EstimatedImprovement))
			}
			writeFinding(&b, i+1, f.FindingBase, extra...)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func styleSection(findings []models.StyleFinding) string {
	var b strings.Builder
	b.WriteString("## Code Style & Quality Analysis\n\n")
	b.WriteString("### Overview\n")
	b.WriteString("Code quality review based on Clean Code, SOLID and language conventions.\n")
	groups := byLevel(findings)
	for _, level := range models.Levels {
		items := groups[level]
		if len(items) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n### %s Priority (%d issues)\n\n", level, len(items))
		for i, f := range items {
			var extra []string
			if f.PrincipleViolated != "" {
				extra = append(extra, fmt.Sprintf("- **Principle Violated**: %s\n", f.PrincipleViolated))
			}
			writeFinding(&b, i+1, f.FindingBase, extra...)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func recommendations(rec *state.Record) string {
	var b strings.Builder
	b.WriteString("## Prioritized Recommendations\n\n")
	b.WriteString("### Immediate Actions\n")

	sec := models.FilterRank(rec.Findings(models.CategorySecurity), models.LevelCritical)
	perf := models.FilterRank(rec.Findings(models.CategoryPerformance), models.LevelCritical)
	if len(sec) == 0 && len(perf) == 0 {
		b.WriteString("\nNo critical issues found.\n")
	}
	if len(sec) > 0 {
		b.WriteString("\n**Critical Security Vulnerabilities:**\n")
		for _, f := range sec[:min(len(sec), immediateListLimit)] {
			fmt.Fprintf(&b, "- Fix %s in `%s`\n", f.Common().IssueType, f.Common().File)
		}
	}
	if len(perf) > 0 {
		b.WriteString("\n**Critical Performance Bottlenecks:**\n")
		for _, f := range perf[:min(len(perf), immediateListLimit)] {
			fmt.Fprintf(&b, "- Optimize %s in `%s`\n", f.Common().IssueType, f.Common().File)
		}
	}

	b.WriteString("\n### Short-term\n")
	b.WriteString("- Address all HIGH severity security issues\n")
	b.WriteString("- Refactor the highest-complexity functions (CC > 20)\n")
	b.WriteString("- Add error handling where failures are currently ignored\n")
	b.WriteString("\n### Medium-term\n")
	b.WriteString("- Resolve MEDIUM severity security issues\n")
	b.WriteString("- Remove N+1 query patterns and add caching where inputs are stable\n")
	b.WriteString("- Improve documentation and reduce duplication\n")
	b.WriteString("\n### Long-term\n")
	b.WriteString("- Add these checks to CI so regressions are caught on every change\n")
	b.WriteString("- Track and pay down technical debt on a schedule")
	return b.String()
}

func warningsSection(warnings []string) string {
	var b strings.Builder
	b.WriteString("## Analysis Warnings\n\n")
	b.WriteString("The following warnings occurred during analysis:\n\n")
	for _, w := range warnings {
		fmt.Fprintf(&b, "- %s\n", w)
	}
	return strings.TrimRight(b.String(), "\n")
}

func footer(rec *state.Record) string {
	var b strings.Builder
	b.WriteString("---\n\n")
	b.WriteString("## Additional Resources\n\n")
	b.WriteString("- [OWASP Top 10](https://owasp.org/www-project-top-ten/)\n")
	b.WriteString("- [OWASP Cheat Sheet Series](https://cheatsheetseries.owasp.org/)\n")
	b.WriteString("- [CWE List](https://cwe.mitre.org/data/index.html)\n\n")
	b.WriteString("---\n\n")
	fmt.Fprintf(&b, "**Report generated by**: codereview (run %s)\n", rec.RunID)
	return b.String()
}

func lineText(line *int) string {
	if line == nil {
		return "N/A"
	}
	return fmt.Sprintf("%d", *line)
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func titleCase(s string) string {
	if s == "" {
		return "Unknown"
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
