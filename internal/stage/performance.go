package stage

import (
	"fmt"
	"strings"

	"github.com/joescharf/codereview/internal/models"
	"github.com/joescharf/codereview/internal/tools"
)

// PerformanceExtensions are the files the performance branch reviews.
var PerformanceExtensions = []string{".py", ".js", ".jsx", ".ts", ".tsx", ".java", ".go", ".cpp", ".c", ".rb", ".php"}

const performanceSystem = `You are a senior performance engineer reviewing source code for bottlenecks.

## Focus Areas
1. Algorithmic complexity: nested loops over the same data, repeated scans, poor data structures
2. Database access: N+1 queries, unbounded result sets, queries inside loops
3. Memory: leaks, large objects retained longer than needed, needless copies
4. I/O: blocking calls on hot paths, missing buffering, repeated reads of the same file
5. Network: sequential calls that could be batched or concurrent, missing connection reuse
6. Caching: repeated expensive computations with stable inputs
7. Resource handling: unclosed files, connections or handles

## Cyclomatic Complexity Grades
- A (1-5) simple, B (6-10) acceptable, C (11-20) consider refactoring
- D (21-30) refactoring recommended, E (31-40) refactoring needed, F (41+) critical

## Impact
- CRITICAL: degrades the whole system (quadratic or worse on large inputs, unbounded growth)
- HIGH: significant at scale (N+1 queries, blocking I/O in a hot path)
- MEDIUM: noticeable inefficiency (missing cache, suboptimal algorithm)
- LOW: minor optimisation on a cold path

## Rules
- Quantify with Big-O notation and estimate the improvement.
- Prefer issues that matter in production over micro-optimisations.
- Mention trade-offs such as memory against speed.
- Show the optimised code.
- Respond with JSON only.
`

// NewPerformance returns the performance branch. By default it uses radon
// complexity and maintainability metrics as hints.
func NewPerformance(r *Reviewer, o Options) *Branch {
	if o.MaxFiles == 0 {
		o.MaxFiles = 15
	}
	defaults := []tools.Tool{tools.NewRadon(o.Python, o.ToolTimeout)}
	return newBranch(profile{
		name:       "Performance",
		category:   models.CategoryPerformance,
		system:     performanceSystem,
		extensions: PerformanceExtensions,
		prioritize: true,
		prompt:     performancePrompt,
		convert:    performanceFinding,
	}, r, defaults, o)
}

func performancePrompt(f models.FileEntry, content string, diags []tools.Diagnostic) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Analyze this %s file for performance issues and optimization opportunities.\n\n", language(f))
	writeFileInfo(&b, f, content)

	b.WriteString("## Complexity Analysis Results\n")
	if len(diags) == 0 {
		b.WriteString("No complexity hot spots reported.\n\n")
	} else {
		for _, d := range diags {
			if d.Rule == "MI" {
				fmt.Fprintf(&b, "- **Maintainability index**: %.2f (rank %s) %s\n", d.Metric, d.Grade, d.Message)
				continue
			}
			fmt.Fprintf(&b, "- **Line %d**: `%s` grade %s, complexity %g\n", d.Line, d.Name, d.Grade, d.Metric)
		}
		b.WriteString("\n")
	}

	writeSource(&b, f, content)

	b.WriteString("## Instructions\n")
	b.WriteString("1. Start from the complexity hot spots above\n")
	b.WriteString("2. Look for N+1 queries, quadratic loops, blocking I/O and missing caching\n")
	b.WriteString("3. State current and optimized complexity for each finding\n\n")

	writeSchema(&b, [][2]string{
		{"file", fmt.Sprintf("%q", f.RelativePath)},
		{"line", "<line_number>"},
		{"issue_type", `"N_PLUS_ONE_QUERY"`},
		{"description", `"clear description"`},
		{"complexity_score", "<number or null>"},
		{"impact", `"CRITICAL|HIGH|MEDIUM|LOW"`},
		{"current_complexity", `"O(n^2)"`},
		{"optimized_complexity", `"O(n)"`},
		{"recommendation", `"specific optimization with code example"`},
		{"estimated_improvement", `"50-70% fewer queries"`},
	})
	return b.String()
}

func performanceFinding(d tools.Diagnostic) models.Finding {
	f := models.PerformanceFinding{
		FindingBase: models.FindingBase{
			File:        d.File,
			Line:        lineOf(d),
			Description: d.Message,
			Source:      d.Tool,
		},
		Impact: d.Severity,
	}
	switch d.Rule {
	case "CC":
		f.IssueType = "HIGH_COMPLEXITY"
		f.Description = fmt.Sprintf("%s has cyclomatic complexity %g (grade %s): %s", d.Name, d.Metric, d.Grade, d.Message)
		f.Recommendation = fmt.Sprintf("Split %s into smaller functions and flatten nested branches.", d.Name)
		f.ComplexityScore = &d.Metric
	case "MI":
		f.IssueType = "LOW_MAINTAINABILITY"
		f.Recommendation = "Reduce the size and branching of this module so changes stay cheap."
	default:
		f.IssueType = issueType(d.Name, models.DefaultPerformanceIssueType)
		f.Recommendation = d.Recommendation
	}
	return f
}
