package stage

import (
	"fmt"
	"strings"

	"github.com/joescharf/codereview/internal/models"
	"github.com/joescharf/codereview/internal/tools"
)

// StyleExtensions are the files the style branch reviews.
var StyleExtensions = []string{".py", ".js", ".jsx", ".ts", ".tsx", ".java", ".cpp", ".c", ".go"}

const styleSystem = `You are a senior software engineer reviewing code for readability and maintainability.

## Focus Areas
1. Naming: identifiers should say what they hold or do
2. Organization: separation of concerns, sensible module boundaries
3. Function size: functions should be short and focused
4. Nesting: prefer early returns over deep nesting
5. Documentation: public APIs documented, comments where the code cannot speak
6. Duplication: repeated logic that should be shared
7. Error handling: no swallowed errors or bare catch-alls
8. Magic numbers and strings that deserve a name
9. Dead code: unused imports, variables and functions

## Severity
- CRITICAL: misleading code that will cause bugs (wrong names, hidden side effects)
- HIGH: significant maintainability cost (very long functions, no error handling)
- MEDIUM: readability problems (poor naming, missing docs, inconsistent style)
- LOW: minor polish (formatting, type annotations)

## Rules
- Follow the language's own conventions (PEP 8, Effective Go, and so on).
- Name the principle violated: SOLID, DRY, KISS or YAGNI.
- Suggest incremental refactorings with example code.
- Respond with JSON only.
`

// NewStyle returns the style branch. Repository hygiene checks are always
// reported alongside the generative review.
func NewStyle(r *Reviewer, o Options) *Branch {
	if o.MaxFiles == 0 {
		o.MaxFiles = 15
	}
	defaults := []tools.Tool{tools.NewHygiene()}
	return newBranch(profile{
		name:       "Style",
		category:   models.CategoryStyle,
		system:     styleSystem,
		extensions: StyleExtensions,
		direct: func(t tools.Tool) bool {
			return t.Name() == "hygiene"
		},
		prompt:  stylePrompt,
		convert: styleFinding,
	}, r, defaults, o)
}

func stylePrompt(f models.FileEntry, content string, _ []tools.Diagnostic) string {
	var b strings.Builder
	lang := language(f)

	fmt.Fprintf(&b, "Analyze this %s file for code style, quality and maintainability issues.\n\n", lang)
	writeFileInfo(&b, f, content)
	writeSource(&b, f, content)

	b.WriteString("## Instructions\n")
	b.WriteString("1. Naming conventions for variables, functions and types\n")
	b.WriteString("2. Functions longer than about 50 lines\n")
	b.WriteString("3. Deeply nested logic\n")
	b.WriteString("4. Missing or misleading documentation\n")
	b.WriteString("5. Duplicated code\n")
	b.WriteString("6. Improper error handling\n")
	if lang == "Python" {
		b.WriteString("7. Missing type hints\n")
	}
	b.WriteString("\n")

	writeSchema(&b, [][2]string{
		{"file", fmt.Sprintf("%q", f.RelativePath)},
		{"line", "<line_number or null>"},
		{"issue_type", `"LONG_FUNCTION"`},
		{"description", `"clear description"`},
		{"severity", `"CRITICAL|HIGH|MEDIUM|LOW"`},
		{"recommendation", `"specific improvement with refactored code example"`},
		{"principle_violated", `"Single Responsibility Principle" or null`},
		{"impact_on_maintainability", `"description"`},
	})
	return b.String()
}

func styleFinding(d tools.Diagnostic) models.Finding {
	typ := issueType(d.Name, models.DefaultStyleIssueType)
	if d.Rule == "HYGIENE" {
		typ = "MISSING_" + typ
	}
	return models.StyleFinding{
		FindingBase: models.FindingBase{
			File:           d.File,
			Line:           lineOf(d),
			IssueType:      typ,
			Description:    d.Message,
			Recommendation: d.Recommendation,
			Source:         d.Tool,
		},
		Severity:          d.Severity,
		PrincipleViolated: d.Principle,
	}
}
