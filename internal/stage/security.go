package stage

import (
	"fmt"
	"strings"

	"github.com/joescharf/codereview/internal/models"
	"github.com/joescharf/codereview/internal/tools"
)

// SecurityExtensions are the files the security branch reviews.
var SecurityExtensions = []string{".py", ".js", ".jsx", ".ts", ".tsx", ".java", ".go", ".php", ".rb"}

const securitySystem = `You are a senior application security engineer reviewing source code.

## Focus Areas
1. Injection: SQL, command, code, template and LDAP injection, XSS
2. Authentication and authorization: weak credentials, broken access control, session handling
3. Sensitive data: hard-coded secrets, insecure storage, secrets in logs
4. Misconfiguration: insecure defaults, debug features left enabled
5. Cryptography: weak algorithms, poor key management, predictable randomness
6. Input validation and deserialization of untrusted data
7. Error handling that leaks internal details

## Severity
- CRITICAL: directly exploitable with severe impact (remote code execution, data breach, auth bypass)
- HIGH: serious flaw needing prompt attention (privilege escalation, data exposure)
- MEDIUM: weakness that should be fixed (weak crypto, missing validation)
- LOW: minor concern or deprecated practice

## Confidence
- HIGH: definite vulnerability with a clear exploitation path
- MEDIUM: likely vulnerability that depends on context
- LOW: a smell worth investigating

## Rules
- Reference exact line numbers and identifiers.
- Static analyzer results are a starting point. Confirm or reject each one and look for what they missed.
- Every finding needs a concrete remediation, with a code example where it helps.
- Map findings to a CWE id and an OWASP Top 10 category when one applies.
- Respond with JSON only.
`

// NewSecurity returns the security branch. By default it combines bandit
// with the built-in pattern rules.
func NewSecurity(r *Reviewer, o Options) *Branch {
	if o.MaxFiles == 0 {
		o.MaxFiles = 20
	}
	defaults := []tools.Tool{
		tools.NewBandit(o.Python, o.ToolTimeout),
		tools.NewPatterns(),
	}
	return newBranch(profile{
		name:       "Security",
		category:   models.CategorySecurity,
		system:     securitySystem,
		extensions: SecurityExtensions,
		prioritize: true,
		prompt:     securityPrompt,
		convert:    securityFinding,
	}, r, defaults, o)
}

func securityPrompt(f models.FileEntry, content string, diags []tools.Diagnostic) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Analyze this %s file for security vulnerabilities.\n\n", language(f))
	writeFileInfo(&b, f, content)

	b.WriteString("## Static Analysis Results\n")
	if len(diags) == 0 {
		b.WriteString("No issues detected by static analysis.\n\n")
	} else {
		for _, d := range diags {
			fmt.Fprintf(&b, "- **Line %d**: %s (Severity: %s, Confidence: %s, %s %s)\n",
				d.Line, d.Name, d.Severity, d.Confidence, d.Tool, d.Rule)
			fmt.Fprintf(&b, "  %s\n", d.Message)
			if d.Snippet != "" {
				fmt.Fprintf(&b, "  `%s`\n", d.Snippet)
			}
		}
		b.WriteString("\n")
	}

	writeSource(&b, f, content)

	b.WriteString("## Instructions\n")
	b.WriteString("1. Validate each static analysis result as a real vulnerability or a false positive\n")
	b.WriteString("2. Identify additional issues the analyzers missed\n")
	b.WriteString("3. Focus on the OWASP Top 10\n")
	b.WriteString("4. Give specific, actionable recommendations\n\n")

	writeSchema(&b, [][2]string{
		{"file", fmt.Sprintf("%q", f.RelativePath)},
		{"line", "<line_number>"},
		{"severity", `"CRITICAL|HIGH|MEDIUM|LOW"`},
		{"confidence", `"HIGH|MEDIUM|LOW"`},
		{"issue_type", `"SQL_INJECTION"`},
		{"description", `"clear description"`},
		{"recommendation", `"specific fix with code example"`},
		{"cwe_id", "<cwe_number or null>"},
		{"owasp_category", `"A03:2021 - Injection" or null`},
	})
	return b.String()
}

func securityFinding(d tools.Diagnostic) models.Finding {
	confidence := d.Confidence
	if confidence == "" {
		confidence = models.LevelMedium
	}
	recommendation := d.Recommendation
	if recommendation == "" {
		recommendation = fmt.Sprintf("Review the code flagged by %s rule %s and remove the unsafe construct.", d.Tool, d.Rule)
	}
	f := models.SecurityFinding{
		FindingBase: models.FindingBase{
			File:           d.File,
			Line:           lineOf(d),
			IssueType:      issueType(d.Name, models.DefaultSecurityIssueType),
			Description:    d.Message,
			Recommendation: recommendation,
			Source:         d.Tool,
		},
		Severity:   d.Severity,
		Confidence: confidence,
	}
	if d.CWE > 0 {
		f.CWEID = models.IntPtr(d.CWE)
	}
	return f
}
