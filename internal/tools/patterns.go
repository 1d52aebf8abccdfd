package tools

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"regexp"
	"slices"
	"strings"

	"github.com/joescharf/codereview/internal/models"
)

// Rule is a single-line pattern check.
type Rule struct {
	ID             string
	Name           string
	Pattern        *regexp.Regexp
	Unless         *regexp.Regexp // suppresses a match on the same line
	Extensions     []string       // empty means every file
	Severity       models.Level
	Confidence     models.Level
	CWE            int
	Message        string
	Recommendation string
}

func (r Rule) appliesTo(ext string) bool {
	return len(r.Extensions) == 0 || slices.Contains(r.Extensions, ext)
}

const sqlVerb = `(select|insert\s+into|update|delete\s+from)\b`

// sqlPattern matches SQL text that is concatenated, %-formatted, f-string or
// template interpolated, .format()-ed or Sprintf-ed.
var sqlPattern = regexp.MustCompile(`(?i)(` + strings.Join([]string{
	`"\s*` + sqlVerb + `[^"]*"\s*(\+|%[^=])`,
	`'\s*` + sqlVerb + `[^']*'\s*(\+|%[^=])`,
	`\bf"\s*` + sqlVerb + `[^"]*\{`,
	`\bf'\s*` + sqlVerb + `[^']*\{`,
	"`\\s*" + sqlVerb + "[^`]*\\$\\{",
	`"\s*` + sqlVerb + `[^"]*"\s*\.format\(`,
	`'\s*` + sqlVerb + `[^']*'\s*\.format\(`,
	`sprintf\(\s*"\s*` + sqlVerb + `[^"]*%[sv]`,
}, "|") + `)`)

var scriptExts = []string{".py", ".js", ".jsx", ".ts", ".tsx", ".php", ".rb"}

// DefaultRules flag common injection and secret-handling mistakes.
var DefaultRules = []Rule{
	{
		ID:             "SQL001",
		Name:           "SQL_INJECTION",
		Pattern:        sqlPattern,
		Severity:       models.LevelHigh,
		Confidence:     models.LevelMedium,
		CWE:            89,
		Message:        "SQL query built from string concatenation or formatting",
		Recommendation: "Use parameterized queries or prepared statements instead of building SQL from strings.",
	},
	{
		ID:             "EXE001",
		Name:           "CODE_INJECTION",
		Pattern:        regexp.MustCompile(`(^|[^.\w])(eval|exec)\s*\(`),
		Extensions:     scriptExts,
		Severity:       models.LevelHigh,
		Confidence:     models.LevelMedium,
		CWE:            95,
		Message:        "Dynamic code evaluation",
		Recommendation: "Avoid eval/exec on data; parse input explicitly (e.g. ast.literal_eval or JSON).",
	},
	{
		ID:             "CMD001",
		Name:           "COMMAND_INJECTION",
		Pattern:        regexp.MustCompile(`subprocess\.\w+\(.*shell\s*=\s*True|\bos\.(system|popen)\s*\(`),
		Extensions:     []string{".py"},
		Severity:       models.LevelHigh,
		Confidence:     models.LevelMedium,
		CWE:            78,
		Message:        "Command executed through a shell",
		Recommendation: "Pass an argument list to subprocess without shell=True.",
	},
	{
		ID:             "SEC001",
		Name:           "HARDCODED_SECRET",
		Pattern:        regexp.MustCompile(`(?i)\b(password|passwd|pwd|secret|api_?key|access_?token|auth_?token)\b["']?\s*[:=]\s*["'][^"'\s]{4,}["']`),
		Severity:       models.LevelMedium,
		Confidence:     models.LevelLow,
		CWE:            798,
		Message:        "Possible hard-coded credential",
		Recommendation: "Load credentials from the environment or a secret store.",
	},
	{
		ID:             "CRY001",
		Name:           "WEAK_HASH",
		Pattern:        regexp.MustCompile(`(?i)\b(hashlib\.(md5|sha1)|md5\.New|sha1\.New|createHash\(\s*["'](md5|sha1)["'])`),
		Severity:       models.LevelMedium,
		Confidence:     models.LevelHigh,
		CWE:            327,
		Message:        "Weak hash algorithm",
		Recommendation: "Use SHA-256 or stronger; for passwords use bcrypt, scrypt or argon2.",
	},
	{
		ID:             "DES001",
		Name:           "INSECURE_DESERIALIZATION",
		Pattern:        regexp.MustCompile(`\bpickle\.loads?\(|\bmarshal\.loads?\(|\byaml\.load\(`),
		Unless:         regexp.MustCompile(`SafeLoader|CSafeLoader`),
		Extensions:     []string{".py"},
		Severity:       models.LevelMedium,
		Confidence:     models.LevelMedium,
		CWE:            502,
		Message:        "Deserialization of untrusted data",
		Recommendation: "Use a safe format such as JSON, or yaml.safe_load.",
	},
}

// Patterns applies regular-expression rules line by line. It needs no
// external tooling, so security analysis always has a baseline.
type Patterns struct {
	Rules []Rule
}

// NewPatterns returns a Patterns tool with DefaultRules.
func NewPatterns() *Patterns {
	return &Patterns{Rules: DefaultRules}
}

func (p *Patterns) Name() string { return "patterns" }

// Run checks every file in files. Unreadable files are skipped.
func (p *Patterns) Run(ctx context.Context, _ string, files []models.FileEntry) ([]Diagnostic, error) {
	var diags []Diagnostic
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return diags, err
		}
		found, err := p.scanFile(f)
		if err != nil {
			continue
		}
		diags = append(diags, found...)
	}
	return diags, nil
}

func (p *Patterns) scanFile(f models.FileEntry) ([]Diagnostic, error) {
	var rules []Rule
	for _, r := range p.Rules {
		if r.appliesTo(f.Extension) {
			rules = append(rules, r)
		}
	}
	if len(rules) == 0 {
		return nil, nil
	}

	fh, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.RelativePath, err)
	}
	defer func() { _ = fh.Close() }()

	var diags []Diagnostic
	sc := bufio.NewScanner(fh)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		trimmed := strings.TrimSpace(text)
		if strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "//") {
			continue
		}
		for _, r := range rules {
			if !r.Pattern.MatchString(text) || (r.Unless != nil && r.Unless.MatchString(text)) {
				continue
			}
			diags = append(diags, Diagnostic{
				Tool:           "patterns",
				File:           f.RelativePath,
				Line:           line,
				Rule:           r.ID,
				Name:           r.Name,
				Message:        r.Message,
				Recommendation: r.Recommendation,
				Severity:       r.Severity,
				Confidence:     r.Confidence,
				Snippet:        trimmed,
				CWE:            r.CWE,
			})
		}
	}
	return diags, sc.Err()
}
