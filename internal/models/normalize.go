package models

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Default issue types used when a raw record omits issue_type.
const (
	DefaultSecurityIssueType    = "SECURITY_ISSUE"
	DefaultPerformanceIssueType = "PERFORMANCE_ISSUE"
	DefaultStyleIssueType       = "STYLE_ISSUE"

	// UnknownFile is used when neither the record nor the caller names a file.
	UnknownFile = "unknown"
)

var validate = validator.New()

// Normalize converts one raw record into the finding type for category c,
// filling documented defaults:
//
//	file            -> defaultFile, then "unknown"
//	line            -> nil when missing, non-numeric or <= 0
//	issue_type      -> SECURITY_ISSUE / PERFORMANCE_ISSUE / STYLE_ISSUE
//	severity/impact -> MEDIUM (also for unrecognised values)
//	confidence      -> MEDIUM
//	description, recommendation -> ""
func Normalize(c Category, raw map[string]any, defaultFile string) (Finding, error) {
	var f Finding
	switch c {
	case CategorySecurity:
		f = normalizeSecurity(raw, defaultFile)
	case CategoryPerformance:
		f = normalizePerformance(raw, defaultFile)
	case CategoryStyle:
		f = normalizeStyle(raw, defaultFile)
	default:
		return nil, fmt.Errorf("unknown finding category %q", c)
	}
	if err := validate.Struct(f); err != nil {
		return nil, fmt.Errorf("invalid %s finding: %w", c, err)
	}
	return f, nil
}

// NormalizeAll normalizes every object element of items. Elements that are
// not objects, or that fail validation, are counted in skipped so callers can
// surface them as a warning.
func NormalizeAll(c Category, items []any, defaultFile string) (findings []Finding, skipped int) {
	findings = make([]Finding, 0, len(items))
	for _, item := range items {
		raw, ok := item.(map[string]any)
		if !ok {
			skipped++
			continue
		}
		f, err := Normalize(c, raw, defaultFile)
		if err != nil {
			skipped++
			continue
		}
		findings = append(findings, f)
	}
	return findings, skipped
}

func normalizeBase(raw map[string]any, defaultFile, defaultType string) FindingBase {
	file := stringField(raw, "file", defaultFile)
	if file == "" {
		file = UnknownFile
	}
	return FindingBase{
		File:           file,
		Line:           intField(raw, "line"),
		IssueType:      stringField(raw, "issue_type", defaultType),
		Description:    stringField(raw, "description", ""),
		Recommendation: stringField(raw, "recommendation", ""),
		Source:         stringField(raw, "source", ""),
	}
}

func normalizeSecurity(raw map[string]any, defaultFile string) SecurityFinding {
	return SecurityFinding{
		FindingBase:   normalizeBase(raw, defaultFile, DefaultSecurityIssueType),
		Severity:      ParseLevel(stringField(raw, "severity", "")),
		Confidence:    ParseLevel(stringField(raw, "confidence", "")),
		CWEID:         intField(raw, "cwe_id"),
		OWASPCategory: stringField(raw, "owasp_category", ""),
	}
}

func normalizePerformance(raw map[string]any, defaultFile string) PerformanceFinding {
	return PerformanceFinding{
		FindingBase:          normalizeBase(raw, defaultFile, DefaultPerformanceIssueType),
		Impact:               ParseLevel(stringField(raw, "impact", "")),
		ComplexityScore:      floatField(raw, "complexity_score"),
		CurrentComplexity:    stringField(raw, "current_complexity", ""),
		OptimizedComplexity:  stringField(raw, "optimized_complexity", ""),
		EstimatedImprovement: stringField(raw, "estimated_improvement", ""),
	}
}

func normalizeStyle(raw map[string]any, defaultFile string) StyleFinding {
	return StyleFinding{
		FindingBase:             normalizeBase(raw, defaultFile, DefaultStyleIssueType),
		Severity:                ParseLevel(stringField(raw, "severity", "")),
		PrincipleViolated:       stringField(raw, "principle_violated", ""),
		ImpactOnMaintainability: stringField(raw, "impact_on_maintainability", ""),
	}
}

// stringField reads key as text. Numbers and booleans are formatted; null,
// missing and blank values yield def.
func stringField(raw map[string]any, key, def string) string {
	v, ok := raw[key]
	if !ok || v == nil {
		return def
	}
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		s = strconv.FormatBool(t)
	default:
		s = fmt.Sprint(t)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	return s
}

// intField reads key as a positive integer. Strings such as "CWE-89" or "42"
// are accepted.
func intField(raw map[string]any, key string) *int {
	v, ok := raw[key]
	if !ok || v == nil {
		return nil
	}
	var n int
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return nil
		}
		n = int(t)
	case int:
		n = t
	case string:
		digits := strings.TrimLeft(strings.TrimSpace(t), "CWEcwe-_ ")
		parsed, err := strconv.Atoi(digits)
		if err != nil {
			return nil
		}
		n = parsed
	default:
		return nil
	}
	if n <= 0 {
		return nil
	}
	return &n
}

func floatField(raw map[string]any, key string) *float64 {
	v, ok := raw[key]
	if !ok || v == nil {
		return nil
	}
	switch t := v.(type) {
	case float64:
		return &t
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return nil
		}
		return &f
	default:
		return nil
	}
}

// IntPtr is a convenience for building findings with a line number.
func IntPtr(n int) *int { return &n }
