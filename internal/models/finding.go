package models

import (
	"slices"
	"strings"
)

// Category identifies which analysis branch produced a finding.
type Category string

const (
	CategorySecurity    Category = "security"
	CategoryPerformance Category = "performance"
	CategoryStyle       Category = "style"
)

// Categories lists every category in report order.
var Categories = []Category{CategorySecurity, CategoryPerformance, CategoryStyle}

// Level is the shared severity/impact/confidence scale.
type Level string

const (
	LevelCritical Level = "CRITICAL"
	LevelHigh     Level = "HIGH"
	LevelMedium   Level = "MEDIUM"
	LevelLow      Level = "LOW"
)

// Levels lists every level from most to least severe.
var Levels = []Level{LevelCritical, LevelHigh, LevelMedium, LevelLow}

// ParseLevel maps free-form text onto a Level. Unknown values become MEDIUM.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CRITICAL":
		return LevelCritical
	case "HIGH":
		return LevelHigh
	case "LOW":
		return LevelLow
	default:
		return LevelMedium
	}
}

// Weight orders levels; higher is more severe.
func (l Level) Weight() int {
	switch l {
	case LevelCritical:
		return 4
	case LevelHigh:
		return 3
	case LevelMedium:
		return 2
	case LevelLow:
		return 1
	default:
		return 0
	}
}

// FindingBase holds the fields every finding carries.
type FindingBase struct {
	File           string `json:"file" validate:"required"`
	Line           *int   `json:"line"`
	IssueType      string `json:"issue_type" validate:"required"`
	Description    string `json:"description"`
	Recommendation string `json:"recommendation"`
	Source         string `json:"source,omitempty"`
}

// Finding is implemented by the three category-specific finding records.
type Finding interface {
	Category() Category
	Common() FindingBase
	// Rank is the finding's primary scalar: severity or impact.
	Rank() Level
}

// SecurityFinding is a security issue. CWEID and OWASPCategory are optional.
type SecurityFinding struct {
	FindingBase
	Severity      Level  `json:"severity" validate:"oneof=CRITICAL HIGH MEDIUM LOW"`
	Confidence    Level  `json:"confidence" validate:"oneof=CRITICAL HIGH MEDIUM LOW"`
	CWEID         *int   `json:"cwe_id,omitempty"`
	OWASPCategory string `json:"owasp_category,omitempty"`
}

func (f SecurityFinding) Category() Category  { return CategorySecurity }
func (f SecurityFinding) Common() FindingBase { return f.FindingBase }
func (f SecurityFinding) Rank() Level         { return f.Severity }

// PerformanceFinding is a performance issue with optional complexity details.
type PerformanceFinding struct {
	FindingBase
	Impact               Level    `json:"impact" validate:"oneof=CRITICAL HIGH MEDIUM LOW"`
	ComplexityScore      *float64 `json:"complexity_score,omitempty"`
	CurrentComplexity    string   `json:"current_complexity,omitempty"`
	OptimizedComplexity  string   `json:"optimized_complexity,omitempty"`
	EstimatedImprovement string   `json:"estimated_improvement,omitempty"`
}

func (f PerformanceFinding) Category() Category  { return CategoryPerformance }
func (f PerformanceFinding) Common() FindingBase { return f.FindingBase }
func (f PerformanceFinding) Rank() Level         { return f.Impact }

// StyleFinding is a style or maintainability issue.
type StyleFinding struct {
	FindingBase
	Severity                Level  `json:"severity" validate:"oneof=CRITICAL HIGH MEDIUM LOW"`
	PrincipleViolated       string `json:"principle_violated,omitempty"`
	ImpactOnMaintainability string `json:"impact_on_maintainability,omitempty"`
}

func (f StyleFinding) Category() Category  { return CategoryStyle }
func (f StyleFinding) Common() FindingBase { return f.FindingBase }
func (f StyleFinding) Rank() Level         { return f.Severity }

// CountByRank tallies findings by their primary level.
func CountByRank(findings []Finding) map[Level]int {
	counts := make(map[Level]int, len(Levels))
	for _, f := range findings {
		counts[f.Rank()]++
	}
	return counts
}

// FilterRank returns the findings whose rank is one of levels, preserving order.
func FilterRank(findings []Finding, levels ...Level) []Finding {
	var out []Finding
	for _, f := range findings {
		for _, l := range levels {
			if f.Rank() == l {
				out = append(out, f)
				break
			}
		}
	}
	return out
}

// SortByRank returns a copy of findings ordered most severe first. Findings
// of equal rank keep their relative order.
func SortByRank(findings []Finding) []Finding {
	out := slices.Clone(findings)
	slices.SortStableFunc(out, func(a, b Finding) int {
		return b.Rank().Weight() - a.Rank().Weight()
	})
	return out
}
