package report

import (
	"github.com/joescharf/codereview/internal/models"
	"github.com/joescharf/codereview/internal/state"
)

// HealthScore is the computed health of a reviewed code base.
type HealthScore struct {
	Total           int    `json:"total"` // 0-100
	Label           string `json:"label"`
	Critical        int    `json:"critical"`
	SecurityHigh    int    `json:"security_high"`
	PerformanceHigh int    `json:"performance_high"`
}

// Point deductions per finding.
const (
	criticalPenalty        = 10
	securityHighPenalty    = 5
	performanceHighPenalty = 3
)

// Scorer computes health scores from review records.
type Scorer struct{}

// NewScorer returns a new Scorer.
func NewScorer() *Scorer {
	return &Scorer{}
}

// Score starts from 100 and deducts points for critical security and
// performance findings and for high ones, never going below zero.
func (s *Scorer) Score(rec *state.Record) HealthScore {
	sec := models.CountByRank(rec.Findings(models.CategorySecurity))
	perf := models.CountByRank(rec.Findings(models.CategoryPerformance))

	h := HealthScore{
		Critical:        sec[models.LevelCritical] + perf[models.LevelCritical],
		SecurityHigh:    sec[models.LevelHigh],
		PerformanceHigh: perf[models.LevelHigh],
	}
	h.Total = max(0, 100-
		h.Critical*criticalPenalty-
		h.SecurityHigh*securityHighPenalty-
		h.PerformanceHigh*performanceHighPenalty)
	h.Label = scoreLabel(h.Total)
	return h
}

// scoreLabel buckets a score for display.
func scoreLabel(total int) string {
	switch {
	case total >= 90:
		return "Excellent"
	case total >= 75:
		return "Good"
	case total >= 50:
		return "Fair"
	default:
		return "Needs Attention"
	}
}
