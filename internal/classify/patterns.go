package classify

import (
	"github.com/shaiso/Mender/internal/domain"
)

// PatternReport — сводка по накопленным сбоям.
type PatternReport struct {
	TotalErrors          int                      `json:"total_errors"`
	KindDistribution     map[domain.ErrorKind]int `json:"error_types"`
	SeverityDistribution map[domain.Severity]int  `json:"severity_distribution"`
	HealableCount        int                      `json:"healable_count"`
	HealingSessions      int                      `json:"healing_sessions"`
	HealingSuccessRate   float64                  `json:"healing_success_rate"`
	MostCommonKind       domain.ErrorKind         `json:"most_common_error,omitempty"`
}

// Analyze строит сводку по сбоям и сессиям лечения.
// При равенстве частот побеждает класс, встреченный раньше.
func Analyze(errs []domain.ErrorContext, sessions []domain.HealingSession) PatternReport {
	report := PatternReport{
		TotalErrors:          len(errs),
		KindDistribution:     make(map[domain.ErrorKind]int),
		SeverityDistribution: make(map[domain.Severity]int),
		HealingSessions:      len(sessions),
	}

	var order []domain.ErrorKind
	for _, ec := range errs {
		if report.KindDistribution[ec.Kind] == 0 {
			order = append(order, ec.Kind)
		}
		report.KindDistribution[ec.Kind]++
		report.SeverityDistribution[ec.Severity]++
		if ec.IsHealable {
			report.HealableCount++
		}
	}

	best := 0
	for _, kind := range order {
		if n := report.KindDistribution[kind]; n > best {
			best = n
			report.MostCommonKind = kind
		}
	}

	if len(sessions) > 0 {
		var ok int
		for _, s := range sessions {
			if s.Status == domain.HealingSuccess {
				ok++
			}
		}
		report.HealingSuccessRate = float64(ok) / float64(len(sessions))
	}

	return report
}
