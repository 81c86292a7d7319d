package engine

import (
	"github.com/tridentsec/trident-analytics/internal/models"
	"github.com/tridentsec/trident-analytics/internal/utils"
)

const (
	maxBaselineStats   = 10
	maxContextLabelLen = 30
)

// BaselineStats condenses the first ten baselines for display.
func BaselineStats(baselines []models.Baseline) []models.BaselineStat {
	n := len(baselines)
	if n > maxBaselineStats {
		n = maxBaselineStats
	}
	stats := make([]models.BaselineStat, 0, n)
	for _, b := range baselines[:n] {
		version := b.Version
		if version == "" {
			version = "N/A"
		}
		stats = append(stats, models.BaselineStat{
			Context: contextLabel(b),
			Metrics: len(b.Metrics),
			Version: version,
			Updated: utils.FormatDay(b.WindowEnd),
		})
	}
	return stats
}

// contextLabel shows IP keys verbatim and truncates everything else.
func contextLabel(b models.Baseline) string {
	if b.ContextType == models.ContextTypeIP {
		return b.ContextKey
	}
	if b.ContextKey == "" {
		return "global"
	}
	runes := []rune(b.ContextKey)
	if len(runes) > maxContextLabelLen {
		return string(runes[:maxContextLabelLen])
	}
	return b.ContextKey
}
