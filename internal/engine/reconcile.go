package engine

import "github.com/tridentsec/trident-analytics/internal/models"

// Reconcile picks the model-performance value for a cycle. A well-formed record
// from the dedicated endpoint always wins; otherwise the model_performance object
// embedded in the metrics payload is used; otherwise the value is absent. The
// returned pointer is a copy owned by the caller.
func Reconcile(dedicated Outcome[models.ModelPerformance], general Outcome[models.MetricsSnapshot]) (*models.ModelPerformance, models.PerformanceSource) {
	if dedicated.OK() {
		perf := dedicated.Value
		return &perf, models.PerformanceSourceDedicated
	}
	if general.OK() && general.Value.ModelPerformance != nil {
		perf := *general.Value.ModelPerformance
		return &perf, models.PerformanceSourceEmbedded
	}
	return nil, models.PerformanceSourceNone
}
