package models

import "time"

// Source names one of the four backend data sources.
type Source string

const (
	SourceMetrics      Source = "metrics"
	SourceModelMetrics Source = "model_metrics"
	SourceBaselines    Source = "baselines"
	SourceAlerts       Source = "alerts"
)

// AllSources lists the sources in fetch order.
var AllSources = []Source{SourceMetrics, SourceModelMetrics, SourceBaselines, SourceAlerts}

// PerformanceSource records which input the reconciled model performance came from.
type PerformanceSource string

const (
	PerformanceSourceDedicated PerformanceSource = "dedicated"
	PerformanceSourceEmbedded  PerformanceSource = "embedded"
	PerformanceSourceNone      PerformanceSource = "none"
)

// AnalyticsSnapshot is one complete refresh cycle result. Snapshots are immutable
// once published; a new cycle replaces the whole value.
type AnalyticsSnapshot struct {
	CycleID           string                `json:"cycle_id"`
	Sequence          uint64                `json:"sequence"`
	StartedAt         time.Time             `json:"started_at"`
	CompletedAt       time.Time             `json:"completed_at"`
	Metrics           *MetricsSnapshot      `json:"metrics"`
	ModelPerformance  *ModelPerformance     `json:"model_performance"`
	PerformanceSource PerformanceSource     `json:"model_performance_source"`
	Baselines         []Baseline            `json:"baselines"`
	BaselineStats     []BaselineStat        `json:"baseline_stats"`
	AlertCount        int                   `json:"alert_count"`
	Classification    ClassificationSummary `json:"classification"`
	ConfusionMatrix   []ConfusionCell       `json:"confusion_matrix"`
	Degraded          []Source              `json:"degraded_sources"`
	HasData           bool                  `json:"has_data"`
	Error             string                `json:"error,omitempty"`
}

// Failed reports whether the snapshot represents a cycle in which every source failed.
func (s *AnalyticsSnapshot) Failed() bool {
	return s != nil && s.Error != ""
}

// Cycle outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomePartial = "partial"
	OutcomeError   = "error"
)

// Outcome classifies the cycle as success, partial or error.
func (s *AnalyticsSnapshot) Outcome() string {
	switch {
	case s == nil || s.Failed():
		return OutcomeError
	case len(s.Degraded) > 0:
		return OutcomePartial
	default:
		return OutcomeSuccess
	}
}
