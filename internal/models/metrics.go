package models

// LatencyStats summarises request latency as reported by the backend, in milliseconds.
type LatencyStats struct {
	Mean   *float64 `json:"mean,omitempty"`
	Median *float64 `json:"median,omitempty"`
	P95    *float64 `json:"p95,omitempty"`
	P99    *float64 `json:"p99,omitempty"`
	Count  *int64   `json:"count,omitempty"`
}

// ThroughputStats summarises request volume.
type ThroughputStats struct {
	RequestsPerSecond *float64 `json:"requests_per_second,omitempty"`
	RequestsInWindow  *int64   `json:"requests_in_window,omitempty"`
	TotalRequests     *int64   `json:"total_requests,omitempty"`
	TotalSuccessful   *int64   `json:"total_successful,omitempty"`
	TotalFailed       *int64   `json:"total_failed,omitempty"`
}

// ModelPerformance describes detector output volume and scoring. Every field is
// optional; a nil field means the backend has not produced it yet.
type ModelPerformance struct {
	AnomalyCount        *int64   `json:"anomaly_count,omitempty"`
	NormalCount         *int64   `json:"normal_count,omitempty"`
	TotalPredictions    *int64   `json:"total_predictions,omitempty"`
	AverageAnomalyScore *float64 `json:"average_anomaly_score,omitempty"`
	AnomalyRatePercent  *float64 `json:"anomaly_rate_percent,omitempty"`
}

// IsEmpty reports whether no field of the record is populated.
func (m *ModelPerformance) IsEmpty() bool {
	if m == nil {
		return true
	}
	return m.AnomalyCount == nil && m.NormalCount == nil && m.TotalPredictions == nil &&
		m.AverageAnomalyScore == nil && m.AnomalyRatePercent == nil
}

// MetricsSnapshot is the general metrics payload. ModelPerformance is only set when
// the backend embedded a well-formed model_performance object.
type MetricsSnapshot struct {
	Latency          *LatencyStats     `json:"latency,omitempty"`
	Throughput       *ThroughputStats  `json:"throughput,omitempty"`
	ModelPerformance *ModelPerformance `json:"model_performance,omitempty"`
}

// IsEmpty reports whether the snapshot carries no data at all.
func (m *MetricsSnapshot) IsEmpty() bool {
	if m == nil {
		return true
	}
	return m.Latency == nil && m.Throughput == nil && m.ModelPerformance.IsEmpty()
}
