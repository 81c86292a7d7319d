package repo

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/tridentsec/trident-analytics/internal/models"
	"github.com/tridentsec/trident-analytics/internal/utils"
)

// ParseMetricsSnapshot validates a /metrics response. The payload must be a JSON
// object; nested latency, throughput and model_performance members that are not
// objects are treated as absent, and so are individual numeric fields of the
// wrong type.
func ParseMetricsSnapshot(data []byte) (models.MetricsSnapshot, error) {
	fields, err := decodeObject(data)
	if err != nil {
		return models.MetricsSnapshot{}, utils.Malformed("parse metrics", err.Error())
	}

	var snapshot models.MetricsSnapshot
	if latency, err := decodeObject(fields["latency"]); err == nil {
		snapshot.Latency = &models.LatencyStats{
			Mean:   floatMember(latency, "mean"),
			Median: floatMember(latency, "median"),
			P95:    floatMember(latency, "p95"),
			P99:    floatMember(latency, "p99"),
			Count:  intMember(latency, "count"),
		}
	}
	if throughput, err := decodeObject(fields["throughput"]); err == nil {
		snapshot.Throughput = &models.ThroughputStats{
			RequestsPerSecond: floatMember(throughput, "requests_per_second"),
			RequestsInWindow:  intMember(throughput, "requests_in_window"),
			TotalRequests:     intMember(throughput, "total_requests"),
			TotalSuccessful:   intMember(throughput, "total_successful"),
			TotalFailed:       intMember(throughput, "total_failed"),
		}
	}
	if raw, ok := fields["model_performance"]; ok {
		if perf, err := ParseModelPerformance(raw); err == nil {
			snapshot.ModelPerformance = &perf
		}
	}
	return snapshot, nil
}

// ParseModelPerformance validates a model-performance record. Any JSON object is
// accepted; primitives, arrays and null are rejected. Members that are not
// numbers are treated as absent, and integral floats such as 12.0 fill count
// fields.
func ParseModelPerformance(data []byte) (models.ModelPerformance, error) {
	fields, err := decodeObject(data)
	if err != nil {
		return models.ModelPerformance{}, utils.Malformed("parse model performance", err.Error())
	}
	return models.ModelPerformance{
		AnomalyCount:        intMember(fields, "anomaly_count"),
		NormalCount:         intMember(fields, "normal_count"),
		TotalPredictions:    intMember(fields, "total_predictions"),
		AverageAnomalyScore: floatMember(fields, "average_anomaly_score"),
		AnomalyRatePercent:  floatMember(fields, "anomaly_rate_percent"),
	}, nil
}

type wireBaseline struct {
	ContextType string          `json:"context_type"`
	ContextKey  *string         `json:"context_key"`
	Metrics     map[string]any  `json:"metrics"`
	Version     json.RawMessage `json:"version"`
	WindowEnd   *string         `json:"window_end"`
}

// ParseBaselines accepts either {"baselines": [...]} or a bare list. Non-object
// elements of the list are skipped.
func ParseBaselines(data []byte) ([]models.Baseline, error) {
	var items []json.RawMessage
	switch {
	case isObject(data):
		var envelope struct {
			Baselines json.RawMessage `json:"baselines"`
		}
		if err := json.Unmarshal(data, &envelope); err != nil {
			return nil, utils.Malformed("parse baselines", err.Error())
		}
		if !isArray(envelope.Baselines) {
			return nil, utils.Malformed("parse baselines", "object without baselines list")
		}
		if err := json.Unmarshal(envelope.Baselines, &items); err != nil {
			return nil, utils.Malformed("parse baselines", err.Error())
		}
	case isArray(data):
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, utils.Malformed("parse baselines", err.Error())
		}
	default:
		return nil, utils.Malformed("parse baselines", "expected object or list")
	}

	baselines := make([]models.Baseline, 0, len(items))
	for _, item := range items {
		if !isObject(item) {
			continue
		}
		var w wireBaseline
		if err := json.Unmarshal(item, &w); err != nil {
			continue
		}
		b := models.Baseline{
			ContextType: models.NormalizeContextType(w.ContextType),
			Metrics:     w.Metrics,
			Version:     scalarString(w.Version),
		}
		if w.ContextKey != nil {
			b.ContextKey = *w.ContextKey
		}
		if b.Metrics == nil {
			b.Metrics = map[string]any{}
		}
		if w.WindowEnd != nil {
			if ts, err := utils.ParseTimestamp(*w.WindowEnd); err == nil {
				b.WindowEnd = &ts
			}
		}
		baselines = append(baselines, b)
	}
	return baselines, nil
}

type wireAlert struct {
	ID           json.RawMessage `json:"id"`
	Status       string          `json:"status"`
	Severity     string          `json:"severity"`
	AnomalyScore *float64        `json:"anomaly_score"`
	SourceIP     string          `json:"source_ip"`
	Endpoint     string          `json:"endpoint"`
	CreatedAt    *string         `json:"created_at"`
}

// ParseAlerts accepts only a bare JSON list of alert objects. Elements that are
// not objects are skipped.
func ParseAlerts(data []byte) ([]models.AlertRecord, error) {
	if !isArray(data) {
		return nil, utils.Malformed("parse alerts", "expected list")
	}
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, utils.Malformed("parse alerts", err.Error())
	}

	alerts := make([]models.AlertRecord, 0, len(items))
	for _, item := range items {
		if !isObject(item) {
			continue
		}
		var w wireAlert
		if err := json.Unmarshal(item, &w); err != nil {
			continue
		}
		a := models.AlertRecord{
			ID:           scalarString(w.ID),
			Status:       models.AlertStatus(strings.ToLower(strings.TrimSpace(w.Status))),
			Severity:     w.Severity,
			AnomalyScore: w.AnomalyScore,
			SourceIP:     w.SourceIP,
			Endpoint:     w.Endpoint,
		}
		if w.CreatedAt != nil {
			if ts, err := utils.ParseTimestamp(*w.CreatedAt); err == nil {
				a.CreatedAt = &ts
			}
		}
		alerts = append(alerts, a)
	}
	return alerts, nil
}

func decodeObject(data []byte) (map[string]json.RawMessage, error) {
	if !isObject(data) {
		return nil, fmt.Errorf("expected JSON object")
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// number reads a bare JSON number. Strings, booleans, null and containers yield false.
func number(raw json.RawMessage) (json.Number, bool) {
	switch c := firstByte(raw); {
	case c == '-', c >= '0' && c <= '9':
	default:
		return "", false
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", false
	}
	return n, true
}

func floatMember(fields map[string]json.RawMessage, key string) *float64 {
	n, ok := number(fields[key])
	if !ok {
		return nil
	}
	f, err := n.Float64()
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// intMember accepts integers and floats with no fractional part.
func intMember(fields map[string]json.RawMessage, key string) *int64 {
	n, ok := number(fields[key])
	if !ok {
		return nil
	}
	if i, err := n.Int64(); err == nil {
		return &i
	}
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return nil
	}
	i := int64(f)
	return &i
}

func isObject(data []byte) bool { return firstByte(data) == '{' }
func isArray(data []byte) bool  { return firstByte(data) == '[' }

func firstByte(data []byte) byte {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return 0
	}
	return trimmed[0]
}

// scalarString renders a JSON string or number as text; anything else is empty.
func scalarString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var n json.Number
	if json.Unmarshal(raw, &n) == nil {
		return n.String()
	}
	return ""
}
