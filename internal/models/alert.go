package models

import "time"

// AlertStatus is the feedback state of an alert.
type AlertStatus string

const (
	AlertStatusPending       AlertStatus = "pending"
	AlertStatusTruePositive  AlertStatus = "true_positive"
	AlertStatusFalsePositive AlertStatus = "false_positive"
	AlertStatusApproved      AlertStatus = "approved"
	AlertStatusRejected      AlertStatus = "rejected"
)

// AlertRecord is a single alert as listed by the backend. Only Status takes part
// in classification statistics; unknown statuses are carried through verbatim.
type AlertRecord struct {
	ID           string      `json:"id,omitempty"`
	Status       AlertStatus `json:"status"`
	Severity     string      `json:"severity,omitempty"`
	AnomalyScore *float64    `json:"anomaly_score,omitempty"`
	SourceIP     string      `json:"source_ip,omitempty"`
	Endpoint     string      `json:"endpoint,omitempty"`
	CreatedAt    *time.Time  `json:"created_at,omitempty"`
}

// ClassificationSummary is the confusion matrix and derived percentages computed
// from a set of alerts. Percentages are in the range 0-100.
type ClassificationSummary struct {
	TP                int     `json:"tp"`
	FP                int     `json:"fp"`
	TN                int     `json:"tn"`
	FN                int     `json:"fn"`
	Total             int     `json:"total"`
	TotalWithFeedback int     `json:"totalWithFeedback"`
	Accuracy          float64 `json:"accuracy"`
	Precision         float64 `json:"precision"`
	Recall            float64 `json:"recall"`
	F1Score           float64 `json:"f1Score"`
	FPRate            float64 `json:"fpRate"`
}

// ConfusionCell is one labelled cell of the confusion matrix.
type ConfusionCell struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

// ConfusionMatrix returns the non-zero cells in TP, FP, TN, FN order.
func (s ClassificationSummary) ConfusionMatrix() []ConfusionCell {
	cells := []ConfusionCell{
		{Name: "True Positive", Value: s.TP},
		{Name: "False Positive", Value: s.FP},
		{Name: "True Negative", Value: s.TN},
		{Name: "False Negative", Value: s.FN},
	}
	out := cells[:0]
	for _, c := range cells {
		if c.Value > 0 {
			out = append(out, c)
		}
	}
	return out
}
