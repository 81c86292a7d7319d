package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tridentsec/trident-analytics/internal/models"
)

const (
	// OutcomeSuccess labels cycles in which every source answered.
	OutcomeSuccess = models.OutcomeSuccess
	// OutcomePartial labels cycles with one to three failed sources.
	OutcomePartial = models.OutcomePartial
	// OutcomeError labels cycles in which all sources failed.
	OutcomeError = models.OutcomeError
)

var (
	refreshCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trident_analytics",
			Name:      "refresh_cycles_total",
			Help:      "Total number of refresh cycles, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	refreshDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "trident_analytics",
			Name:      "refresh_cycle_seconds",
			Help:      "Refresh cycle latency in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
	)

	sourceFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trident_analytics",
			Name:      "source_failures_total",
			Help:      "Backend source failures, partitioned by source and reason.",
		},
		[]string{"source", "reason"},
	)

	staleCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "trident_analytics",
			Name:      "stale_cycles_total",
			Help:      "Cycles discarded because a newer snapshot was already published.",
		},
	)

	classificationPercent = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "trident_analytics",
			Name:      "classification_percent",
			Help:      "Latest classification statistics derived from alert feedback.",
		},
		[]string{"stat"},
	)

	alertsWithFeedback = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "trident_analytics",
			Name:      "alerts_with_feedback",
			Help:      "Alerts marked true or false positive in the latest cycle.",
		},
	)
)

// Register attaches trident-analytics collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		refreshCyclesTotal,
		refreshDurationSeconds,
		sourceFailuresTotal,
		staleCyclesTotal,
		classificationPercent,
		alertsWithFeedback,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveCycle records a refresh cycle duration and outcome label.
func ObserveCycle(duration time.Duration, outcome string) {
	switch outcome {
	case OutcomePartial, OutcomeError:
	default:
		outcome = OutcomeSuccess
	}
	refreshCyclesTotal.WithLabelValues(outcome).Inc()
	if duration < 0 {
		duration = 0
	}
	refreshDurationSeconds.Observe(duration.Seconds())
}

// ObserveSourceFailure counts one failed fetch.
func ObserveSourceFailure(source models.Source, reason string) {
	sourceFailuresTotal.WithLabelValues(string(source), reason).Inc()
}

// ObserveStaleCycle counts one discarded cycle.
func ObserveStaleCycle() {
	staleCyclesTotal.Inc()
}

// SetClassification publishes the latest classification summary.
func SetClassification(summary models.ClassificationSummary) {
	classificationPercent.WithLabelValues("accuracy").Set(summary.Accuracy)
	classificationPercent.WithLabelValues("precision").Set(summary.Precision)
	classificationPercent.WithLabelValues("recall").Set(summary.Recall)
	classificationPercent.WithLabelValues("f1").Set(summary.F1Score)
	classificationPercent.WithLabelValues("fp_rate").Set(summary.FPRate)
	alertsWithFeedback.Set(float64(summary.TotalWithFeedback))
}
