package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tridentsec/trident-analytics/internal/metrics"
	"github.com/tridentsec/trident-analytics/internal/models"
	"github.com/tridentsec/trident-analytics/internal/utils"
)

const tracerName = "github.com/tridentsec/trident-analytics/internal/engine"

// Analyzer runs one refresh cycle: fetch, reconcile, classify, summarise.
type Analyzer struct {
	logger       *slog.Logger
	orchestrator *Orchestrator
	tracer       trace.Tracer
	now          func() time.Time
}

// NewAnalyzer constructs an analyzer around the orchestrator.
func NewAnalyzer(logger *slog.Logger, orchestrator *Orchestrator) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{
		logger:       logger,
		orchestrator: orchestrator,
		tracer:       otel.Tracer(tracerName),
		now:          time.Now,
	}
}

// Run executes a cycle and returns a complete snapshot. When every source failed
// the snapshot carries the user-facing error message and Run also returns an
// error wrapping utils.ErrAllSourcesFailed.
func (a *Analyzer) Run(ctx context.Context) (*models.AnalyticsSnapshot, error) {
	cycleID := uuid.NewString()
	started := a.now().UTC()

	ctx, span := a.tracer.Start(ctx, "analytics.refresh_cycle", trace.WithAttributes(attribute.String("cycle.id", cycleID)))
	defer span.End()

	result, err := a.orchestrator.Fetch(ctx)
	snapshot := Build(result)
	snapshot.CycleID = cycleID
	snapshot.StartedAt = started
	snapshot.CompletedAt = a.now().UTC()

	if err != nil {
		snapshot.Error = utils.AllSourcesFailedMessage
		span.RecordError(err)
		span.SetStatus(codes.Error, "all sources failed")
	}
	outcome := snapshot.Outcome()
	span.SetAttributes(
		attribute.Int("cycle.degraded_sources", len(snapshot.Degraded)),
		attribute.String("cycle.model_performance_source", string(snapshot.PerformanceSource)),
		attribute.Int("cycle.alerts", snapshot.AlertCount),
	)
	metrics.ObserveCycle(snapshot.CompletedAt.Sub(started), outcome)
	if err == nil {
		metrics.SetClassification(snapshot.Classification)
	}

	a.logger.Info("analytics cycle completed",
		slog.String("cycle_id", cycleID),
		slog.String("outcome", outcome),
		slog.Int("degraded", len(snapshot.Degraded)),
		slog.Duration("duration", snapshot.CompletedAt.Sub(started)),
	)
	return snapshot, err
}

// Build assembles a snapshot from settled outcomes. It performs no I/O.
func Build(result FetchResult) *models.AnalyticsSnapshot {
	snapshot := &models.AnalyticsSnapshot{
		Baselines: result.Baselines.Value,
		Degraded:  result.Degraded(),
	}
	if snapshot.Baselines == nil {
		snapshot.Baselines = []models.Baseline{}
	}
	if result.Metrics.OK() {
		m := result.Metrics.Value
		snapshot.Metrics = &m
	}
	snapshot.ModelPerformance, snapshot.PerformanceSource = Reconcile(result.ModelMetrics, result.Metrics)

	summary := Classify(result.Alerts.Value)
	snapshot.AlertCount = len(result.Alerts.Value)
	snapshot.Classification = summary
	snapshot.ConfusionMatrix = summary.ConfusionMatrix()
	snapshot.BaselineStats = BaselineStats(snapshot.Baselines)

	snapshot.HasData = !snapshot.Metrics.IsEmpty() ||
		!snapshot.ModelPerformance.IsEmpty() ||
		len(snapshot.Baselines) > 0 ||
		snapshot.AlertCount > 0
	return snapshot
}

// IsAllSourcesFailed reports whether err is the aggregate cycle failure.
func IsAllSourcesFailed(err error) bool {
	return errors.Is(err, utils.ErrAllSourcesFailed)
}
