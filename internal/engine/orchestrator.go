package engine

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/tridentsec/trident-analytics/internal/metrics"
	"github.com/tridentsec/trident-analytics/internal/models"
	"github.com/tridentsec/trident-analytics/internal/utils"
)

// DefaultAlertLimit caps the alerts requested per cycle.
const DefaultAlertLimit = 1000

// Fetcher defines the backend reads a refresh cycle needs.
type Fetcher interface {
	FetchMetrics(ctx context.Context) (models.MetricsSnapshot, error)
	FetchModelMetrics(ctx context.Context) (models.ModelPerformance, error)
	FetchBaselines(ctx context.Context) ([]models.Baseline, error)
	FetchAlerts(ctx context.Context, limit int) ([]models.AlertRecord, error)
}

// Outcome is the settled result of one source: a value or the reason it failed.
type Outcome[T any] struct {
	Value T
	Err   error
}

// OK reports whether the source delivered a value.
func (o Outcome[T]) OK() bool { return o.Err == nil }

// FetchResult holds the settled outcome of every source for one cycle. Failed
// sources carry their zero value (nil slices are replaced with empty ones).
type FetchResult struct {
	Metrics      Outcome[models.MetricsSnapshot]
	ModelMetrics Outcome[models.ModelPerformance]
	Baselines    Outcome[[]models.Baseline]
	Alerts       Outcome[[]models.AlertRecord]
}

// Failures returns the error of each failed source, in fetch order.
func (r FetchResult) Failures() map[models.Source]error {
	out := make(map[models.Source]error)
	for _, src := range models.AllSources {
		if err := r.errFor(src); err != nil {
			out[src] = err
		}
	}
	return out
}

// Degraded lists the failed sources in fetch order.
func (r FetchResult) Degraded() []models.Source {
	var out []models.Source
	for _, src := range models.AllSources {
		if r.errFor(src) != nil {
			out = append(out, src)
		}
	}
	return out
}

func (r FetchResult) errFor(src models.Source) error {
	switch src {
	case models.SourceMetrics:
		return r.Metrics.Err
	case models.SourceModelMetrics:
		return r.ModelMetrics.Err
	case models.SourceBaselines:
		return r.Baselines.Err
	case models.SourceAlerts:
		return r.Alerts.Err
	}
	return nil
}

// FailureReason labels an error as "malformed" or "unavailable".
func FailureReason(err error) string {
	if errors.Is(err, utils.ErrMalformedPayload) {
		return "malformed"
	}
	return "unavailable"
}

// Orchestrator fans the four source reads out concurrently and joins them.
type Orchestrator struct {
	fetcher    Fetcher
	alertLimit int
	logger     *slog.Logger
}

// NewOrchestrator constructs an orchestrator. A non-positive alertLimit uses DefaultAlertLimit.
func NewOrchestrator(fetcher Fetcher, alertLimit int, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if alertLimit <= 0 {
		alertLimit = DefaultAlertLimit
	}
	return &Orchestrator{fetcher: fetcher, alertLimit: alertLimit, logger: logger}
}

// Fetch issues all four reads at once and waits for every one of them to settle.
// One failure never cancels the others and no timeout is added here. The error is
// non-nil only when all four failed; it wraps utils.ErrAllSourcesFailed and each
// per-source reason.
func (o *Orchestrator) Fetch(ctx context.Context) (FetchResult, error) {
	var (
		result FetchResult
		g      errgroup.Group
	)

	g.Go(func() error {
		v, err := o.fetcher.FetchMetrics(ctx)
		result.Metrics = settle(v, err)
		return nil
	})
	g.Go(func() error {
		v, err := o.fetcher.FetchModelMetrics(ctx)
		result.ModelMetrics = settle(v, err)
		return nil
	})
	g.Go(func() error {
		v, err := o.fetcher.FetchBaselines(ctx)
		result.Baselines = settle(v, err)
		if result.Baselines.Value == nil {
			result.Baselines.Value = []models.Baseline{}
		}
		return nil
	})
	g.Go(func() error {
		v, err := o.fetcher.FetchAlerts(ctx, o.alertLimit)
		result.Alerts = settle(v, err)
		if result.Alerts.Value == nil {
			result.Alerts.Value = []models.AlertRecord{}
		}
		return nil
	})
	_ = g.Wait()

	failures := result.Failures()
	for _, src := range models.AllSources {
		err, failed := failures[src]
		if !failed {
			continue
		}
		reason := FailureReason(err)
		metrics.ObserveSourceFailure(src, reason)
		o.logger.Warn("analytics source failed", slog.String("source", string(src)), slog.String("reason", reason), slog.Any("error", err))
	}

	if len(failures) == len(models.AllSources) {
		errs := []error{utils.ErrAllSourcesFailed}
		for _, src := range models.AllSources {
			errs = append(errs, failures[src])
		}
		return result, errors.Join(errs...)
	}
	return result, nil
}

// settle discards any partial value that came back with an error and makes sure
// the error carries one of the source failure kinds.
func settle[T any](v T, err error) Outcome[T] {
	if err == nil {
		return Outcome[T]{Value: v}
	}
	if !errors.Is(err, utils.ErrMalformedPayload) && !errors.Is(err, utils.ErrSourceUnavailable) {
		err = utils.Unavailable("fetch", err)
	}
	var zero T
	return Outcome[T]{Value: zero, Err: err}
}
