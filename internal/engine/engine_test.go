package engine

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tridentsec/trident-analytics/internal/models"
	"github.com/tridentsec/trident-analytics/internal/repo"
	"github.com/tridentsec/trident-analytics/internal/utils"
)

type stubFetcher struct {
	metrics      func(context.Context) (models.MetricsSnapshot, error)
	modelMetrics func(context.Context) (models.ModelPerformance, error)
	baselines    func(context.Context) ([]models.Baseline, error)
	alerts       func(context.Context, int) ([]models.AlertRecord, error)
}

func (s stubFetcher) FetchMetrics(ctx context.Context) (models.MetricsSnapshot, error) {
	if s.metrics == nil {
		return models.MetricsSnapshot{}, nil
	}
	return s.metrics(ctx)
}

func (s stubFetcher) FetchModelMetrics(ctx context.Context) (models.ModelPerformance, error) {
	if s.modelMetrics == nil {
		return models.ModelPerformance{}, nil
	}
	return s.modelMetrics(ctx)
}

func (s stubFetcher) FetchBaselines(ctx context.Context) ([]models.Baseline, error) {
	if s.baselines == nil {
		return nil, nil
	}
	return s.baselines(ctx)
}

func (s stubFetcher) FetchAlerts(ctx context.Context, limit int) ([]models.AlertRecord, error) {
	if s.alerts == nil {
		return nil, nil
	}
	return s.alerts(ctx, limit)
}

func failing() stubFetcher {
	down := utils.Unavailable("GET", errors.New("connection refused"))
	return stubFetcher{
		metrics:      func(context.Context) (models.MetricsSnapshot, error) { return models.MetricsSnapshot{}, down },
		modelMetrics: func(context.Context) (models.ModelPerformance, error) { return models.ModelPerformance{}, down },
		baselines:    func(context.Context) ([]models.Baseline, error) { return nil, down },
		alerts:       func(context.Context, int) ([]models.AlertRecord, error) { return nil, down },
	}
}

func i64(v int64) *int64     { return &v }
func f64(v float64) *float64 { return &v }

func alerts(statuses ...models.AlertStatus) []models.AlertRecord {
	out := make([]models.AlertRecord, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, models.AlertRecord{Status: s})
	}
	return out
}

func TestClassifyScenario(t *testing.T) {
	s := Classify(alerts(models.AlertStatusTruePositive, models.AlertStatusTruePositive, models.AlertStatusFalsePositive))

	assert.Equal(t, 2, s.TP)
	assert.Equal(t, 1, s.FP)
	assert.Equal(t, 3, s.TotalWithFeedback)
	assert.Equal(t, 3, s.Total)
	assert.InDelta(t, 66.67, s.Accuracy, 0.01)
	assert.InDelta(t, 66.67, s.Precision, 0.01)
	assert.InDelta(t, 66.67, s.Recall, 0.01)
	assert.InDelta(t, 66.67, s.F1Score, 0.01)
	assert.InDelta(t, 33.33, s.FPRate, 0.01)
}

func TestClassifyWithoutFeedbackIsAllZero(t *testing.T) {
	for name, input := range map[string][]models.AlertRecord{
		"nil":         nil,
		"empty":       {},
		"all pending": alerts(models.AlertStatusPending, models.AlertStatusPending, "approved", "something_else"),
	} {
		t.Run(name, func(t *testing.T) {
			s := Classify(input)
			assert.Equal(t, 0, s.TotalWithFeedback)
			assert.Zero(t, s.Accuracy)
			assert.Zero(t, s.Precision)
			assert.Zero(t, s.Recall)
			assert.Zero(t, s.F1Score)
			assert.Zero(t, s.FPRate)
			assert.Empty(t, s.ConfusionMatrix())
		})
	}
}

func TestClassifyInvariants(t *testing.T) {
	statuses := []models.AlertStatus{models.AlertStatusTruePositive, models.AlertStatusFalsePositive, models.AlertStatusPending, models.AlertStatusRejected}
	// every sequence of length 0..5 over the status alphabet
	var walk func(prefix []models.AlertStatus)
	walk = func(prefix []models.AlertStatus) {
		s := Classify(alerts(prefix...))
		require.Equal(t, s.TotalWithFeedback, s.TP+s.FP)
		require.Zero(t, s.TN)
		require.Zero(t, s.FN)
		require.Equal(t, len(prefix), s.Total)
		for _, v := range []float64{s.Accuracy, s.Precision, s.Recall, s.F1Score, s.FPRate} {
			require.False(t, math.IsNaN(v), "NaN for %v", prefix)
			require.GreaterOrEqual(t, v, 0.0)
			require.LessOrEqual(t, v, 100.0)
		}
		if s.TotalWithFeedback > 0 {
			require.InDelta(t, 100.0, s.Accuracy+s.FPRate, 1e-9)
		}
		if len(prefix) == 5 {
			return
		}
		for _, st := range statuses {
			walk(append(append([]models.AlertStatus{}, prefix...), st))
		}
	}
	walk(nil)
}

func TestConfusionMatrixSkipsZeroCells(t *testing.T) {
	s := Classify(alerts(models.AlertStatusFalsePositive))
	assert.Equal(t, []models.ConfusionCell{{Name: "False Positive", Value: 1}}, s.ConfusionMatrix())
}

func TestReconcilePrefersDedicated(t *testing.T) {
	dedicated := models.ModelPerformance{AnomalyCount: i64(5)}
	general := models.MetricsSnapshot{ModelPerformance: &models.ModelPerformance{AnomalyCount: i64(99), AverageAnomalyScore: f64(0.4)}}

	got, src := Reconcile(Outcome[models.ModelPerformance]{Value: dedicated}, Outcome[models.MetricsSnapshot]{Value: general})
	require.NotNil(t, got)
	assert.Equal(t, dedicated, *got)
	assert.Equal(t, models.PerformanceSourceDedicated, src)
}

func TestReconcileKeepsParsedDedicatedRecord(t *testing.T) {
	dedicated, err := repo.ParseModelPerformance([]byte(`{"anomaly_count": 12.0, "total_predictions": 100, "average_anomaly_score": "n/a"}`))
	require.NoError(t, err)
	general, err := repo.ParseMetricsSnapshot([]byte(`{"model_performance": {"anomaly_count": 1}}`))
	require.NoError(t, err)

	got, src := Reconcile(Outcome[models.ModelPerformance]{Value: dedicated}, Outcome[models.MetricsSnapshot]{Value: general})
	assert.Equal(t, models.PerformanceSourceDedicated, src)
	require.NotNil(t, got)
	assert.Equal(t, dedicated, *got)
	assert.Equal(t, int64(12), *got.AnomalyCount)
}

func TestReconcileFallsBackToEmbedded(t *testing.T) {
	embedded := &models.ModelPerformance{NormalCount: i64(40)}
	general := Outcome[models.MetricsSnapshot]{Value: models.MetricsSnapshot{ModelPerformance: embedded}}

	for name, dedicated := range map[string]Outcome[models.ModelPerformance]{
		"unavailable": {Err: utils.Unavailable("GET", errors.New("timeout"))},
		"malformed":   {Err: utils.Malformed("parse", "expected JSON object")},
	} {
		t.Run(name, func(t *testing.T) {
			got, src := Reconcile(dedicated, general)
			require.NotNil(t, got)
			assert.Equal(t, *embedded, *got)
			assert.NotSame(t, embedded, got)
			assert.Equal(t, models.PerformanceSourceEmbedded, src)
		})
	}
}

func TestReconcileAbsent(t *testing.T) {
	failed := Outcome[models.ModelPerformance]{Err: utils.ErrSourceUnavailable}
	got, src := Reconcile(failed, Outcome[models.MetricsSnapshot]{Value: models.MetricsSnapshot{}})
	assert.Nil(t, got)
	assert.Equal(t, models.PerformanceSourceNone, src)

	got, src = Reconcile(failed, Outcome[models.MetricsSnapshot]{Err: utils.ErrSourceUnavailable})
	assert.Nil(t, got)
	assert.Equal(t, models.PerformanceSourceNone, src)
}

func TestFetchAllSucceed(t *testing.T) {
	var gotLimit int
	f := stubFetcher{
		metrics: func(context.Context) (models.MetricsSnapshot, error) {
			return models.MetricsSnapshot{Latency: &models.LatencyStats{Mean: f64(3)}}, nil
		},
		alerts: func(_ context.Context, limit int) ([]models.AlertRecord, error) {
			gotLimit = limit
			return alerts(models.AlertStatusTruePositive), nil
		},
	}
	result, err := NewOrchestrator(f, 0, nil).Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DefaultAlertLimit, gotLimit)
	assert.Empty(t, result.Degraded())
	assert.NotNil(t, result.Baselines.Value)
	assert.Len(t, result.Alerts.Value, 1)
}

func TestFetchRunsSourcesConcurrently(t *testing.T) {
	var started sync.WaitGroup
	started.Add(4)
	release := make(chan struct{})
	wait := func() {
		started.Done()
		<-release
	}
	f := stubFetcher{
		metrics:      func(context.Context) (models.MetricsSnapshot, error) { wait(); return models.MetricsSnapshot{}, nil },
		modelMetrics: func(context.Context) (models.ModelPerformance, error) { wait(); return models.ModelPerformance{}, nil },
		baselines:    func(context.Context) ([]models.Baseline, error) { wait(); return nil, nil },
		alerts:       func(context.Context, int) ([]models.AlertRecord, error) { wait(); return nil, nil },
	}

	done := make(chan struct{})
	go func() {
		_, _ = NewOrchestrator(f, 10, nil).Fetch(context.Background())
		close(done)
	}()

	allStarted := make(chan struct{})
	go func() { started.Wait(); close(allStarted) }()
	select {
	case <-allStarted:
	case <-time.After(2 * time.Second):
		t.Fatal("fetches were not issued concurrently")
	}
	close(release)
	<-done
}

func TestFetchFailureDoesNotCancelOthers(t *testing.T) {
	var completed atomic.Int32
	f := stubFetcher{
		metrics: func(context.Context) (models.MetricsSnapshot, error) {
			return models.MetricsSnapshot{}, utils.Unavailable("GET /api/v1/metrics", errors.New("503"))
		},
		modelMetrics: func(ctx context.Context) (models.ModelPerformance, error) {
			time.Sleep(20 * time.Millisecond)
			if ctx.Err() == nil {
				completed.Add(1)
			}
			return models.ModelPerformance{AnomalyCount: i64(1)}, nil
		},
		baselines: func(ctx context.Context) ([]models.Baseline, error) {
			time.Sleep(20 * time.Millisecond)
			if ctx.Err() == nil {
				completed.Add(1)
			}
			return []models.Baseline{{ContextType: models.ContextTypeGlobal}}, nil
		},
		alerts: func(ctx context.Context, _ int) ([]models.AlertRecord, error) {
			time.Sleep(20 * time.Millisecond)
			if ctx.Err() == nil {
				completed.Add(1)
			}
			return alerts(models.AlertStatusFalsePositive), nil
		},
	}

	result, err := NewOrchestrator(f, 10, nil).Fetch(context.Background())
	require.NoError(t, err, "partial failure is not an aggregate error")
	assert.Equal(t, int32(3), completed.Load())
	assert.Equal(t, []models.Source{models.SourceMetrics}, result.Degraded())
	assert.ErrorIs(t, result.Metrics.Err, utils.ErrSourceUnavailable)
}

func TestFetchDefaultsFailedSources(t *testing.T) {
	f := stubFetcher{
		baselines: func(context.Context) ([]models.Baseline, error) {
			return []models.Baseline{{ContextKey: "partial"}}, utils.Malformed("parse baselines", "expected object or list")
		},
		alerts: func(context.Context, int) ([]models.AlertRecord, error) {
			return nil, errors.New("plain transport error")
		},
	}
	result, err := NewOrchestrator(f, 10, nil).Fetch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []models.Baseline{}, result.Baselines.Value)
	assert.Equal(t, []models.AlertRecord{}, result.Alerts.Value)
	assert.Equal(t, "malformed", FailureReason(result.Baselines.Err))
	assert.ErrorIs(t, result.Alerts.Err, utils.ErrSourceUnavailable)
	assert.Equal(t, []models.Source{models.SourceBaselines, models.SourceAlerts}, result.Degraded())
}

func TestFetchAllSourcesFailed(t *testing.T) {
	result, err := NewOrchestrator(failing(), 10, nil).Fetch(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, utils.ErrAllSourcesFailed)
	assert.ErrorIs(t, err, utils.ErrSourceUnavailable)
	assert.True(t, IsAllSourcesFailed(err))
	assert.Len(t, result.Failures(), 4)
}

func TestMetricsFailureScenario(t *testing.T) {
	f := stubFetcher{
		metrics: func(context.Context) (models.MetricsSnapshot, error) {
			return models.MetricsSnapshot{}, utils.Unavailable("GET", errors.New("502"))
		},
		modelMetrics: func(context.Context) (models.ModelPerformance, error) {
			return models.ModelPerformance{TotalPredictions: i64(10)}, nil
		},
		baselines: func(context.Context) ([]models.Baseline, error) {
			return []models.Baseline{{ContextType: models.ContextTypeIP, ContextKey: "10.1.1.1"}}, nil
		},
		alerts: func(context.Context, int) ([]models.AlertRecord, error) {
			return alerts(models.AlertStatusTruePositive, models.AlertStatusTruePositive, models.AlertStatusFalsePositive), nil
		},
	}

	snapshot, err := NewAnalyzer(nil, NewOrchestrator(f, 10, nil)).Run(context.Background())
	require.NoError(t, err)
	assert.Nil(t, snapshot.Metrics)
	assert.Empty(t, snapshot.Error)
	assert.False(t, snapshot.Failed())
	assert.True(t, snapshot.HasData)
	assert.Equal(t, []models.Source{models.SourceMetrics}, snapshot.Degraded)
	assert.Equal(t, models.PerformanceSourceDedicated, snapshot.PerformanceSource)
	assert.Equal(t, 3, snapshot.AlertCount)
	assert.InDelta(t, 33.33, snapshot.Classification.FPRate, 0.01)
	assert.NotEmpty(t, snapshot.CycleID)
	assert.False(t, snapshot.CompletedAt.Before(snapshot.StartedAt))
	require.Len(t, snapshot.BaselineStats, 1)
	assert.Equal(t, "10.1.1.1", snapshot.BaselineStats[0].Context)
}

func TestAllSourcesFailedScenario(t *testing.T) {
	snapshot, err := NewAnalyzer(nil, NewOrchestrator(failing(), 10, nil)).Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, utils.ErrAllSourcesFailed)
	require.NotNil(t, snapshot)
	assert.True(t, snapshot.Failed())
	assert.Equal(t, utils.AllSourcesFailedMessage, snapshot.Error)
	assert.False(t, snapshot.HasData)
	assert.Len(t, snapshot.Degraded, 4)
	assert.Equal(t, models.PerformanceSourceNone, snapshot.PerformanceSource)
	assert.Zero(t, snapshot.Classification)
}

func TestBuildHasData(t *testing.T) {
	empty := Build(FetchResult{})
	assert.False(t, empty.HasData)

	withEmptyModel := Build(FetchResult{ModelMetrics: Outcome[models.ModelPerformance]{Value: models.ModelPerformance{}}})
	assert.False(t, withEmptyModel.HasData, "an empty record is not data")

	withBaseline := Build(FetchResult{Baselines: Outcome[[]models.Baseline]{Value: []models.Baseline{{}}}})
	assert.True(t, withBaseline.HasData)
}

func TestBaselineStats(t *testing.T) {
	day := time.Date(2024, 3, 9, 23, 0, 0, 0, time.UTC)
	input := []models.Baseline{
		{ContextType: models.ContextTypeIP, ContextKey: "192.168.100.200", Metrics: map[string]any{"a": 1, "b": 2}, Version: "4", WindowEnd: &day},
		{ContextType: models.ContextTypeEndpoint, ContextKey: "/api/v1/some/really/long/endpoint/path"},
		{ContextType: models.ContextTypeGlobal},
	}
	for i := 0; i < 12; i++ {
		input = append(input, models.Baseline{ContextType: models.ContextTypeGlobal})
	}

	stats := BaselineStats(input)
	require.Len(t, stats, 10)
	assert.Equal(t, models.BaselineStat{Context: "192.168.100.200", Metrics: 2, Version: "4", Updated: "2024-03-09"}, stats[0])
	assert.Equal(t, "/api/v1/some/really/long/endpo", stats[1].Context)
	assert.Len(t, stats[1].Context, 30)
	assert.Equal(t, models.BaselineStat{Context: "global", Metrics: 0, Version: "N/A", Updated: "N/A"}, stats[2])
}
