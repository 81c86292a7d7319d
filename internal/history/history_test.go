package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tridentsec/trident-analytics/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "history.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func entryAt(id string, at time.Time, fpRate float64) Entry {
	return Entry{
		CycleID:           id,
		StartedAt:         at.Add(-time.Second),
		CompletedAt:       at,
		Outcome:           models.OutcomeSuccess,
		PerformanceSource: models.PerformanceSourceDedicated,
		AlertCount:        10,
		Classification: models.ClassificationSummary{
			TP: 9, FP: 1, Total: 10, TotalWithFeedback: 10,
			Accuracy: 100 - fpRate, Precision: 100 - fpRate, Recall: 100 - fpRate, F1Score: 100 - fpRate, FPRate: fpRate,
		},
	}
}

func TestRecordAndQuery(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	first := entryAt("c1", base, 10)
	second := entryAt("c2", base.Add(30*time.Second), 20)
	second.Outcome = models.OutcomePartial
	second.Degraded = []models.Source{models.SourceMetrics, models.SourceBaselines}

	require.NoError(t, store.Record(ctx, first))
	require.NoError(t, store.Record(ctx, second))
	require.NoError(t, store.Record(ctx, second), "duplicate cycle ids are ignored")

	entries, err := store.Query(ctx, QueryOpts{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "c2", entries[0].CycleID, "newest first")
	assert.Equal(t, second.Degraded, entries[0].Degraded)
	assert.Equal(t, second.CompletedAt, entries[0].CompletedAt)
	assert.Equal(t, second.Classification, entries[0].Classification)
	assert.Nil(t, entries[1].Degraded)

	limited, err := store.Query(ctx, QueryOpts{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	since, err := store.Query(ctx, QueryOpts{Since: base.Add(time.Second)})
	require.NoError(t, err)
	require.Len(t, since, 1)
	assert.Equal(t, "c2", since[0].CycleID)
}

func TestPrune(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.Record(ctx, entryAt("old", now.Add(-48*time.Hour), 5)))
	require.NoError(t, store.Record(ctx, entryAt("new", now, 5)))

	n, err := store.Prune(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	entries, err := store.Query(ctx, QueryOpts{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "new", entries[0].CycleID)
}

func TestEntryFromSnapshot(t *testing.T) {
	snap := &models.AnalyticsSnapshot{
		CycleID:           "abc",
		Degraded:          []models.Source{models.SourceAlerts},
		PerformanceSource: models.PerformanceSourceEmbedded,
		AlertCount:        3,
		Classification:    models.ClassificationSummary{TP: 2, FP: 1, TotalWithFeedback: 3},
	}
	e := EntryFromSnapshot(snap)
	assert.Equal(t, models.OutcomePartial, e.Outcome)
	assert.Equal(t, 3, e.AlertCount)
	assert.Equal(t, models.PerformanceSourceEmbedded, e.PerformanceSource)
}

func TestBuildTrendSmoothsOldestFirst(t *testing.T) {
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	// Query order: newest first.
	entries := []Entry{
		entryAt("c3", base.Add(2*time.Minute), 30),
		entryAt("c2", base.Add(time.Minute), 20),
		entryAt("c1", base, 10),
	}
	failed := entryAt("cx", base.Add(90*time.Second), 0)
	failed.Outcome = models.OutcomeError
	noFeedback := entryAt("cy", base.Add(100*time.Second), 0)
	noFeedback.Classification = models.ClassificationSummary{}
	entries = append([]Entry{failed, noFeedback}, entries...)

	trend := BuildTrend(entries, 0)
	require.Len(t, trend.Points, 3)
	assert.Equal(t, 10.0, trend.Points[0].FPRate)
	assert.Equal(t, 30.0, trend.Points[2].FPRate)
	assert.Equal(t, 10.0, trend.Points[0].Smoothed, "first sample seeds the average")
	assert.Greater(t, trend.Points[2].Smoothed, trend.Points[1].Smoothed)
	assert.Less(t, trend.Smoothed, 30.0)
	assert.Equal(t, trend.Points[2].Smoothed, trend.Smoothed)
	assert.Empty(t, trend.Spikes)
}

func TestBuildTrendDetectsSpike(t *testing.T) {
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	var entries []Entry
	for i := 0; i < 20; i++ {
		rate := 2.0
		if i == 0 {
			rate = 45
		}
		entries = append(entries, entryAt(string(rune('a'+i)), base.Add(-time.Duration(i)*time.Minute), rate))
	}

	trend := BuildTrend(entries, DefaultSpikeThreshold)
	require.Len(t, trend.Spikes, 1)
	assert.Equal(t, 45.0, trend.Spikes[0].FPRate)
	assert.Equal(t, base, trend.Spikes[0].At)
	assert.GreaterOrEqual(t, trend.Spikes[0].Score, DefaultSpikeThreshold)
}

func TestBuildTrendEmpty(t *testing.T) {
	trend := BuildTrend(nil, 0)
	assert.Empty(t, trend.Points)
	assert.Empty(t, trend.Spikes)
	assert.Zero(t, trend.Smoothed)
}

func TestMineDegradations(t *testing.T) {
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	entries := []Entry{
		{CycleID: "old", CompletedAt: base, Outcome: models.OutcomeSuccess},
		{CycleID: "mid", CompletedAt: base.Add(time.Minute), Outcome: models.OutcomePartial, Degraded: []models.Source{models.SourceAlerts}},
		{CycleID: "failed", CompletedAt: base.Add(2 * time.Minute), Outcome: models.OutcomeError},
		{CycleID: "new", CompletedAt: base.Add(3 * time.Minute), Outcome: models.OutcomePartial, Degraded: []models.Source{models.SourceAlerts, models.SourceBaselines}},
	}

	patterns := MineDegradations(entries)
	require.Len(t, patterns, 4)

	alerts := patterns[0]
	assert.Equal(t, models.SourceAlerts, alerts.Source)
	assert.Equal(t, 3, alerts.Failures)
	assert.InDelta(t, 0.75, alerts.Prevalence, 1e-9)
	assert.Equal(t, 3, alerts.Streak)
	assert.Equal(t, base.Add(3*time.Minute), alerts.LastSeen)

	baselines := patterns[1]
	assert.Equal(t, models.SourceBaselines, baselines.Source)
	assert.Equal(t, 2, baselines.Failures)
	assert.Equal(t, 2, baselines.Streak)

	for _, p := range patterns[2:] {
		assert.Equal(t, 1, p.Failures, p.Source)
		assert.Zero(t, p.Streak, p.Source)
		assert.Equal(t, base.Add(2*time.Minute), p.LastSeen)
	}
}

func TestMineDegradationsHealthy(t *testing.T) {
	assert.Nil(t, MineDegradations(nil))
	entries := []Entry{{CycleID: "a", CompletedAt: time.Now(), Outcome: models.OutcomeSuccess}}
	assert.Empty(t, MineDegradations(entries))
}
