package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tridentsec/trident-analytics/internal/history"
	"github.com/tridentsec/trident-analytics/internal/models"
	"github.com/tridentsec/trident-analytics/internal/utils"
)

type runnerStub struct {
	snap *models.AnalyticsSnapshot
	err  error
}

func (r *runnerStub) Run(ctx context.Context) (*models.AnalyticsSnapshot, error) {
	s := *r.snap
	s.StartedAt = time.Now()
	s.CompletedAt = s.StartedAt.Add(40 * time.Millisecond)
	return &s, r.err
}

type historyStub struct {
	mu      sync.Mutex
	entries []history.Entry
	pruned  int
	err     error
}

func (h *historyStub) Record(ctx context.Context, e history.Entry) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return h.err
	}
	h.entries = append([]history.Entry{e}, h.entries...)
	return nil
}

func (h *historyStub) Query(ctx context.Context, opts history.QueryOpts) ([]history.Entry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]history.Entry(nil), h.entries...), h.err
}

func (h *historyStub) Prune(ctx context.Context, before time.Time) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pruned++
	return 0, nil
}

type invalidatorStub struct {
	limit int
	calls int
}

func (i *invalidatorStub) Invalidate(ctx context.Context, alertLimit int) error {
	i.calls++
	i.limit = alertLimit
	return nil
}

func TestSnapshotBeforeFirstCycle(t *testing.T) {
	service := NewAnalyticsService(nil, &runnerStub{snap: &models.AnalyticsSnapshot{}}, Options{})

	_, err := service.Snapshot()
	if !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("expected ErrNoSnapshot, got %v", err)
	}
}

func TestRefreshRecordsHistory(t *testing.T) {
	hist := &historyStub{}
	inv := &invalidatorStub{}
	runner := &runnerStub{snap: &models.AnalyticsSnapshot{
		CycleID:        "c1",
		AlertCount:     3,
		Classification: models.ClassificationSummary{TP: 2, FP: 1, TotalWithFeedback: 3, FPRate: 33.3},
	}}
	service := NewAnalyticsService(nil, runner, Options{History: hist, Retention: time.Hour, Invalidator: inv, AlertLimit: 1000})

	snap, err := service.Refresh(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inv.calls != 1 || inv.limit != 1000 {
		t.Fatalf("expected cache invalidation with limit 1000, got %d calls limit %d", inv.calls, inv.limit)
	}
	latest, err := service.Snapshot()
	if err != nil || latest != snap {
		t.Fatalf("expected refreshed snapshot to be published, got %v %v", latest, err)
	}
	if len(hist.entries) != 1 || hist.entries[0].CycleID != "c1" {
		t.Fatalf("expected one history entry, got %+v", hist.entries)
	}
	if hist.pruned != 1 {
		t.Fatalf("expected prune after record, got %d", hist.pruned)
	}
	if service.LatencyP95() != 40*time.Millisecond {
		t.Fatalf("unexpected p95 %s", service.LatencyP95())
	}

	view, err := service.History(context.Background(), history.QueryOpts{})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(view.Entries) != 1 || len(view.Trend.Points) != 1 {
		t.Fatalf("unexpected history view: %+v", view)
	}
}

func TestRefreshAllSourcesFailed(t *testing.T) {
	runner := &runnerStub{
		snap: &models.AnalyticsSnapshot{CycleID: "bad", Error: utils.AllSourcesFailedMessage},
		err:  utils.ErrAllSourcesFailed,
	}
	service := NewAnalyticsService(nil, runner, Options{})

	snap, err := service.Refresh(context.Background())
	if !errors.Is(err, utils.ErrAllSourcesFailed) {
		t.Fatalf("expected ErrAllSourcesFailed, got %v", err)
	}
	if snap == nil || !snap.Failed() {
		t.Fatalf("expected failed snapshot, got %+v", snap)
	}
}

func TestHistoryDisabled(t *testing.T) {
	service := NewAnalyticsService(nil, &runnerStub{snap: &models.AnalyticsSnapshot{}}, Options{})
	if _, err := service.History(context.Background(), history.QueryOpts{}); !errors.Is(err, ErrHistoryDisabled) {
		t.Fatalf("expected ErrHistoryDisabled, got %v", err)
	}
}

func TestAutoRefreshToggle(t *testing.T) {
	service := NewAnalyticsService(nil, &runnerStub{snap: &models.AnalyticsSnapshot{}}, Options{AutoRefresh: false, Interval: time.Hour})
	service.Start(context.Background())
	defer service.Stop()

	if enabled, _ := service.AutoRefresh(); enabled {
		t.Fatalf("expected auto-refresh disabled")
	}
	service.SetAutoRefresh(true)
	if enabled, state := service.AutoRefresh(); !enabled || state != "scheduled" {
		t.Fatalf("expected scheduled, got %v %s", enabled, state)
	}
}
