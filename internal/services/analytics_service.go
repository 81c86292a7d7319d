package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/tridentsec/trident-analytics/internal/history"
	"github.com/tridentsec/trident-analytics/internal/models"
	"github.com/tridentsec/trident-analytics/internal/scheduler"
	"github.com/tridentsec/trident-analytics/internal/utils"
)

var (
	// ErrNoSnapshot is returned before the first cycle has completed.
	ErrNoSnapshot = errors.New("no analytics snapshot available yet")
	// ErrHistoryDisabled is returned when no history store is configured.
	ErrHistoryDisabled = errors.New("cycle history not configured")
)

// HistoryStore defines storage operations required for cycle history.
type HistoryStore interface {
	Record(ctx context.Context, e history.Entry) error
	Query(ctx context.Context, opts history.QueryOpts) ([]history.Entry, error)
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// CacheInvalidator drops cached backend responses ahead of a manual refresh.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, alertLimit int) error
}

// Options configures the AnalyticsService.
type Options struct {
	AutoRefresh    bool
	Interval       time.Duration
	AlertLimit     int
	History        HistoryStore
	Retention      time.Duration
	Invalidator    CacheInvalidator
	SpikeThreshold float64
}

// HistoryView is the recorded cycles plus their FP-rate trend.
type HistoryView struct {
	Entries      []history.Entry       `json:"entries"`
	Trend        history.Trend         `json:"trend"`
	Degradations []history.Degradation `json:"degradations"`
}

// AnalyticsService is the facade the transports talk to. It owns the refresh
// scheduler and records every published cycle.
type AnalyticsService struct {
	logger    *slog.Logger
	scheduler *scheduler.Scheduler
	history   HistoryStore
	cache     CacheInvalidator
	opts      Options
	latencies *utils.LatencyTracker
	now       func() time.Time
}

// NewAnalyticsService constructs the service around a cycle runner.
func NewAnalyticsService(logger *slog.Logger, runner scheduler.Runner, opts Options) *AnalyticsService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &AnalyticsService{
		logger:    logger,
		history:   opts.History,
		cache:     opts.Invalidator,
		opts:      opts,
		latencies: utils.NewLatencyTracker(1024),
		now:       time.Now,
	}
	s.scheduler = scheduler.New(logger, runner, scheduler.NewSnapshotStore(), scheduler.Config{
		Enabled:   opts.AutoRefresh,
		Interval:  opts.Interval,
		OnPublish: s.recordCycle,
	})
	return s
}

// Start begins auto-refresh (when enabled) bound to ctx.
func (s *AnalyticsService) Start(ctx context.Context) { s.scheduler.Start(ctx) }

// Stop halts auto-refresh and waits for in-flight cycles.
func (s *AnalyticsService) Stop() { s.scheduler.Stop() }

// Snapshot returns the latest published snapshot.
func (s *AnalyticsService) Snapshot() (*models.AnalyticsSnapshot, error) {
	snap := s.scheduler.Store().Latest()
	if snap == nil {
		return nil, ErrNoSnapshot
	}
	return snap, nil
}

// Subscribe streams published snapshots.
func (s *AnalyticsService) Subscribe() (<-chan *models.AnalyticsSnapshot, func()) {
	return s.scheduler.Store().Subscribe()
}

// Refresh runs a cycle now, bypassing the response cache. A snapshot is
// returned even when every source failed, alongside the error.
func (s *AnalyticsService) Refresh(ctx context.Context) (*models.AnalyticsSnapshot, error) {
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, s.opts.AlertLimit); err != nil {
			s.logger.Warn("cache invalidation failed", slog.Any("error", err))
		}
	}
	return s.scheduler.RefreshNow(ctx)
}

// SetAutoRefresh toggles the periodic refresh.
func (s *AnalyticsService) SetAutoRefresh(enabled bool) { s.scheduler.SetEnabled(enabled) }

// AutoRefresh reports the periodic refresh flag and scheduler state.
func (s *AnalyticsService) AutoRefresh() (bool, scheduler.State) {
	return s.scheduler.Enabled(), s.scheduler.State()
}

// History returns recorded cycles, newest first, with the FP-rate trend.
func (s *AnalyticsService) History(ctx context.Context, opts history.QueryOpts) (HistoryView, error) {
	if s.history == nil {
		return HistoryView{}, ErrHistoryDisabled
	}
	entries, err := s.history.Query(ctx, opts)
	if err != nil {
		return HistoryView{}, err
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	return NewHistoryView(entries, s.opts.SpikeThreshold), nil
}

// NewHistoryView derives the trend and recurring degradations from entries.
func NewHistoryView(entries []history.Entry, spikeThreshold float64) HistoryView {
	if entries == nil {
		entries = []history.Entry{}
	}
	degradations := history.MineDegradations(entries)
	if degradations == nil {
		degradations = []history.Degradation{}
	}
	return HistoryView{
		Entries:      entries,
		Trend:        history.BuildTrend(entries, spikeThreshold),
		Degradations: degradations,
	}
}

// LatencyP95 returns the current p95 cycle latency.
func (s *AnalyticsService) LatencyP95() time.Duration {
	if s.latencies == nil {
		return 0
	}
	return s.latencies.Percentile(95)
}

func (s *AnalyticsService) recordCycle(ctx context.Context, snap *models.AnalyticsSnapshot) {
	duration := snap.CompletedAt.Sub(snap.StartedAt)
	s.latencies.Observe(duration)
	if count := s.latencies.Count(); count >= 20 && count%20 == 0 {
		s.logger.Info("cycle latency", slog.Duration("p95", s.latencies.Percentile(95)), slog.Int("samples", count))
	}

	if s.history == nil {
		return
	}
	// the cycle context may be cancelled right after publish
	writeCtx := context.WithoutCancel(ctx)
	if err := s.history.Record(writeCtx, history.EntryFromSnapshot(snap)); err != nil {
		s.logger.Error("record cycle failed", slog.String("cycle_id", snap.CycleID), slog.Any("error", err))
		return
	}
	if s.opts.Retention > 0 {
		if _, err := s.history.Prune(writeCtx, s.now().Add(-s.opts.Retention)); err != nil {
			s.logger.Warn("prune history failed", slog.Any("error", err))
		}
	}
}
