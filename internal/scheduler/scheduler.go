package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/tridentsec/trident-analytics/internal/metrics"
	"github.com/tridentsec/trident-analytics/internal/models"
)

// DefaultInterval is the period between refresh cycles.
const DefaultInterval = 30 * time.Second

// State is the scheduler lifecycle state.
type State string

const (
	StateIdle      State = "idle"
	StateScheduled State = "scheduled"
)

// Runner executes one refresh cycle.
type Runner interface {
	Run(ctx context.Context) (*models.AnalyticsSnapshot, error)
}

// Config is fixed at construction.
type Config struct {
	Enabled  bool
	Interval time.Duration
	// OnPublish, if set, is called with every snapshot that gets published.
	OnPublish func(ctx context.Context, snap *models.AnalyticsSnapshot)
}

// Scheduler re-runs the analytics cycle on a fixed period while enabled. Ticks
// do not wait for the previous cycle; each finished cycle is offered to the
// snapshot store, which rejects results from cycles that started before the one
// already published. Start order comes from a sequence, not the wall clock.
type Scheduler struct {
	logger    *slog.Logger
	runner    Runner
	store     *SnapshotStore
	interval  time.Duration
	onPublish func(ctx context.Context, snap *models.AnalyticsSnapshot)

	mu      sync.Mutex
	enabled bool
	started bool
	parent  context.Context
	cancel  context.CancelFunc
	gen     uint64
	loopWG  sync.WaitGroup
	cycleWG sync.WaitGroup
}

// New constructs a scheduler in the idle state.
func New(logger *slog.Logger, runner Runner, store *SnapshotStore, cfg Config) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if store == nil {
		store = NewSnapshotStore()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	return &Scheduler{
		logger:    logger,
		runner:    runner,
		store:     store,
		interval:  cfg.Interval,
		onPublish: cfg.OnPublish,
		enabled:   cfg.Enabled,
	}
}

// Store exposes the snapshot holder.
func (s *Scheduler) Store() *SnapshotStore { return s.store }

// State reports whether a ticker is currently armed.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return StateScheduled
	}
	return StateIdle
}

// Start attaches the scheduler to the consumer's context. When refresh is
// enabled a cycle fires immediately and then every interval. Cancelling ctx has
// the same effect as Stop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.parent = ctx
	if s.enabled {
		s.scheduleLocked()
	}
}

// Stop disarms the ticker and waits for the loop and any in-flight cycles to
// return. No cycle starts after Stop returns.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.started = false
	s.parent = nil
	s.unscheduleLocked()
	s.mu.Unlock()

	s.loopWG.Wait()
	s.cycleWG.Wait()
}

// SetEnabled toggles auto-refresh at runtime.
func (s *Scheduler) SetEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.enabled == enabled {
		return
	}
	s.enabled = enabled
	switch {
	case enabled && s.started:
		s.scheduleLocked()
	case !enabled:
		s.unscheduleLocked()
	}
	s.logger.Info("auto-refresh toggled", slog.Bool("enabled", enabled))
}

// Enabled reports the auto-refresh flag.
func (s *Scheduler) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// RefreshNow runs one cycle synchronously and publishes it. It is the retry
// path after a failed cycle and works whether or not auto-refresh is enabled.
func (s *Scheduler) RefreshNow(ctx context.Context) (*models.AnalyticsSnapshot, error) {
	seq := s.store.NextSequence()
	snap, err := s.runner.Run(ctx)
	if snap != nil {
		snap.Sequence = seq
		s.publish(ctx, snap)
	}
	return snap, err
}

func (s *Scheduler) scheduleLocked() {
	if s.cancel != nil || s.parent == nil {
		return
	}
	ctx, cancel := context.WithCancel(s.parent)
	s.cancel = cancel
	s.gen++
	s.loopWG.Add(1)
	go s.loop(ctx, s.gen)
}

func (s *Scheduler) unscheduleLocked() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	s.cancel = nil
}

func (s *Scheduler) loop(ctx context.Context, gen uint64) {
	defer s.loopWG.Done()
	defer s.release(gen)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.fire(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.fire(ctx)
		}
	}
}

// release returns to idle when the loop ends because the consumer's context
// was cancelled rather than through Stop or SetEnabled.
func (s *Scheduler) release(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen == gen {
		s.unscheduleLocked()
	}
}

// fire launches a cycle without waiting for it.
func (s *Scheduler) fire(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	seq := s.store.NextSequence()
	s.cycleWG.Add(1)
	go func() {
		defer s.cycleWG.Done()
		snap, err := s.runner.Run(ctx)
		if ctx.Err() != nil {
			// torn down mid-cycle; the result reflects cancellation, not the backend
			return
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Warn("analytics cycle failed", slog.Any("error", err))
		}
		if snap != nil {
			snap.Sequence = seq
			s.publish(ctx, snap)
		}
	}()
}

func (s *Scheduler) publish(ctx context.Context, snap *models.AnalyticsSnapshot) {
	if !s.store.Publish(snap) {
		metrics.ObserveStaleCycle()
		s.logger.Debug("discarding stale cycle", slog.String("cycle_id", snap.CycleID))
		return
	}
	if s.onPublish != nil {
		s.onPublish(ctx, snap)
	}
}
