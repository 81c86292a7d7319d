package utils

import (
	"sync"
	"time"

	"github.com/montanaflynn/stats"
)

// LatencyTracker stores recent duration samples and computes percentiles.
type LatencyTracker struct {
	mu      sync.RWMutex
	samples []float64
	maxSize int
}

// NewLatencyTracker creates a tracker storing up to maxSize samples.
func NewLatencyTracker(maxSize int) *LatencyTracker {
	if maxSize <= 0 {
		maxSize = 512
	}
	return &LatencyTracker{maxSize: maxSize}
}

// Observe records a new duration.
func (l *LatencyTracker) Observe(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.samples = append(l.samples, float64(d))
	if len(l.samples) > l.maxSize {
		l.samples = append(l.samples[:0], l.samples[len(l.samples)-l.maxSize:]...)
	}
}

// Percentile returns the percentile (0-100) duration. Returns zero if no samples.
func (l *LatencyTracker) Percentile(p float64) time.Duration {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(l.samples) == 0 {
		return 0
	}
	data := stats.Float64Data(l.samples)
	switch {
	case p <= 0:
		v, _ := data.Min()
		return time.Duration(v)
	case p >= 100:
		v, _ := data.Max()
		return time.Duration(v)
	}
	v, err := stats.PercentileNearestRank(data, p)
	if err != nil {
		return 0
	}
	return time.Duration(v)
}

// Median returns the median duration.
func (l *LatencyTracker) Median() time.Duration {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.samples) == 0 {
		return 0
	}
	v, err := stats.Median(stats.Float64Data(l.samples))
	if err != nil {
		return 0
	}
	return time.Duration(v)
}

// Count returns number of samples recorded.
func (l *LatencyTracker) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.samples)
}
