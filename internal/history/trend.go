package history

import (
	"time"

	"github.com/VividCortex/ewma"
	"github.com/montanaflynn/stats"

	"github.com/tridentsec/trident-analytics/internal/models"
)

// DefaultSpikeThreshold is the z-score above which an FP rate counts as a spike.
const DefaultSpikeThreshold = 2.5

// TrendPoint is the FP rate of one cycle with its smoothed value.
type TrendPoint struct {
	At       time.Time `json:"at"`
	FPRate   float64   `json:"fp_rate"`
	Accuracy float64   `json:"accuracy"`
	Smoothed float64   `json:"smoothed_fp_rate"`
}

// Spike is a cycle whose FP rate stands out from the window.
type Spike struct {
	At        time.Time `json:"at"`
	FPRate    float64   `json:"fp_rate"`
	Score     float64   `json:"score"`
	Threshold float64   `json:"threshold"`
}

// Trend is the FP-rate series over a window of cycles, oldest first.
type Trend struct {
	Points   []TrendPoint `json:"points"`
	Smoothed float64      `json:"smoothed_fp_rate"`
	Spikes   []Spike      `json:"spikes"`
}

// BuildTrend derives the FP-rate trend from entries as returned by Query (newest
// first). Cycles that failed or had no alert feedback are skipped.
func BuildTrend(entries []Entry, threshold float64) Trend {
	trend := Trend{Points: []TrendPoint{}, Spikes: []Spike{}}
	avg := ewma.NewMovingAverage()

	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if e.Outcome == models.OutcomeError || e.Classification.TotalWithFeedback == 0 {
			continue
		}
		avg.Add(e.Classification.FPRate)
		trend.Points = append(trend.Points, TrendPoint{
			At:       e.CompletedAt,
			FPRate:   e.Classification.FPRate,
			Accuracy: e.Classification.Accuracy,
			Smoothed: avg.Value(),
		})
	}
	trend.Smoothed = avg.Value()
	trend.Spikes = detectSpikes(trend.Points, threshold)
	return trend
}

// detectSpikes flags points whose z-score meets the threshold.
func detectSpikes(points []TrendPoint, threshold float64) []Spike {
	spikes := []Spike{}
	if len(points) == 0 {
		return spikes
	}
	if threshold <= 0 {
		threshold = DefaultSpikeThreshold
	}

	values := make([]float64, len(points))
	for i, p := range points {
		values[i] = p.FPRate
	}
	mean, _ := stats.Mean(values)
	stdDev, _ := stats.StandardDeviationPopulation(values)
	if stdDev == 0 {
		stdDev = 0.01
	}

	for _, p := range points {
		score := (p.FPRate - mean) / stdDev
		if score >= threshold {
			spikes = append(spikes, Spike{At: p.At, FPRate: p.FPRate, Score: score, Threshold: threshold})
		}
	}
	return spikes
}
