package history

import (
	"sort"
	"time"

	"github.com/tridentsec/trident-analytics/internal/models"
)

// Degradation aggregates how often one backend source failed across recorded cycles.
type Degradation struct {
	Source     models.Source `json:"source"`
	Failures   int           `json:"failures"`
	Prevalence float64       `json:"prevalence"`
	LastSeen   time.Time     `json:"last_seen"`
	// Streak counts consecutive failures ending at the newest cycle.
	Streak int `json:"streak"`
}

// MineDegradations ranks sources by how often they were degraded. Entries may be
// in any order. A cycle that failed outright counts against every source.
func MineDegradations(entries []Entry) []Degradation {
	if len(entries) == 0 {
		return nil
	}

	ordered := make([]Entry, len(entries))
	copy(ordered, entries)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].CompletedAt.After(ordered[j].CompletedAt)
	})

	stats := make(map[models.Source]*sourceAggregate)
	for idx, e := range ordered {
		failed := failedSources(e)
		for _, src := range models.AllSources {
			agg := ensureAggregate(stats, src)
			if _, ok := failed[src]; !ok {
				agg.streakBroken = true
				continue
			}
			agg.count++
			if e.CompletedAt.After(agg.lastSeen) {
				agg.lastSeen = e.CompletedAt
			}
			if !agg.streakBroken && agg.streak == idx {
				agg.streak++
			}
		}
	}

	out := make([]Degradation, 0, len(stats))
	for src, agg := range stats {
		if agg.count == 0 {
			continue
		}
		out = append(out, Degradation{
			Source:     src,
			Failures:   agg.count,
			Prevalence: float64(agg.count) / float64(len(ordered)),
			LastSeen:   agg.lastSeen,
			Streak:     agg.streak,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Failures != out[j].Failures {
			return out[i].Failures > out[j].Failures
		}
		return out[i].Source < out[j].Source
	})
	return out
}

type sourceAggregate struct {
	count        int
	streak       int
	streakBroken bool
	lastSeen     time.Time
}

func ensureAggregate(m map[models.Source]*sourceAggregate, src models.Source) *sourceAggregate {
	agg, ok := m[src]
	if !ok {
		agg = &sourceAggregate{}
		m[src] = agg
	}
	return agg
}

func failedSources(e Entry) map[models.Source]struct{} {
	set := make(map[models.Source]struct{}, len(models.AllSources))
	if e.Outcome == models.OutcomeError {
		for _, src := range models.AllSources {
			set[src] = struct{}{}
		}
		return set
	}
	for _, src := range e.Degraded {
		set[src] = struct{}{}
	}
	return set
}
