package scheduler

import (
	"sync"
	"sync/atomic"

	"github.com/tridentsec/trident-analytics/internal/models"
)

// SnapshotStore holds the most recent snapshot. Readers always see a complete
// snapshot; a publish replaces the pointer wholesale. Snapshots are ordered by
// Sequence, which cycles reserve from NextSequence when they start.
type SnapshotStore struct {
	current atomic.Pointer[models.AnalyticsSnapshot]
	seq     atomic.Uint64

	// pubMu serialises install and broadcast so subscribers end on the latest.
	pubMu sync.Mutex

	mu     sync.Mutex
	subs   map[int]chan *models.AnalyticsSnapshot
	nextID int
}

// NewSnapshotStore returns an empty store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{subs: make(map[int]chan *models.AnalyticsSnapshot)}
}

// Latest returns the published snapshot, or nil before the first cycle.
func (s *SnapshotStore) Latest() *models.AnalyticsSnapshot {
	return s.current.Load()
}

// NextSequence reserves the ordering key for a cycle that is about to start.
func (s *SnapshotStore) NextSequence() uint64 {
	return s.seq.Add(1)
}

// Publish installs snap unless a snapshot from a cycle that started later is
// already published. It reports whether snap was installed.
func (s *SnapshotStore) Publish(snap *models.AnalyticsSnapshot) bool {
	if snap == nil {
		return false
	}
	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	if cur := s.current.Load(); cur != nil && snap.Sequence < cur.Sequence {
		return false
	}
	s.current.Store(snap)
	s.broadcast(snap)
	return true
}

// Subscribe returns a channel that receives each published snapshot. Slow
// subscribers only ever see the newest one. The returned func unsubscribes.
func (s *SnapshotStore) Subscribe() (<-chan *models.AnalyticsSnapshot, func()) {
	ch := make(chan *models.AnalyticsSnapshot, 1)

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
			close(ch)
		})
	}
}

func (s *SnapshotStore) broadcast(snap *models.AnalyticsSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- snap:
			continue
		default:
		}
		// drop the unread snapshot in favour of the new one
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}
