package memorystore

import (
	"sort"
	"sync"

	"quoter/internal/feed"
)

// SnapshotStore keeps the last successful poll result per pair. A failed poll
// never reaches the store, so readers always see the last known values.
type SnapshotStore struct {
	globalMu sync.RWMutex
	data     map[string]*pairSnapshot
}

type pairSnapshot struct {
	mu     sync.RWMutex
	result feed.Result
}

func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{
		data: make(map[string]*pairSnapshot),
	}
}

// Put replaces the pair's snapshot. Results older than the stored one are ignored.
func (s *SnapshotStore) Put(res feed.Result) {
	id := res.Pair.ID

	s.globalMu.RLock()
	entry, ok := s.data[id]
	s.globalMu.RUnlock()

	if !ok {
		s.globalMu.Lock()
		if entry, ok = s.data[id]; !ok {
			entry = &pairSnapshot{}
			s.data[id] = entry
		}
		s.globalMu.Unlock()
	}

	entry.mu.Lock()
	if !res.At.Before(entry.result.At) {
		entry.result = res
	}
	entry.mu.Unlock()
}

// Get returns a copy of the pair's snapshot.
func (s *SnapshotStore) Get(pairID string) (feed.Result, bool) {
	s.globalMu.RLock()
	entry, ok := s.data[pairID]
	s.globalMu.RUnlock()
	if !ok {
		return feed.Result{}, false
	}

	entry.mu.RLock()
	defer entry.mu.RUnlock()
	return copyResult(entry.result), true
}

// Pairs lists the pair ids that have a snapshot, sorted.
func (s *SnapshotStore) Pairs() []string {
	s.globalMu.RLock()
	defer s.globalMu.RUnlock()

	out := make([]string, 0, len(s.data))
	for id := range s.data {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func copyResult(r feed.Result) feed.Result {
	cp := r
	cp.Book.Bids = append(r.Book.Bids[:0:0], r.Book.Bids...)
	cp.Book.Asks = append(r.Book.Asks[:0:0], r.Book.Asks...)
	return cp
}
