package history

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// MemorySink is a concurrency-safe in-memory history with per-dataset
// retention by count and age.
type MemorySink struct {
	mu sync.RWMutex

	// key: dataset name, value: batches oldest first
	data map[string][]Batch

	maxEntries int           // max batches per dataset, <= 0 is unlimited
	maxAge     time.Duration // optional max age of a batch
	clock      clockwork.Clock
}

// NewMemorySink creates a MemorySink with optional limits. A nil clock uses
// the real clock.
func NewMemorySink(maxEntries int, maxAge time.Duration, clock clockwork.Clock) *MemorySink {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemorySink{
		data:       make(map[string][]Batch),
		maxEntries: maxEntries,
		maxAge:     maxAge,
		clock:      clock,
	}
}

func (s *MemorySink) Name() string { return "memory" }

// Append stores b and enforces retention.
func (s *MemorySink) Append(_ context.Context, b Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	batches := append(s.data[b.Dataset], b)

	if s.maxEntries > 0 && len(batches) > s.maxEntries {
		batches = batches[len(batches)-s.maxEntries:]
	}

	if s.maxAge > 0 {
		cutoff := s.clock.Now().Add(-s.maxAge)
		i := 0
		for i < len(batches) && batches[i].RecordedAt.Before(cutoff) {
			i++
		}
		batches = batches[i:]
	}

	s.data[b.Dataset] = batches
	return nil
}

// Latest returns the most recent batch of dataset.
func (s *MemorySink) Latest(dataset string) (Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	batches := s.data[dataset]
	if len(batches) == 0 {
		return Batch{}, ErrNotFound
	}
	return batches[len(batches)-1], nil
}

// Range returns the batches of dataset recorded between from and to, inclusive.
func (s *MemorySink) Range(dataset string, from, to time.Time) ([]Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []Batch
	for _, b := range s.data[dataset] {
		if !b.RecordedAt.Before(from) && !b.RecordedAt.After(to) {
			result = append(result, b)
		}
	}
	if len(result) == 0 {
		return nil, ErrNotFound
	}
	return result, nil
}
