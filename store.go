package minicron

import (
	"context"
	"sync"
)

// RunStore records the history of launches.
//
// History is an audit trail only: the scheduler never reads it back to
// rebuild its latch, so a restart always starts with a fresh latch.
//
// Implementations must be safe for concurrent use; detached runs are
// recorded from their reaper goroutines.
type RunStore interface {
	// Record stores a run and sets its ID.
	Record(ctx context.Context, run *Run) error

	// Recent returns up to limit runs, newest first.
	Recent(ctx context.Context, limit int) ([]Run, error)
}

// DefaultHistory is the capacity of a MemoryStore created with a
// non-positive size.
const DefaultHistory = 256

// MemoryStore keeps the most recent runs in a fixed-size ring.
type MemoryStore struct {
	mu     sync.Mutex
	runs   []Run
	next   int
	full   bool
	nextID int
}

// NewMemoryStore creates a MemoryStore holding up to size runs.
func NewMemoryStore(size int) *MemoryStore {
	if size <= 0 {
		size = DefaultHistory
	}
	return &MemoryStore{
		runs:   make([]Run, size),
		nextID: 1,
	}
}

// Record stores a copy of run, evicting the oldest entry when full.
func (s *MemoryStore) Record(ctx context.Context, run *Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run.ID = s.nextID
	s.nextID++

	stored := *run
	stored.Args = append([]string(nil), run.Args...)
	s.runs[s.next] = stored
	s.next = (s.next + 1) % len(s.runs)
	if s.next == 0 {
		s.full = true
	}
	return nil
}

// Recent returns up to limit runs, newest first. A non-positive limit
// returns everything held.
func (s *MemoryStore) Recent(ctx context.Context, limit int) ([]Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.next
	if s.full {
		n = len(s.runs)
	}
	if limit <= 0 || limit > n {
		limit = n
	}

	out := make([]Run, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (s.next - i + len(s.runs)) % len(s.runs)
		out = append(out, s.runs[idx])
	}
	return out, nil
}

// Len returns the number of runs held.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.full {
		return len(s.runs)
	}
	return s.next
}
