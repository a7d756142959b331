// Package memory provides a thread-safe in-memory audit.Store.
// Suitable for testing and single-process use where the journal need not
// survive a restart.
package memory

import (
	"context"
	"sync"

	"github.com/jmcleod/sslinker/audit"
)

// Store keeps events in insertion order.
type Store struct {
	mu     sync.RWMutex
	events []audit.Event
}

var _ audit.Store = (*Store)(nil)

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{}
}

func (s *Store) Append(_ context.Context, ev audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *Store) List(_ context.Context, limit int) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := len(s.events)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]audit.Event, 0, n)
	for i := len(s.events) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.events[i])
	}
	return out, nil
}

func (s *Store) Close() error { return nil }
