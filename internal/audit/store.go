package audit

import (
	"context"
	"sync"
)

// Store is the append-only sink audit events flow into. Implementations must
// be safe for concurrent use.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// InMemoryStore keeps events in memory. Used by tests and kafka-less
// deployments where audit is informational only.
type InMemoryStore struct {
	mu     sync.RWMutex
	events []Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// ListByUser returns events for a user in append order.
func (s *InMemoryStore) ListByUser(_ context.Context, userID string) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Event
	for _, e := range s.events {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}
