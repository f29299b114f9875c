// Package store provides the applied-diff digest store implementations.
package store

import (
	"context"
	"sync"

	id "mirrorgate/pkg/domain"
)

// InMemoryAppliedStore remembers applied diff digests in memory.
type InMemoryAppliedStore struct {
	mu      sync.RWMutex
	applied map[string]id.SessionID
}

// NewMemory constructs an empty in-memory applied-diff store.
func NewMemory() *InMemoryAppliedStore {
	return &InMemoryAppliedStore{applied: make(map[string]id.SessionID)}
}

func (s *InMemoryAppliedStore) MarkApplied(_ context.Context, digest string, sessionID id.SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applied[digest] = sessionID
	return nil
}

func (s *InMemoryAppliedStore) WasApplied(_ context.Context, digest string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.applied[digest]
	return ok, nil
}
