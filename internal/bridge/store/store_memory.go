// Package store provides the bridge session store implementations.
package store

import (
	"context"
	"fmt"
	"sync"

	"mirrorgate/internal/bridge/models"
	id "mirrorgate/pkg/domain"
	"mirrorgate/pkg/platform/sentinel"
)

// InMemorySessionStore stores sessions in memory for tests/dev.
type InMemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[id.SessionID]*models.Session
}

// NewMemory constructs an empty in-memory session store.
func NewMemory() *InMemorySessionStore {
	return &InMemorySessionStore{sessions: make(map[id.SessionID]*models.Session)}
}

func (s *InMemorySessionStore) Create(_ context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[session.ID]; exists {
		return fmt.Errorf("session %s: %w", session.ID, sentinel.ErrConflict)
	}
	cp := *session
	s.sessions[session.ID] = &cp
	return nil
}

func (s *InMemorySessionStore) Find(_ context.Context, sessionID id.SessionID) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if session, ok := s.sessions[sessionID]; ok {
		cp := *session
		return &cp, nil
	}
	return nil, fmt.Errorf("session %s: %w", sessionID, sentinel.ErrNotFound)
}

func (s *InMemorySessionStore) Update(_ context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.sessions[session.ID]
	if !ok {
		return fmt.Errorf("session %s: %w", session.ID, sentinel.ErrNotFound)
	}
	// A terminal status accepts no further transitions; checking under the
	// write lock makes settling first-wins under concurrent submissions.
	if stored.Status.Terminal() && stored.Status != session.Status {
		return fmt.Errorf("session %s is %s: %w", session.ID, stored.Status, sentinel.ErrInvalidState)
	}
	cp := *session
	s.sessions[session.ID] = &cp
	return nil
}
