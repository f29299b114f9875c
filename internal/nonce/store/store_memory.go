// Package store provides the nonce store implementations. The in-memory
// store serves tests and single-node dev; Redis is the production store for
// multi-instance deployments.
package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"mirrorgate/internal/nonce/models"
	id "mirrorgate/pkg/domain"
	"mirrorgate/pkg/platform/sentinel"
)

// InMemoryNonceStore stores nonces in memory. Consume holds the write lock
// for the whole check-and-transition, so it is atomic across goroutines.
type InMemoryNonceStore struct {
	mu     sync.Mutex
	nonces map[id.NonceID]*models.Nonce
}

// NewMemory constructs an empty in-memory nonce store.
func NewMemory() *InMemoryNonceStore {
	return &InMemoryNonceStore{nonces: make(map[id.NonceID]*models.Nonce)}
}

func (s *InMemoryNonceStore) Create(_ context.Context, nonce *models.Nonce) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.nonces[nonce.ID]; exists {
		return fmt.Errorf("nonce %s: %w", nonce.ID, sentinel.ErrConflict)
	}
	cp := *nonce
	s.nonces[nonce.ID] = &cp
	return nil
}

func (s *InMemoryNonceStore) Find(_ context.Context, nonceID id.NonceID) (*models.Nonce, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if nonce, ok := s.nonces[nonceID]; ok {
		cp := *nonce
		return &cp, nil
	}
	return nil, fmt.Errorf("nonce %s: %w", nonceID, sentinel.ErrNotFound)
}

func (s *InMemoryNonceStore) Consume(_ context.Context, nonceID id.NonceID, now time.Time) (models.ConsumeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nonce, ok := s.nonces[nonceID]
	if !ok {
		return models.ConsumeNotFound, nil
	}
	switch {
	case nonce.Status == models.StatusConsumed:
		return models.ConsumeAlreadyConsumed, nil
	case nonce.Status == models.StatusExpired || nonce.Expired(now):
		nonce.Status = models.StatusExpired
		return models.ConsumeExpired, nil
	}
	nonce.Status = models.StatusConsumed
	return models.ConsumeSuccess, nil
}

func (s *InMemoryNonceStore) SweepExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	swept := 0
	for _, nonce := range s.nonces {
		if nonce.Status == models.StatusActive && nonce.Expired(now) {
			nonce.Status = models.StatusExpired
			swept++
		}
	}
	return swept, nil
}
