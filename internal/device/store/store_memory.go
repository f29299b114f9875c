// Package store provides the fingerprint store implementations.
package store

import (
	"context"
	"fmt"
	"sync"

	"mirrorgate/internal/device/models"
	id "mirrorgate/pkg/domain"
	"mirrorgate/pkg/platform/sentinel"
)

// InMemoryFingerprintStore stores fingerprints in memory for tests/dev.
type InMemoryFingerprintStore struct {
	mu     sync.RWMutex
	byID   map[id.DeviceID]*models.Fingerprint
	byHash map[string]id.DeviceID
}

// NewMemory constructs an empty in-memory fingerprint store.
func NewMemory() *InMemoryFingerprintStore {
	return &InMemoryFingerprintStore{
		byID:   make(map[id.DeviceID]*models.Fingerprint),
		byHash: make(map[string]id.DeviceID),
	}
}

func clone(fp *models.Fingerprint) *models.Fingerprint {
	cp := *fp
	cp.Components = make(map[string]string, len(fp.Components))
	for k, v := range fp.Components {
		cp.Components[k] = v
	}
	return &cp
}

func (s *InMemoryFingerprintStore) Create(_ context.Context, fp *models.Fingerprint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byHash[fp.ComponentHash]; exists {
		return fmt.Errorf("fingerprint %s: %w", fp.ComponentHash, sentinel.ErrConflict)
	}
	s.byID[fp.DeviceID] = clone(fp)
	s.byHash[fp.ComponentHash] = fp.DeviceID
	return nil
}

func (s *InMemoryFingerprintStore) FindByID(_ context.Context, deviceID id.DeviceID) (*models.Fingerprint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if fp, ok := s.byID[deviceID]; ok {
		return clone(fp), nil
	}
	return nil, fmt.Errorf("device %s: %w", deviceID, sentinel.ErrNotFound)
}

func (s *InMemoryFingerprintStore) FindBySubject(_ context.Context, subjectID id.SubjectID) ([]*models.Fingerprint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Fingerprint
	for _, fp := range s.byID {
		if fp.SubjectID == subjectID {
			out = append(out, clone(fp))
		}
	}
	return out, nil
}

func (s *InMemoryFingerprintStore) FindByHash(_ context.Context, componentHash string) (*models.Fingerprint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if deviceID, ok := s.byHash[componentHash]; ok {
		return clone(s.byID[deviceID]), nil
	}
	return nil, fmt.Errorf("fingerprint %s: %w", componentHash, sentinel.ErrNotFound)
}

func (s *InMemoryFingerprintStore) Update(_ context.Context, fp *models.Fingerprint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[fp.DeviceID]; !ok {
		return fmt.Errorf("device %s: %w", fp.DeviceID, sentinel.ErrNotFound)
	}
	s.byID[fp.DeviceID] = clone(fp)
	return nil
}
