// Package store provides the template store implementations. The in-memory
// store serves tests and single-node dev; PostgreSQL is the production store.
package store

import (
	"context"
	"fmt"
	"sync"

	"mirrorgate/internal/biometric/models"
	id "mirrorgate/pkg/domain"
	"mirrorgate/pkg/platform/sentinel"
)

// Error contract: all store methods return sentinel errors for store facts
// (ErrNotFound, ErrConflict) and wrapped errors for infrastructure failures.

type templateKey struct {
	subject  id.SubjectID
	modality id.Modality
}

// InMemoryTemplateStore stores templates in memory for tests/dev.
type InMemoryTemplateStore struct {
	mu        sync.RWMutex
	templates map[templateKey]*models.Template
}

// clone deep-copies a template so callers cannot mutate stored state through
// the shared vector slice.
func clone(template *models.Template) *models.Template {
	cp := *template
	cp.EncryptedVector = append([]byte(nil), template.EncryptedVector...)
	return &cp
}

// NewMemory constructs an empty in-memory template store.
func NewMemory() *InMemoryTemplateStore {
	return &InMemoryTemplateStore{templates: make(map[templateKey]*models.Template)}
}

func (s *InMemoryTemplateStore) Create(_ context.Context, template *models.Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := templateKey{template.SubjectID, template.Modality}
	if _, exists := s.templates[key]; exists {
		return fmt.Errorf("template for %s/%s: %w", template.SubjectID, template.Modality, sentinel.ErrConflict)
	}
	s.templates[key] = clone(template)
	return nil
}

func (s *InMemoryTemplateStore) Find(_ context.Context, subjectID id.SubjectID, modality id.Modality) (*models.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if template, ok := s.templates[templateKey{subjectID, modality}]; ok {
		return clone(template), nil
	}
	return nil, fmt.Errorf("template for %s/%s: %w", subjectID, modality, sentinel.ErrNotFound)
}

func (s *InMemoryTemplateStore) Update(_ context.Context, template *models.Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := templateKey{template.SubjectID, template.Modality}
	if _, ok := s.templates[key]; !ok {
		return fmt.Errorf("template for %s/%s: %w", template.SubjectID, template.Modality, sentinel.ErrNotFound)
	}
	s.templates[key] = clone(template)
	return nil
}

// Delete removes a template. Used by subject data-deletion flows.
func (s *InMemoryTemplateStore) Delete(_ context.Context, subjectID id.SubjectID, modality id.Modality) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := templateKey{subjectID, modality}
	if _, ok := s.templates[key]; !ok {
		return fmt.Errorf("template for %s/%s: %w", subjectID, modality, sentinel.ErrNotFound)
	}
	delete(s.templates, key)
	return nil
}
