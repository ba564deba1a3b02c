package memory

import (
	"context"
	"sync"

	"github.com/aretw0/plotbridge/pkg/domain"
)

// Store implements ports.AnnotationStore in memory.
// Safe for concurrent use.
type Store struct {
	data map[string]domain.RetainedAnnotations
	mu   sync.RWMutex
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[string]domain.RetainedAnnotations),
	}
}

// Save keeps a copy of the annotations.
func (s *Store) Save(ctx context.Context, key string, annotations domain.RetainedAnnotations) error {
	copied := annotations.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = copied
	return nil
}

// Load returns a copy so callers cannot mutate stored state.
func (s *Store) Load(ctx context.Context, key string) (domain.RetainedAnnotations, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	annotations, ok := s.data[key]
	if !ok {
		return nil, domain.ErrAnnotationsNotFound
	}
	return annotations.Clone(), nil
}

// Delete removes the annotations.
func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// List returns the stored keys.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	return keys, nil
}
