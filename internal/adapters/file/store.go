package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aretw0/plotbridge/pkg/domain"
)

// Store implements ports.AnnotationStore using the local filesystem.
// Each key is stored as a JSON file in BasePath.
type Store struct {
	BasePath string
}

// New creates a new Store with the given base path.
// If basePath is empty, it defaults to ".plotbridge/annotations".
func New(basePath string) *Store {
	if basePath == "" {
		basePath = filepath.Join(".plotbridge", "annotations")
	}
	return &Store{BasePath: basePath}
}

func (s *Store) path(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("key cannot be empty")
	}
	if strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return filepath.Join(s.BasePath, key+".json"), nil
}

// Save persists the annotations atomically.
func (s *Store) Save(ctx context.Context, key string, annotations domain.RetainedAnnotations) error {
	dest, err := s.path(key)
	if err != nil {
		return err
	}
	if annotations == nil {
		annotations = domain.RetainedAnnotations{}
	}
	data, err := json.MarshalIndent(annotations, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal annotations: %w", err)
	}
	return writeAtomic(dest, data)
}

// Load reads the annotations stored under key.
func (s *Store) Load(ctx context.Context, key string) (domain.RetainedAnnotations, error) {
	src, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(src)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, domain.ErrAnnotationsNotFound
		}
		return nil, fmt.Errorf("failed to read annotations file: %w", err)
	}

	var annotations domain.RetainedAnnotations
	if err := json.Unmarshal(data, &annotations); err != nil {
		return nil, fmt.Errorf("failed to unmarshal annotations: %w", err)
	}
	if annotations == nil {
		annotations = domain.RetainedAnnotations{}
	}
	return annotations, nil
}

// Delete removes the annotations file.
func (s *Store) Delete(ctx context.Context, key string) error {
	target, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete annotations file: %w", err)
	}
	return nil
}

// List returns the stored keys.
func (s *Store) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.BasePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list annotations: %w", err)
	}

	keys := []string{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".json" || strings.HasPrefix(name, tmpPrefix) {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, ".json"))
	}
	return keys, nil
}
