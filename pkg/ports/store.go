package ports

import (
	"context"

	"github.com/aretw0/plotbridge/pkg/domain"
)

// AnnotationStore persists the retained annotations of a session.
// Annotations are the only client-owned state that outlives a snapshot.
type AnnotationStore interface {
	// Save replaces the annotations stored under key.
	Save(ctx context.Context, key string, annotations domain.RetainedAnnotations) error

	// Load retrieves the annotations stored under key.
	// Returns domain.ErrAnnotationsNotFound if nothing was saved.
	Load(ctx context.Context, key string) (domain.RetainedAnnotations, error)

	// Delete removes the annotations stored under key.
	Delete(ctx context.Context, key string) error

	// List returns the keys that currently hold annotations.
	List(ctx context.Context) ([]string, error)
}

// WorkspaceState is key/value state scoped to a workspace.
// It is used to keep the session identifier stable across host restarts.
type WorkspaceState interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
}
