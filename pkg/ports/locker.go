package ports

import (
	"context"
	"time"
)

// UnlockFunc is a function that releases a distributed lock.
type UnlockFunc func(ctx context.Context) error

// DistributedLocker defines the interface for distributed concurrency control.
// It allows the annotation Manager to coordinate writes across bridge replicas
// sharing one store.
type DistributedLocker interface {
	// Lock attempts to acquire a distributed lock for the given key.
	// It blocks until the lock is acquired, the context is canceled, or the attempt times out.
	// Returns an UnlockFunc that MUST be called to release the lock.
	Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error)
}
