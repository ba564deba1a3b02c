package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/plotbridge/internal/logging"
	"github.com/aretw0/plotbridge/pkg/domain"
	"github.com/aretw0/plotbridge/pkg/ports"
)

// DefaultLockTTL bounds how long a distributed lock survives a crashed holder.
const DefaultLockTTL = 30 * time.Second

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager orchestrates annotation access, ensuring safe concurrent updates.
// It uses reference counting to garbage collect unused locks.
type Manager struct {
	store ports.AnnotationStore

	mu    sync.Mutex
	locks map[string]*lockEntry

	locker  ports.DistributedLocker
	lockTTL time.Duration
	logger  *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL overrides DefaultLockTTL.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		m.lockTTL = ttl
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a new Manager backed by store.
func NewManager(store ports.AnnotationStore, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		locks:   make(map[string]*lockEntry),
		lockTTL: DefaultLockTTL,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST lock entry.mu, and then call release(key) after unlocking.
func (m *Manager) acquire(key string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[key]
	if !exists {
		entry = &lockEntry{}
		m.locks[key] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (m *Manager) release(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[key]
	if !exists {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, key)
	}
}

// Load returns the annotations stored under key.
// A key that was never saved yields an empty set, not an error.
func (m *Manager) Load(ctx context.Context, key string) (domain.RetainedAnnotations, error) {
	var out domain.RetainedAnnotations
	err := m.WithLock(ctx, key, func(ctx context.Context) error {
		var err error
		out, err = m.load(ctx, key)
		return err
	})
	return out, err
}

func (m *Manager) load(ctx context.Context, key string) (domain.RetainedAnnotations, error) {
	annotations, err := m.store.Load(ctx, key)
	if errors.Is(err, domain.ErrAnnotationsNotFound) {
		return domain.RetainedAnnotations{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load annotations: %w", err)
	}
	return annotations, nil
}

// Save replaces the annotations stored under key.
func (m *Manager) Save(ctx context.Context, key string, annotations domain.RetainedAnnotations) error {
	return m.WithLock(ctx, key, func(ctx context.Context) error {
		return m.store.Save(ctx, key, annotations)
	})
}

// Update applies fn to the stored annotations and saves its result atomically
// with respect to other calls on the same key.
func (m *Manager) Update(ctx context.Context, key string, fn func(domain.RetainedAnnotations) domain.RetainedAnnotations) (domain.RetainedAnnotations, error) {
	var out domain.RetainedAnnotations
	err := m.WithLock(ctx, key, func(ctx context.Context) error {
		current, err := m.load(ctx, key)
		if err != nil {
			return err
		}
		out = fn(current)
		return m.store.Save(ctx, key, out)
	})
	return out, err
}

// Delete removes the annotations stored under key.
func (m *Manager) Delete(ctx context.Context, key string) error {
	return m.WithLock(ctx, key, func(ctx context.Context) error {
		return m.store.Delete(ctx, key)
	})
}

// List delegates to the store.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.store.List(ctx)
}

// Store returns the underlying annotation store.
func (m *Manager) Store() ports.AnnotationStore {
	return m.store
}

// WithLock executes fn while holding the lock for key.
func (m *Manager) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	entry := m.acquire(key)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(key)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, key, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(ctx); err != nil {
				m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"key", key,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}
