// Package broadcast tracks presentation surfaces and fans messages out to them.
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/aretw0/plotbridge/internal/logging"
	"github.com/aretw0/plotbridge/pkg/domain"
	"github.com/aretw0/plotbridge/pkg/ports"
	cmap "github.com/orcaman/concurrent-map/v2"
)

// ErrNoPrimary is returned by Post when no primary surface is registered.
var ErrNoPrimary = errors.New("no primary surface registered")

type entry struct {
	surface ports.Surface
	seq     uint64
}

// Registry holds the registered surfaces.
// Delivery to each surface is independent: a failing surface is logged and
// skipped, never retried, and never blocks the others.
type Registry struct {
	surfaces cmap.ConcurrentMap[string, entry]
	seq      atomic.Uint64

	mu      sync.RWMutex
	primary string

	bootstrap func() []domain.SurfaceMessage
	hooks     domain.LifecycleHooks
	logger    *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithBootstrap sets the messages every new surface receives on registration.
func WithBootstrap(fn func() []domain.SurfaceMessage) Option {
	return func(r *Registry) {
		r.bootstrap = fn
	}
}

// WithHooks sets lifecycle hooks. Only OnDeliveryFailure is used.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(r *Registry) {
		r.hooks = hooks
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		surfaces: cmap.New[entry](),
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RegisterOption configures a single registration.
type RegisterOption func(*registration)

type registration struct {
	primary bool
}

// AsPrimary designates the surface as the target of Post.
// A later primary registration replaces an earlier one.
func AsPrimary() RegisterOption {
	return func(r *registration) {
		r.primary = true
	}
}

// Handle is returned by Register.
type Handle struct {
	registry *Registry
	id       string
	seq      uint64
	once     sync.Once
}

// ID returns the registered surface identifier.
func (h *Handle) ID() string {
	return h.id
}

// Dispose removes the surface. It is safe to call more than once.
func (h *Handle) Dispose() {
	h.once.Do(func() {
		h.registry.remove(h.id, h.seq)
	})
}

// Register adds a surface and sends it the bootstrap messages.
// Registering an identifier again replaces the previous surface.
func (r *Registry) Register(surface ports.Surface, opts ...RegisterOption) *Handle {
	var reg registration
	for _, opt := range opts {
		opt(&reg)
	}

	id := surface.ID()
	seq := r.seq.Add(1)
	r.surfaces.Set(id, entry{surface: surface, seq: seq})
	if reg.primary {
		r.mu.Lock()
		r.primary = id
		r.mu.Unlock()
	}
	r.logger.Debug("surface registered", "surface", id, "primary", reg.primary, "count", r.surfaces.Count())

	if r.bootstrap != nil {
		for _, msg := range r.bootstrap() {
			r.deliver(id, surface, msg)
		}
	}
	return &Handle{registry: r, id: id, seq: seq}
}

func (r *Registry) remove(id string, seq uint64) {
	// A stale handle must not remove a surface that re-registered under its id.
	removed := r.surfaces.RemoveCb(id, func(key string, e entry, exists bool) bool {
		return exists && e.seq == seq
	})
	if !removed {
		return
	}
	r.mu.Lock()
	if r.primary == id {
		r.primary = ""
	}
	r.mu.Unlock()
	r.logger.Debug("surface disposed", "surface", id, "count", r.surfaces.Count())
}

// Broadcast delivers msg to every registered surface and returns how many accepted it.
func (r *Registry) Broadcast(msg domain.SurfaceMessage) int {
	delivered := 0
	for id, e := range r.surfaces.Items() {
		if r.deliver(id, e.surface, msg) {
			delivered++
		}
	}
	return delivered
}

// Post delivers msg only to the primary surface.
func (r *Registry) Post(msg domain.SurfaceMessage) error {
	r.mu.RLock()
	id := r.primary
	r.mu.RUnlock()
	if id == "" {
		return ErrNoPrimary
	}
	e, ok := r.surfaces.Get(id)
	if !ok {
		return ErrNoPrimary
	}
	if !r.deliver(id, e.surface, msg) {
		return fmt.Errorf("delivery to primary surface %s failed", id)
	}
	return nil
}

// Primary returns the primary surface identifier, if any.
func (r *Registry) Primary() (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.primary, r.primary != ""
}

// Count returns the number of registered surfaces.
func (r *Registry) Count() int {
	return r.surfaces.Count()
}

// IDs returns the registered identifiers, sorted.
func (r *Registry) IDs() []string {
	ids := r.surfaces.Keys()
	sort.Strings(ids)
	return ids
}

func (r *Registry) deliver(id string, surface ports.Surface, msg domain.SurfaceMessage) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.failed(id, msg, fmt.Errorf("surface panicked: %v", rec))
			ok = false
		}
	}()
	if err := surface.Deliver(msg); err != nil {
		r.failed(id, msg, err)
		return false
	}
	return true
}

func (r *Registry) failed(id string, msg domain.SurfaceMessage, err error) {
	r.logger.Debug("surface delivery failed", "surface", id, "command", msg.Command, "err", err)
	if r.hooks.OnDeliveryFailure != nil {
		r.hooks.OnDeliveryFailure(context.Background(), id, err)
	}
}
