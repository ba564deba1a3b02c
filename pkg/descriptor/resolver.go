package descriptor

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/aretw0/plotbridge/internal/logging"
	"github.com/fsnotify/fsnotify"
)

const (
	DefaultPollInterval = 2 * time.Second
	DefaultFirstPoll    = time.Second
)

// Resolver watches the session descriptors and reports port changes.
type Resolver struct {
	paths     SessionPaths
	interval  time.Duration
	firstPoll time.Duration
	logger    *slog.Logger

	mu          sync.Mutex
	primarySeen bool
	last        int

	trigger chan struct{}
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithPollInterval sets the baseline poll period.
func WithPollInterval(d time.Duration) Option {
	return func(r *Resolver) {
		r.interval = d
	}
}

// WithFirstPoll sets the delay of the early read after Watch starts.
func WithFirstPoll(d time.Duration) Option {
	return func(r *Resolver) {
		r.firstPoll = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// NewResolver builds a Resolver for paths.
func NewResolver(paths SessionPaths, opts ...Option) *Resolver {
	r := &Resolver{
		paths:     paths,
		interval:  DefaultPollInterval,
		firstPoll: DefaultFirstPoll,
		logger:    logging.NewNop(),
		trigger:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Paths returns the watched descriptor paths.
func (r *Resolver) Paths() SessionPaths {
	return r.paths
}

// Current reads the descriptors now. The legacy descriptor is only consulted
// while the primary one has never existed.
func (r *Resolver) Current() (int, bool) {
	d, err := Read(r.paths.Primary)
	if err == nil {
		r.markPrimary()
		return d.Port, true
	}
	if !errors.Is(err, fs.ErrNotExist) {
		r.markPrimary()
		r.logger.Debug("ignoring unreadable descriptor", "path", r.paths.Primary, "err", err)
		return 0, false
	}

	r.mu.Lock()
	seen := r.primarySeen
	r.mu.Unlock()
	if seen || r.paths.Legacy == "" {
		return 0, false
	}

	d, err = Read(r.paths.Legacy)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			r.logger.Debug("ignoring unreadable legacy descriptor", "path", r.paths.Legacy, "err", err)
		}
		return 0, false
	}
	return d.Port, true
}

// Lookup adapts Current to a context-aware source.
func (r *Resolver) Lookup(context.Context) (int, bool) {
	return r.Current()
}

// Trigger requests an immediate read on a running Watch.
func (r *Resolver) Trigger() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

func (r *Resolver) markPrimary() {
	r.mu.Lock()
	r.primarySeen = true
	r.mu.Unlock()
}

// Watch emits the port every time it differs from the last emitted one.
// The channel is closed when ctx is done.
func (r *Resolver) Watch(ctx context.Context) <-chan int {
	out := make(chan int)
	go r.loop(ctx, out)
	return out
}

func (r *Resolver) loop(ctx context.Context, out chan<- int) {
	defer close(out)

	first := time.NewTimer(r.firstPoll)
	defer first.Stop()
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	var events <-chan fsnotify.Event
	var errs <-chan error
	if w := r.watch(); w != nil {
		defer w.Close()
		events, errs = w.Events, w.Errors
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-first.C:
		case <-ticker.C:
		case <-r.trigger:
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if !r.relevant(ev) {
				continue
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			r.logger.Debug("descriptor watch error", "err", err)
			continue
		}
		if !r.emit(ctx, out) {
			return
		}
	}
}

// watch subscribes to the descriptor directories. Polling continues without it.
func (r *Resolver) watch() *fsnotify.Watcher {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		r.logger.Debug("filesystem notifications unavailable, polling only", "err", err)
		return nil
	}
	dirs := map[string]struct{}{filepath.Dir(r.paths.Primary): {}}
	if r.paths.Legacy != "" {
		dirs[filepath.Dir(r.paths.Legacy)] = struct{}{}
	}
	added := 0
	for dir := range dirs {
		if err := w.Add(dir); err != nil {
			r.logger.Debug("cannot watch descriptor directory", "dir", dir, "err", err)
			continue
		}
		added++
	}
	if added == 0 {
		_ = w.Close()
		return nil
	}
	return w
}

func (r *Resolver) relevant(ev fsnotify.Event) bool {
	if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
		return false
	}
	name := filepath.Clean(ev.Name)
	return name == filepath.Clean(r.paths.Primary) ||
		(r.paths.Legacy != "" && name == filepath.Clean(r.paths.Legacy))
}

func (r *Resolver) emit(ctx context.Context, out chan<- int) bool {
	port, ok := r.Current()
	if !ok {
		return true
	}
	r.mu.Lock()
	if port == r.last {
		r.mu.Unlock()
		return true
	}
	r.last = port
	r.mu.Unlock()

	r.logger.Debug("session port discovered", "port", port)
	select {
	case out <- port:
		return true
	case <-ctx.Done():
		return false
	}
}
