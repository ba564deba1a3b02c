// Package relay opens backend sockets on behalf of surfaces that cannot reach
// the backend themselves, and forwards frames in both directions.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/plotbridge/internal/logging"
	"github.com/aretw0/plotbridge/pkg/domain"
	"github.com/aretw0/plotbridge/pkg/endpoint"
	"github.com/aretw0/plotbridge/pkg/ports"
	"github.com/cenkalti/backoff/v4"
)

// DefaultReconnectDelay is the pause between reconnect attempts.
const DefaultReconnectDelay = 2 * time.Second

// Handler receives relay events.
// Calls are serialized and happen in socket order. Handlers must return quickly
// and must not call back into the Relay.
type Handler struct {
	OnStatus  func(connected bool)
	OnMessage func(frame json.RawMessage)
}

// Relay owns at most one backend socket and its reconnect loop.
type Relay struct {
	dialer  ports.Dialer
	policy  backoff.BackOff
	handler Handler
	hooks   domain.LifecycleHooks
	logger  *slog.Logger

	// emitMu orders handler calls and lets teardown wait out an in-flight emit,
	// so nothing from an abandoned socket is delivered after Stop returns.
	emitMu sync.Mutex

	mu         sync.Mutex
	port       int
	gen        uint64
	conn       ports.Conn
	ready      bool
	connecting bool
	cancelDial context.CancelFunc
	timer      *time.Timer
}

// Option configures a Relay.
type Option func(*Relay)

// WithBackOff replaces the reconnect policy. backoff.Stop ends the loop.
func WithBackOff(policy backoff.BackOff) Option {
	return func(r *Relay) {
		r.policy = policy
	}
}

// WithHandler sets the event handler.
func WithHandler(h Handler) Option {
	return func(r *Relay) {
		r.handler = h
	}
}

// WithHooks sets lifecycle hooks. Only OnFrameDropped is used.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(r *Relay) {
		r.hooks = hooks
	}
}

// WithLogger sets the relay logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		r.logger = logger
	}
}

// New creates an idle relay.
func New(dialer ports.Dialer, opts ...Option) *Relay {
	r := &Relay{
		dialer: dialer,
		policy: backoff.NewConstantBackOff(DefaultReconnectDelay),
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start connects to the backend on port.
// If already connected to port it re-announces the connected status. If a
// connection or reconnect for port is already under way, the relay's own loop
// stays in charge. Any other state is torn down and replaced.
func (r *Relay) Start(port int) error {
	return r.start(port, false)
}

// Restart is Start that always replaces a pending attempt for the same port.
func (r *Relay) Restart(port int) error {
	return r.start(port, true)
}

func (r *Relay) start(port int, force bool) error {
	if !domain.ValidPort(port) {
		return fmt.Errorf("%w: %d", domain.ErrInvalidPort, port)
	}

	r.emitMu.Lock()
	defer r.emitMu.Unlock()

	r.mu.Lock()
	if r.port == port && r.ready {
		r.mu.Unlock()
		r.status(true)
		return nil
	}
	if r.port == port && !force && (r.connecting || r.timer != nil) {
		r.mu.Unlock()
		return nil
	}
	r.teardownLocked()
	r.port = port
	gen := r.gen
	r.policy.Reset()
	r.dialLocked(gen)
	r.mu.Unlock()

	r.logger.Debug("relay starting", "port", port)
	r.status(false)
	return nil
}

// Stop cancels any pending reconnect, closes the socket, forgets the port and
// announces disconnected.
func (r *Relay) Stop() {
	r.emitMu.Lock()
	defer r.emitMu.Unlock()

	r.mu.Lock()
	r.teardownLocked()
	r.port = 0
	r.mu.Unlock()

	r.status(false)
}

// Send forwards frame if the socket is open. Otherwise it kicks the
// connection (when a port is configured) and drops the frame.
func (r *Relay) Send(frame []byte) error {
	r.mu.Lock()
	conn, ready, port := r.conn, r.ready, r.port
	r.mu.Unlock()

	if ready && conn != nil {
		if err := conn.WriteMessage(frame); err != nil {
			return fmt.Errorf("relay send: %w", err)
		}
		return nil
	}
	if port == 0 {
		return domain.ErrNotConnected
	}
	if err := r.Start(port); err != nil {
		return err
	}
	return domain.ErrNotConnected
}

// Connected reports whether the socket is open.
func (r *Relay) Connected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ready
}

// Port returns the configured port, or 0.
func (r *Relay) Port() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.port
}

// teardownLocked invalidates the current generation and releases its resources.
func (r *Relay) teardownLocked() {
	r.gen++
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	if r.cancelDial != nil {
		r.cancelDial()
		r.cancelDial = nil
	}
	if r.conn != nil {
		_ = r.conn.Close()
		r.conn = nil
	}
	r.ready = false
	r.connecting = false
}

func (r *Relay) dialLocked(gen uint64) {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancelDial = cancel
	r.connecting = true
	url := endpoint.RelayURL(r.port)
	go r.run(ctx, gen, url)
}

func (r *Relay) run(ctx context.Context, gen uint64, url string) {
	conn, err := r.dialer.Dial(ctx, url)
	if err != nil {
		r.logger.Debug("relay dial failed", "url", url, "err", err)
		r.closed(gen)
		return
	}

	r.mu.Lock()
	if gen != r.gen {
		r.mu.Unlock()
		_ = conn.Close()
		return
	}
	r.conn = conn
	r.ready = true
	r.connecting = false
	r.cancelDial = nil
	r.policy.Reset()
	r.mu.Unlock()

	r.logger.Info("relay connected", "url", url)
	r.emitFor(gen, func() { r.status(true) })
	if data, err := json.Marshal(domain.GetPlots()); err == nil {
		_ = conn.WriteMessage(data)
	}

	for {
		data, err := conn.ReadMessage()
		if err != nil {
			r.logger.Debug("relay socket closed", "url", url, "err", err)
			r.closed(gen)
			return
		}
		if !json.Valid(data) {
			r.logger.Debug("relay dropped malformed frame", "bytes", len(data))
			if r.hooks.OnFrameDropped != nil {
				r.hooks.OnFrameDropped(context.Background(), "relay: malformed json")
			}
			continue
		}
		frame := json.RawMessage(data)
		r.emitFor(gen, func() {
			if r.handler.OnMessage != nil {
				r.handler.OnMessage(frame)
			}
		})
	}
}

// closed handles the end of generation gen and schedules the next attempt.
func (r *Relay) closed(gen uint64) {
	r.emitMu.Lock()
	defer r.emitMu.Unlock()

	r.mu.Lock()
	if gen != r.gen {
		r.mu.Unlock()
		return
	}
	if r.conn != nil {
		_ = r.conn.Close()
		r.conn = nil
	}
	r.ready = false
	r.connecting = false
	r.cancelDial = nil
	if r.port != 0 {
		if delay := r.policy.NextBackOff(); delay != backoff.Stop {
			r.timer = time.AfterFunc(delay, func() { r.reconnect(gen) })
		}
	}
	r.mu.Unlock()

	r.status(false)
}

func (r *Relay) reconnect(gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if gen != r.gen || r.port == 0 {
		return
	}
	r.timer = nil
	r.gen++
	r.dialLocked(r.gen)
}

// emitFor runs fn only while gen is still current.
func (r *Relay) emitFor(gen uint64, fn func()) {
	r.emitMu.Lock()
	defer r.emitMu.Unlock()

	r.mu.Lock()
	current := gen == r.gen
	r.mu.Unlock()
	if current {
		fn()
	}
}

func (r *Relay) status(connected bool) {
	if r.handler.OnStatus != nil {
		r.handler.OnStatus(connected)
	}
}
