// Package connection owns the single logical backend connection of a session.
//
// The Manager tries a direct websocket first and falls back to the relay when
// the direct attempt times out or fails. All state lives on one event-loop
// goroutine; transport callbacks and timers only post events to it, tagged
// with the generation they belong to, and stale events are discarded.
package connection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aretw0/plotbridge/internal/logging"
	"github.com/aretw0/plotbridge/pkg/domain"
	"github.com/aretw0/plotbridge/pkg/endpoint"
	"github.com/aretw0/plotbridge/pkg/ports"
	"github.com/aretw0/plotbridge/pkg/relay"
	"github.com/cenkalti/backoff/v4"
)

// ErrAlreadyRunning is returned by a second call to Run.
var ErrAlreadyRunning = errors.New("connection manager already running")

// Timings holds the connection timers.
type Timings struct {
	ConnectTimeout time.Duration
	ReconnectDelay time.Duration
	SettleDelay    time.Duration
}

// DefaultTimings returns the production timers.
func DefaultTimings() Timings {
	return Timings{
		ConnectTimeout: 2 * time.Second,
		ReconnectDelay: 2 * time.Second,
		SettleDelay:    100 * time.Millisecond,
	}
}

// EventKind discriminates Manager events.
type EventKind string

const (
	// EventState reports a ConnectionState transition.
	EventState EventKind = "state"
	// EventFrame carries a backend frame from the live transport.
	EventFrame EventKind = "frame"
	// EventRelayStatus reports relay socket connectivity.
	EventRelayStatus EventKind = "relay_status"
	// EventSettled fires once, shortly after a connection is announced.
	EventSettled EventKind = "settled"
)

// Event is emitted on the Events channel in loop order.
type Event struct {
	Kind      EventKind
	State     domain.ConnectionState
	Transport domain.Transport
	Frame     json.RawMessage
	Connected bool
}

// ConfigSource re-reads the session config. It is consulted before every
// direct retry, in case the port changed while disconnected.
type ConfigSource func(ctx context.Context) (port int, ok bool)

// Manager owns exactly one logical connection to the backend.
type Manager struct {
	dialer     ports.Dialer
	resolver   *endpoint.Resolver
	relay      *relay.Relay
	relayEpoch atomic.Uint64
	source     ConfigSource
	timings    Timings
	hooks      domain.LifecycleHooks
	logger     *slog.Logger
	relayOpts  []relay.Option

	inbox   *mailbox[any]
	events  *mailbox[Event]
	done    chan struct{}
	running atomic.Bool

	pubMu     sync.RWMutex
	published domain.ConnectionState

	// Owned by the loop goroutine.
	ctx              context.Context
	state            domain.ConnectionState
	port             int
	activeFile       string
	gen              uint64
	direct           ports.Conn
	cancelDial       context.CancelFunc
	connectTimer     *time.Timer
	reconnectTimer   *time.Timer
	settleTimer      *time.Timer
	reconnectPending bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithResolver sets the URL resolver used for direct attempts.
func WithResolver(r *endpoint.Resolver) Option {
	return func(m *Manager) {
		m.resolver = r
	}
}

// WithConfigSource sets the source consulted before direct retries.
func WithConfigSource(src ConfigSource) Option {
	return func(m *Manager) {
		m.source = src
	}
}

// WithTimings overrides DefaultTimings.
func WithTimings(t Timings) Option {
	return func(m *Manager) {
		m.timings = t
	}
}

// WithRelayBackOff sets the relay reconnect policy.
func WithRelayBackOff(policy backoff.BackOff) Option {
	return func(m *Manager) {
		m.relayOpts = append(m.relayOpts, relay.WithBackOff(policy))
	}
}

// WithHooks sets lifecycle hooks.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(m *Manager) {
		m.hooks = hooks
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// New creates a Manager. Call Run to start it.
func New(dialer ports.Dialer, opts ...Option) *Manager {
	m := &Manager{
		dialer:    dialer,
		timings:   DefaultTimings(),
		logger:    logging.NewNop(),
		inbox:     newMailbox[any](),
		events:    newMailbox[Event](),
		done:      make(chan struct{}),
		state:     domain.Disconnected(),
		published: domain.Disconnected(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.resolver == nil {
		m.resolver = endpoint.NewResolver(nil, m.logger)
	}
	relayOpts := append([]relay.Option{
		relay.WithLogger(m.logger),
		relay.WithHooks(m.hooks),
		relay.WithHandler(relay.Handler{
			OnStatus: func(connected bool) {
				m.inbox.put(evRelayStatus{epoch: m.relayEpoch.Load(), connected: connected})
			},
			OnMessage: func(frame json.RawMessage) {
				m.inbox.put(evRelayFrame{epoch: m.relayEpoch.Load(), frame: frame})
			},
		}),
	}, m.relayOpts...)
	m.relay = relay.New(dialer, relayOpts...)
	return m
}

// Events returns the event stream. It is closed after Run returns and the
// remaining events were received.
func (m *Manager) Events() <-chan Event {
	return m.events.out
}

// Done is closed when Run has returned.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// State returns the current connection state.
func (m *Manager) State() domain.ConnectionState {
	m.pubMu.RLock()
	defer m.pubMu.RUnlock()
	return m.published
}

// SetEndpoint points the connection at port. Repeating the current port is a no-op.
func (m *Manager) SetEndpoint(port int) {
	m.inbox.put(cmdSetEndpoint{port: port})
}

// SetActiveFile records the focused file and forwards it when connected.
// It is re-sent after every reconnect.
func (m *Manager) SetActiveFile(path string) {
	m.inbox.put(cmdActiveFile{path: path})
}

// Send writes msg to the live transport. While disconnected it triggers a
// connection attempt and drops msg, returning domain.ErrNotConnected.
func (m *Manager) Send(ctx context.Context, msg domain.Outbound) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode %s: %w", msg.Type, err)
	}
	reply := make(chan error, 1)
	m.inbox.put(cmdSend{data: data, reply: reply})
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-m.done:
		return domain.ErrNotConnected
	}
}

// Run processes events until ctx is cancelled, then tears everything down.
func (m *Manager) Run(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	m.ctx = ctx
	defer close(m.done)

	for {
		select {
		case <-ctx.Done():
			m.teardown()
			m.events.close()
			m.inbox.abort()
			return nil
		case ev, ok := <-m.inbox.out:
			if !ok {
				return nil
			}
			m.handle(ev)
		}
	}
}

type (
	cmdSetEndpoint struct{ port int }
	cmdActiveFile  struct{ path string }
	cmdSend        struct {
		data  []byte
		reply chan error
	}
	evResolved struct {
		gen     uint64
		url     string
		current bool
		err     error
	}
	evDialed struct {
		gen  uint64
		conn ports.Conn
		err  error
	}
	evTimeout      struct{ gen uint64 }
	evDirectFrame  struct {
		gen  uint64
		data []byte
	}
	evDirectClosed struct {
		gen uint64
		err error
	}
	evReconnect  struct{ gen uint64 }
	evReresolved struct {
		gen  uint64
		port int
		ok   bool
	}
	evSettle      struct{ gen uint64 }
	evRelayStatus struct {
		epoch     uint64
		connected bool
	}
	evRelayFrame struct {
		epoch uint64
		frame json.RawMessage
	}
)

func (m *Manager) handle(ev any) {
	switch ev := ev.(type) {
	case cmdSetEndpoint:
		m.setEndpoint(ev.port)
	case cmdActiveFile:
		m.activeFile = ev.path
		if m.state.Connected() {
			m.write(domain.SetActiveFile(ev.path))
		}
	case cmdSend:
		ev.reply <- m.send(ev.data)
	case evResolved:
		m.resolved(ev)
	case evDialed:
		m.dialed(ev)
	case evTimeout:
		if ev.gen == m.gen && m.connectingDirect() {
			m.fallback("timeout")
		}
	case evDirectFrame:
		if ev.gen == m.gen && m.state.Transport == domain.TransportDirect {
			m.emit(Event{Kind: EventFrame, Transport: domain.TransportDirect, Frame: ev.data})
		}
	case evDirectClosed:
		if ev.gen == m.gen && m.state.Transport == domain.TransportDirect {
			m.logger.Info("direct transport closed", "port", m.port, "err", ev.err)
			m.teardownDirect()
			m.gen++
			m.setState(domain.Disconnected())
			m.scheduleReconnect()
		}
	case evReconnect:
		if ev.gen == m.gen && m.reconnectPending {
			m.retry()
		}
	case evReresolved:
		if ev.gen != m.gen {
			return
		}
		if ev.ok && domain.ValidPort(ev.port) && ev.port != m.port {
			m.logger.Info("session port changed while disconnected", "from", m.port, "to", ev.port)
			m.port = ev.port
		}
		m.connectDirect()
	case evSettle:
		if ev.gen == m.gen && m.state.Connected() {
			m.emit(Event{Kind: EventSettled, Transport: m.state.Transport})
		}
	case evRelayStatus:
		m.relayStatus(ev)
	case evRelayFrame:
		if ev.epoch == m.relayEpoch.Load() && m.state.Transport == domain.TransportRelay {
			m.emit(Event{Kind: EventFrame, Transport: domain.TransportRelay, Frame: ev.frame})
		}
	}
}

func (m *Manager) setEndpoint(port int) {
	if !domain.ValidPort(port) {
		m.logger.Debug("ignoring invalid port", "port", port)
		return
	}
	if port == m.port && (m.state.Live() || m.reconnectPending) {
		m.logger.Debug("endpoint unchanged", "port", port)
		return
	}
	m.teardown()
	m.port = port
	m.connectDirect()
}

func (m *Manager) connectingDirect() bool {
	return m.state.Phase == domain.PhaseConnecting && m.state.Transport == domain.TransportDirect
}

func (m *Manager) connectDirect() {
	m.gen++
	gen, port := m.gen, m.port
	m.setState(domain.ConnectionState{Phase: domain.PhaseConnecting, Transport: domain.TransportDirect, Port: port})

	m.connectTimer = time.AfterFunc(m.timings.ConnectTimeout, func() {
		m.inbox.put(evTimeout{gen: gen})
	})
	ctx := m.ctx
	req, err := m.resolver.Begin(port)
	if err != nil {
		m.inbox.put(evResolved{gen: gen, err: err})
		return
	}
	go func() {
		u, current := req.Resolve(ctx)
		m.inbox.put(evResolved{gen: gen, url: u, current: current})
	}()
}

func (m *Manager) resolved(ev evResolved) {
	if ev.gen != m.gen || !m.connectingDirect() || !ev.current {
		return
	}
	if ev.err != nil {
		m.fallback("resolve failed")
		return
	}
	ctx, cancel := context.WithCancel(m.ctx)
	m.cancelDial = cancel
	gen := ev.gen
	go func() {
		conn, err := m.dialer.Dial(ctx, ev.url)
		m.inbox.put(evDialed{gen: gen, conn: conn, err: err})
	}()
	m.logger.Debug("dialing direct transport", "url", ev.url)
}

func (m *Manager) dialed(ev evDialed) {
	if ev.gen != m.gen || !m.connectingDirect() {
		if ev.conn != nil {
			_ = ev.conn.Close()
		}
		return
	}
	m.cancelDial = nil
	if ev.err != nil {
		m.logger.Debug("direct dial failed", "port", m.port, "err", ev.err)
		m.fallback("error")
		return
	}
	stopTimer(&m.connectTimer)
	m.direct = ev.conn
	m.setState(domain.ConnectionState{Phase: domain.PhaseConnected, Transport: domain.TransportDirect, Port: m.port})
	m.logger.Info("direct transport connected", "port", m.port)

	go m.read(ev.gen, ev.conn)
	m.announce(true)
}

func (m *Manager) read(gen uint64, conn ports.Conn) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			m.inbox.put(evDirectClosed{gen: gen, err: err})
			return
		}
		if !json.Valid(data) {
			m.logger.Debug("dropped malformed frame", "bytes", len(data))
			if m.hooks.OnFrameDropped != nil {
				m.hooks.OnFrameDropped(context.Background(), "direct: malformed json")
			}
			continue
		}
		m.inbox.put(evDirectFrame{gen: gen, data: data})
	}
}

// fallback abandons the direct attempt and hands the socket to the relay.
func (m *Manager) fallback(reason string) {
	m.teardownDirect()
	m.gen++
	m.setState(domain.ConnectionState{Phase: domain.PhaseConnecting, Transport: domain.TransportRelay, Port: m.port})
	m.logger.Info("direct transport unavailable, using relay", "port", m.port, "reason", reason)
	if m.hooks.OnRelayFallback != nil {
		m.hooks.OnRelayFallback(m.ctx, m.port)
	}
	if err := m.relay.Restart(m.port); err != nil {
		m.logger.Warn("relay start failed", "port", m.port, "err", err)
	}
}

func (m *Manager) relayStatus(ev evRelayStatus) {
	if ev.epoch != m.relayEpoch.Load() || m.state.Transport != domain.TransportRelay {
		return
	}
	m.emit(Event{Kind: EventRelayStatus, Transport: domain.TransportRelay, Connected: ev.connected})
	switch {
	case ev.connected && !m.state.Connected():
		m.gen++
		m.setState(domain.ConnectionState{Phase: domain.PhaseConnected, Transport: domain.TransportRelay, Port: m.port})
		// The relay requests the plot list itself when its socket opens.
		m.announce(false)
	case !ev.connected && m.state.Connected():
		m.gen++
		stopTimer(&m.settleTimer)
		m.setState(domain.ConnectionState{Phase: domain.PhaseConnecting, Transport: domain.TransportRelay, Port: m.port})
	}
}

func (m *Manager) announce(requestPlots bool) {
	if requestPlots {
		m.write(domain.GetPlots())
	}
	if m.activeFile != "" {
		m.write(domain.SetActiveFile(m.activeFile))
	}
	gen := m.gen
	m.settleTimer = time.AfterFunc(m.timings.SettleDelay, func() {
		m.inbox.put(evSettle{gen: gen})
	})
}

func (m *Manager) scheduleReconnect() {
	m.reconnectPending = true
	gen := m.gen
	m.reconnectTimer = time.AfterFunc(m.timings.ReconnectDelay, func() {
		m.inbox.put(evReconnect{gen: gen})
	})
}

func (m *Manager) retry() {
	m.reconnectPending = false
	m.reconnectTimer = nil
	if m.source == nil {
		m.connectDirect()
		return
	}
	gen, ctx, src := m.gen, m.ctx, m.source
	go func() {
		port, ok := src(ctx)
		m.inbox.put(evReresolved{gen: gen, port: port, ok: ok})
	}()
}

func (m *Manager) send(data []byte) error {
	switch {
	case m.state.Connected() && m.state.Transport == domain.TransportDirect && m.direct != nil:
		if err := m.direct.WriteMessage(data); err != nil {
			return fmt.Errorf("direct send: %w", err)
		}
		return nil
	case m.state.Transport == domain.TransportRelay:
		return m.relay.Send(data)
	case m.state.Phase == domain.PhaseDisconnected && m.port != 0:
		stopTimer(&m.reconnectTimer)
		m.reconnectPending = false
		m.connectDirect()
		return domain.ErrNotConnected
	default:
		return domain.ErrNotConnected
	}
}

func (m *Manager) write(msg domain.Outbound) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	if err := m.send(data); err != nil {
		m.logger.Debug("announce write failed", "type", msg.Type, "err", err)
	}
}

// teardown releases every transport and timer and leaves the manager Disconnected.
func (m *Manager) teardown() {
	stopTimer(&m.reconnectTimer)
	m.reconnectPending = false
	m.teardownDirect()
	if m.state.Transport == domain.TransportRelay || m.relay.Port() != 0 {
		m.relay.Stop()
		m.relayEpoch.Add(1)
		m.emit(Event{Kind: EventRelayStatus, Transport: domain.TransportRelay, Connected: false})
	}
	m.gen++
	m.setState(domain.Disconnected())
}

func (m *Manager) teardownDirect() {
	stopTimer(&m.connectTimer)
	stopTimer(&m.settleTimer)
	if m.cancelDial != nil {
		m.cancelDial()
		m.cancelDial = nil
	}
	if m.direct != nil {
		_ = m.direct.Close()
		m.direct = nil
	}
}

func (m *Manager) setState(s domain.ConnectionState) {
	if s == m.state {
		return
	}
	from := m.state
	m.state = s
	m.pubMu.Lock()
	m.published = s
	m.pubMu.Unlock()

	m.logger.Debug("connection state", "from", from.String(), "to", s.String())
	if m.hooks.OnStateChange != nil {
		m.hooks.OnStateChange(m.ctx, from, s)
	}
	m.emit(Event{Kind: EventState})
}

func (m *Manager) emit(ev Event) {
	ev.State = m.state
	m.events.put(ev)
}

func stopTimer(t **time.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}
