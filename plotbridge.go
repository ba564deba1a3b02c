package plotbridge

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/aretw0/plotbridge/internal/adapters/host"
	"github.com/aretw0/plotbridge/internal/logging"
	"github.com/aretw0/plotbridge/pkg/adapters/memory"
	"github.com/aretw0/plotbridge/pkg/adapters/ws"
	"github.com/aretw0/plotbridge/pkg/broadcast"
	"github.com/aretw0/plotbridge/pkg/connection"
	"github.com/aretw0/plotbridge/pkg/descriptor"
	"github.com/aretw0/plotbridge/pkg/domain"
	"github.com/aretw0/plotbridge/pkg/endpoint"
	"github.com/aretw0/plotbridge/pkg/export"
	"github.com/aretw0/plotbridge/pkg/observability"
	"github.com/aretw0/plotbridge/pkg/plots"
	"github.com/aretw0/plotbridge/pkg/ports"
	"github.com/aretw0/plotbridge/pkg/session"
	"github.com/cenkalti/backoff/v4"
)

// DefaultSessionKey stores annotations when no session key is configured.
const DefaultSessionKey = "default"

// Bridge is the session orchestrator.
// It owns one Connection Manager, one Plot Book and one surface Registry.
type Bridge struct {
	host          ports.Host
	store         ports.AnnotationStore
	locker        ports.DistributedLocker
	sessionKey    string
	descriptor    *descriptor.Resolver
	dialer        ports.Dialer
	timings       connection.Timings
	relayPolicy   backoff.BackOff
	hooks         domain.LifecycleHooks
	metrics       *observability.Metrics
	logger        *slog.Logger
	workspaceDir  string
	defaultFormat export.Format

	conn      *connection.Manager
	book      *plots.Book
	registry  *broadcast.Registry
	sessions  *session.Manager
	announcer *endpoint.Resolver
	running   atomic.Bool

	mu         sync.Mutex
	port       int
	wsURL      string
	activeFile string
	relayUp    bool
	resize     *domain.Action
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the logger shared by every component.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) {
		b.logger = logger
	}
}

// WithHost sets the host collaborator. Defaults to a headless host.
func WithHost(h ports.Host) Option {
	return func(b *Bridge) {
		b.host = h
	}
}

// WithStore sets where annotations are persisted. Defaults to memory.
func WithStore(store ports.AnnotationStore) Option {
	return func(b *Bridge) {
		b.store = store
	}
}

// WithLocker guards annotation writes across processes.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(b *Bridge) {
		b.locker = locker
	}
}

// WithSessionKey sets the key annotations are stored under.
func WithSessionKey(key string) Option {
	return func(b *Bridge) {
		b.sessionKey = key
	}
}

// WithDescriptor enables port discovery from session descriptors.
// Without it, ports are set through SetEndpoint.
func WithDescriptor(r *descriptor.Resolver) Option {
	return func(b *Bridge) {
		b.descriptor = r
	}
}

// WithDialer sets the websocket dialer used for both transports.
func WithDialer(d ports.Dialer) Option {
	return func(b *Bridge) {
		b.dialer = d
	}
}

// WithTimings overrides the connection timers.
func WithTimings(t connection.Timings) Option {
	return func(b *Bridge) {
		b.timings = t
	}
}

// WithRelayBackOff sets the relay reconnect policy.
func WithRelayBackOff(policy backoff.BackOff) Option {
	return func(b *Bridge) {
		b.relayPolicy = policy
	}
}

// WithHooks registers lifecycle hooks.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(b *Bridge) {
		b.hooks = hooks
	}
}

// WithMetrics records lifecycle events into m.
func WithMetrics(m *observability.Metrics) Option {
	return func(b *Bridge) {
		b.metrics = m
	}
}

// WithWorkspaceDir sets the directory save dialogs start in.
func WithWorkspaceDir(dir string) Option {
	return func(b *Bridge) {
		b.workspaceDir = dir
	}
}

// WithDefaultFormat sets the format of export_plot requests that name none.
func WithDefaultFormat(f export.Format) Option {
	return func(b *Bridge) {
		b.defaultFormat = f
	}
}

// New wires a Bridge. Call Run to start it.
func New(opts ...Option) *Bridge {
	b := &Bridge{
		sessionKey:    DefaultSessionKey,
		timings:       connection.DefaultTimings(),
		defaultFormat: export.PNG,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = logging.NewNop()
	}
	if b.host == nil {
		b.host = host.NewHeadless(host.WithLogger(b.logger))
	}
	if b.store == nil {
		b.store = memory.NewStore()
	}
	if b.dialer == nil {
		b.dialer = ws.NewDialer()
	}

	hooks := b.hooks
	if b.metrics != nil {
		hooks = observability.Chain(hooks, b.metrics.Hooks())
	}
	b.hooks = hooks

	b.book = plots.NewBook()
	b.registry = broadcast.NewRegistry(
		broadcast.WithLogger(b.logger),
		broadcast.WithBootstrap(b.bootstrap),
		broadcast.WithHooks(hooks),
	)

	sessionOpts := []session.Option{session.WithLogger(b.logger)}
	if b.locker != nil {
		sessionOpts = append(sessionOpts, session.WithLocker(b.locker))
	}
	b.sessions = session.NewManager(b.store, sessionOpts...)

	// Separate sequence from the manager's resolver: a shared one would mark
	// its in-flight resolutions stale.
	b.announcer = endpoint.NewResolver(b.host, b.logger)

	connOpts := []connection.Option{
		connection.WithResolver(endpoint.NewResolver(b.host, b.logger)),
		connection.WithTimings(b.timings),
		connection.WithHooks(hooks),
		connection.WithLogger(b.logger),
	}
	if b.descriptor != nil {
		connOpts = append(connOpts, connection.WithConfigSource(b.descriptor.Lookup))
	}
	if b.relayPolicy != nil {
		connOpts = append(connOpts, connection.WithRelayBackOff(b.relayPolicy))
	}
	b.conn = connection.New(b.dialer, connOpts...)
	return b
}

// Run restores persisted annotations, starts the connection and port
// discovery, and dispatches connection events until ctx is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	if !b.running.CompareAndSwap(false, true) {
		return connection.ErrAlreadyRunning
	}
	b.restore(ctx)

	go func() { _ = b.conn.Run(ctx) }()

	var discovered <-chan int
	if b.descriptor != nil {
		discovered = b.descriptor.Watch(ctx)
	}
	events := b.conn.Events()
	for {
		select {
		case port, ok := <-discovered:
			if !ok {
				discovered = nil
				continue
			}
			b.SetEndpoint(ctx, port)
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			b.handleEvent(ctx, ev)
		}
	}
}

// SetEndpoint points the bridge at port and announces the resolved URL to
// surfaces. Repeating the current port does not reconnect.
func (b *Bridge) SetEndpoint(ctx context.Context, port int) {
	if !domain.ValidPort(port) {
		b.logger.Debug("ignoring invalid port", "port", port)
		return
	}
	b.conn.SetEndpoint(port)
	b.announce(ctx, port)
}

// announce tags the resolution before returning and translates in the background.
func (b *Bridge) announce(ctx context.Context, port int) {
	req, err := b.announcer.Begin(port)
	if err != nil {
		return
	}
	go b.publishEndpoint(ctx, req)
}

func (b *Bridge) publishEndpoint(ctx context.Context, req endpoint.Request) {
	wsURL, current := req.Resolve(ctx)
	if !current {
		return
	}
	port := req.Port()
	b.mu.Lock()
	if !req.Current() {
		b.mu.Unlock()
		return
	}
	b.port, b.wsURL = port, wsURL
	b.mu.Unlock()
	b.registry.Broadcast(domain.SetPortMessage(port, wsURL))
}

// RequestConfig re-reads the descriptors and re-announces the endpoint.
func (b *Bridge) RequestConfig(ctx context.Context) {
	if b.descriptor != nil {
		if port, ok := b.descriptor.Current(); ok {
			b.SetEndpoint(ctx, port)
			return
		}
	}
	b.mu.Lock()
	port := b.port
	b.mu.Unlock()
	if port != 0 {
		b.announce(ctx, port)
	}
}

// SetActiveFile records the focused source file, forwards it to the backend
// and tells every surface.
func (b *Bridge) SetActiveFile(path string) {
	b.mu.Lock()
	b.activeFile = path
	b.mu.Unlock()

	b.conn.SetActiveFile(path)
	b.registry.Broadcast(domain.ActiveFileMessage(domain.CmdStoreActiveFile, path))
	b.registry.Broadcast(domain.ActiveFileMessage(domain.CmdSetActiveFile, path))
}

// Register attaches a surface. The primary surface receives posted messages.
func (b *Bridge) Register(surface ports.Surface, primary bool) *broadcast.Handle {
	if primary {
		return b.registry.Register(surface, broadcast.AsPrimary())
	}
	return b.registry.Register(surface)
}

// Registry returns the surface registry.
func (b *Bridge) Registry() *broadcast.Registry {
	return b.registry
}

// View returns a copy of the merged plot list.
func (b *Bridge) View() plots.View {
	return b.book.View()
}

// State returns the connection state.
func (b *Bridge) State() domain.ConnectionState {
	return b.conn.State()
}

// Status summarizes the bridge for health and info endpoints.
type Status struct {
	State      domain.ConnectionState `json:"state"`
	Label      string                 `json:"status"`
	Port       int                    `json:"port,omitempty"`
	WsURL      string                 `json:"wsUrl,omitempty"`
	ActiveFile string                 `json:"activeFile,omitempty"`
	Relay      bool                   `json:"relayConnected"`
	Plots      int                    `json:"plots"`
	Surfaces   int                    `json:"surfaces"`
	SessionKey string                 `json:"session"`
}

// Status returns a snapshot of the bridge state.
func (b *Bridge) Status() Status {
	state := b.conn.State()
	b.mu.Lock()
	defer b.mu.Unlock()
	return Status{
		State:      state,
		Label:      state.StatusLabel(),
		Port:       b.port,
		WsURL:      b.wsURL,
		ActiveFile: b.activeFile,
		Relay:      b.relayUp,
		Plots:      len(b.book.View().Plots),
		Surfaces:   b.registry.Count(),
		SessionKey: b.sessionKey,
	}
}

func (b *Bridge) bootstrap() []domain.SurfaceMessage {
	state := b.conn.State()
	b.mu.Lock()
	port, wsURL, file, relayUp := b.port, b.wsURL, b.activeFile, b.relayUp
	b.mu.Unlock()

	msgs := []domain.SurfaceMessage{
		domain.CommandMessage(domain.CmdBootstrap),
		domain.ConnectionStatusMessage(state),
	}
	if port != 0 {
		msgs = append(msgs, domain.SetPortMessage(port, wsURL))
	}
	if file != "" {
		msgs = append(msgs, domain.ActiveFileMessage(domain.CmdSetActiveFile, file))
	}
	if state.Transport == domain.TransportRelay {
		msgs = append(msgs, domain.ProxyStatusMessage(relayUp))
	}
	view := b.book.View()
	return append(msgs, domain.PlotStateMessage(view.Plots, view.Current))
}

func (b *Bridge) handleEvent(ctx context.Context, ev connection.Event) {
	switch ev.Kind {
	case connection.EventState:
		b.registry.Broadcast(domain.ConnectionStatusMessage(ev.State))
	case connection.EventRelayStatus:
		b.mu.Lock()
		b.relayUp = ev.Connected
		b.mu.Unlock()
		b.registry.Broadcast(domain.ProxyStatusMessage(ev.Connected))
	case connection.EventFrame:
		if ev.Transport == domain.TransportRelay {
			b.registry.Broadcast(domain.ProxyFrameMessage(ev.Frame))
		}
		b.applyFrame(ctx, ev.Frame)
	case connection.EventSettled:
		b.registry.Broadcast(domain.CommandMessage(domain.CmdRefreshLayout))
		b.mu.Lock()
		last := b.resize
		b.mu.Unlock()
		if last != nil {
			b.sendResize(ctx, last.Width, last.Height)
		}
	}
}

func (b *Bridge) applyFrame(ctx context.Context, frame []byte) {
	in, err := domain.DecodeInbound(frame)
	if err != nil {
		b.logger.Debug("dropped backend frame", "err", err)
		if b.hooks.OnFrameDropped != nil {
			b.hooks.OnFrameDropped(ctx, "decode: "+err.Error())
		}
		return
	}

	switch in.Type {
	case domain.MsgNewPlot:
		meta, err := in.PlotMetadata()
		if err != nil {
			b.logger.Debug("ignoring plot metadata", "err", err)
		}
		b.publish(b.book.Append(in.Data, meta))
	case domain.MsgUpdatePlot:
		if view, ok := b.book.ReplaceCurrent(in.Data); ok {
			b.publish(view)
		}
	case domain.MsgClearPlots:
		b.publish(b.book.Clear())
		b.persist(ctx)
	case domain.MsgPlotList:
		view := b.book.ApplySnapshot(in.Plots)
		if b.hooks.OnSnapshot != nil {
			b.hooks.OnSnapshot(ctx, view.Plots)
		}
		b.publish(view)
		b.persist(ctx)
	default:
		b.logger.Debug("unhandled backend message", "type", in.Type)
	}
}

func (b *Bridge) publish(view plots.View) {
	b.registry.Broadcast(domain.PlotStateMessage(view.Plots, view.Current))
}

func (b *Bridge) restore(ctx context.Context) {
	retained, err := b.sessions.Load(ctx, b.sessionKey)
	if err != nil {
		b.logger.Warn("annotations not restored", "session", b.sessionKey, "err", err)
		return
	}
	b.book.Seed(retained)
	b.logger.Debug("annotations restored", "session", b.sessionKey, "count", len(retained))
}

func (b *Bridge) persist(ctx context.Context) {
	_, err := b.sessions.Update(ctx, b.sessionKey, func(domain.RetainedAnnotations) domain.RetainedAnnotations {
		return b.book.Retained()
	})
	if err != nil {
		b.logger.Warn("annotations not persisted", "session", b.sessionKey, "err", err)
	}
}
