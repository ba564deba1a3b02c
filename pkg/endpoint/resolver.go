// Package endpoint turns a backend port into a websocket URL usable by surfaces.
package endpoint

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/aretw0/plotbridge/internal/logging"
	"github.com/aretw0/plotbridge/pkg/domain"
	"github.com/aretw0/plotbridge/pkg/ports"
)

// LoopbackURL is the address the backend listens on, as seen by the host.
func LoopbackURL(port int) string {
	return fmt.Sprintf("http://127.0.0.1:%d", port)
}

// FallbackURL is used when the host cannot translate the loopback address.
func FallbackURL(port int) string {
	return fmt.Sprintf("ws://127.0.0.1:%d", port)
}

// RelayURL is the socket the relay dials on the host side.
func RelayURL(port int) string {
	return fmt.Sprintf("ws://127.0.0.1:%d/", port)
}

// Resolver translates ports into externally reachable websocket URLs.
// Only the most recent Resolve call is reported as current.
type Resolver struct {
	host   ports.Host
	seq    Sequence
	logger *slog.Logger
}

// NewResolver builds a Resolver. A nil host resolves every port to FallbackURL.
func NewResolver(host ports.Host, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Resolver{host: host, logger: logger}
}

// Request is a resolution whose sequence tag was taken by Begin.
type Request struct {
	r    *Resolver
	tag  uint64
	port int
}

// Begin validates port and tags the resolution synchronously, so the order of
// Begin calls decides which result is current, whatever order the goroutines
// translating them run in.
func (r *Resolver) Begin(port int) (Request, error) {
	if !domain.ValidPort(port) {
		return Request{}, fmt.Errorf("%w: %d", domain.ErrInvalidPort, port)
	}
	return Request{r: r, tag: r.seq.Next(), port: port}, nil
}

// Port is the port being resolved.
func (q Request) Port() int {
	return q.port
}

// Current reports whether no later Begin or Cancel happened.
func (q Request) Current() bool {
	return q.r.seq.Current(q.tag)
}

// Resolve translates the port. current is false once a later Begin or Cancel
// happened; callers must discard such results.
func (q Request) Resolve(ctx context.Context) (wsURL string, current bool) {
	wsURL = q.r.translate(ctx, q.port)
	return wsURL, q.r.seq.Current(q.tag)
}

// Resolve is Begin followed by Request.Resolve, for synchronous callers.
func (r *Resolver) Resolve(ctx context.Context, port int) (wsURL string, current bool, err error) {
	q, err := r.Begin(port)
	if err != nil {
		return "", false, err
	}
	wsURL, current = q.Resolve(ctx)
	return wsURL, current, nil
}

// Cancel marks every in-flight Resolve as stale.
func (r *Resolver) Cancel() {
	r.seq.Invalidate()
}

func (r *Resolver) translate(ctx context.Context, port int) string {
	fallback := FallbackURL(port)
	if r.host == nil {
		return fallback
	}
	external, err := r.host.ExternalURL(ctx, LoopbackURL(port))
	if err != nil {
		r.logger.Debug("external url resolution failed, using loopback", "port", port, "err", err)
		return fallback
	}
	ws, err := ToWebSocket(external)
	if err != nil {
		r.logger.Debug("external url unusable, using loopback", "url", external, "err", err)
		return fallback
	}
	return ws
}

// ToWebSocket maps http to ws and https to wss, keeping the rest of the URL.
func ToWebSocket(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	case "http", "ws", "":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("missing host in %q", raw)
	}
	return u.String(), nil
}
