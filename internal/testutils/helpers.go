package testutils

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// Backend is a websocket plot backend for tests.
// It records every frame it receives and can push frames to connected clients.
type Backend struct {
	t        *testing.T
	server   *httptest.Server
	upgrader websocket.Upgrader

	mu       sync.Mutex
	conns    []*websocket.Conn
	received []map[string]any
	accepts  int
	onAccept func(conn *websocket.Conn)
}

// NewBackend starts a backend on a loopback port. It is closed with the test.
func NewBackend(t *testing.T) *Backend {
	t.Helper()
	b := &Backend{t: t}
	b.server = httptest.NewServer(http.HandlerFunc(b.serve))
	t.Cleanup(b.Close)
	return b
}

// OnAccept runs fn for every new connection before frames are read.
func (b *Backend) OnAccept(fn func(conn *websocket.Conn)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onAccept = fn
}

func (b *Backend) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	b.mu.Lock()
	b.conns = append(b.conns, conn)
	b.accepts++
	onAccept := b.onAccept
	b.mu.Unlock()
	if onAccept != nil {
		onAccept(conn)
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg map[string]any
		if json.Unmarshal(data, &msg) == nil {
			b.mu.Lock()
			b.received = append(b.received, msg)
			b.mu.Unlock()
		}
	}
}

// Port returns the listening port.
func (b *Backend) Port() int {
	_, portStr, err := net.SplitHostPort(strings.TrimPrefix(b.server.URL, "http://"))
	require.NoError(b.t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(b.t, err)
	return port
}

// URL returns the websocket URL of the backend.
func (b *Backend) URL() string {
	return "ws" + strings.TrimPrefix(b.server.URL, "http")
}

// Push sends a raw frame to every connected client.
func (b *Backend) Push(frame string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range b.conns {
		_ = c.WriteMessage(websocket.TextMessage, []byte(frame))
	}
}

// DropAll closes every client connection without a close handshake.
func (b *Backend) DropAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range b.conns {
		_ = c.UnderlyingConn().Close()
	}
	b.conns = nil
}

// Accepts returns how many connections were accepted.
func (b *Backend) Accepts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.accepts
}

// Types returns the "type" of every received frame, in order.
func (b *Backend) Types() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.received))
	for _, m := range b.received {
		s, _ := m["type"].(string)
		out = append(out, s)
	}
	return out
}

// Received returns copies of the received frames.
func (b *Backend) Received() []map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]map[string]any, len(b.received))
	copy(out, b.received)
	return out
}

// Close stops the server and drops its clients.
func (b *Backend) Close() {
	b.DropAll()
	b.server.Close()
}

// HangingListener accepts TCP connections and never answers, so websocket
// handshakes against it stall until the client gives up.
func HangingListener(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var mu sync.Mutex
	var held []net.Conn
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			held = append(held, c)
			mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		_ = ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range held {
			_ = c.Close()
		}
	})
	return ln.Addr().(*net.TCPAddr).Port
}

// Wait is the default assert.Eventually window used across packages.
const (
	Wait = 3 * time.Second
	Tick = 10 * time.Millisecond
)
