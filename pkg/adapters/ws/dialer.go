// Package ws adapts gorilla/websocket to the bridge transport ports.
package ws

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/aretw0/plotbridge/pkg/ports"
	"github.com/gorilla/websocket"
)

// Dialer implements ports.Dialer with gorilla/websocket.
type Dialer struct {
	// HandshakeTimeout bounds the opening handshake when ctx carries no deadline.
	HandshakeTimeout time.Duration
	// Header is sent with every handshake.
	Header http.Header
}

// NewDialer returns a Dialer with gorilla's default handshake timeout.
func NewDialer() *Dialer {
	return &Dialer{HandshakeTimeout: websocket.DefaultDialer.HandshakeTimeout}
}

// Dial opens a websocket to url. Cancelling ctx aborts the handshake.
func (d *Dialer) Dial(ctx context.Context, url string) (ports.Conn, error) {
	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.HandshakeTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, url, d.Header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return Wrap(conn), nil
}

// Conn implements ports.Conn on top of a gorilla connection.
// Gorilla allows one concurrent writer, so writes are serialized here.
type Conn struct {
	conn *websocket.Conn

	wmu       sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// Wrap adapts an established gorilla connection.
func Wrap(conn *websocket.Conn) *Conn {
	return &Conn{conn: conn}
}

// ReadMessage returns the next text or binary frame payload.
func (c *Conn) ReadMessage() ([]byte, error) {
	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if kind == websocket.TextMessage || kind == websocket.BinaryMessage {
			return data, nil
		}
	}
}

// WriteMessage sends data as a text frame.
func (c *Conn) WriteMessage(data []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Close sends a close frame and closes the socket. Repeated calls return the first result.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.wmu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.wmu.Unlock()
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
