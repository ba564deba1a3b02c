package broadcast

import (
	"errors"
	"sync"

	"github.com/aretw0/plotbridge/pkg/domain"
)

var (
	// ErrSurfaceFull is returned when a slow surface's buffer is full and the message is dropped.
	ErrSurfaceFull = errors.New("surface buffer full")
	// ErrSurfaceClosed is returned after Close.
	ErrSurfaceClosed = errors.New("surface closed")
)

// DefaultBuffer is the per-surface queue length used by transports.
const DefaultBuffer = 32

// ChannelSurface is a surface backed by a buffered channel.
// Transports drain Messages from their own writer goroutine, so a slow client
// only ever loses its own messages.
type ChannelSurface struct {
	id string
	ch chan domain.SurfaceMessage

	mu     sync.RWMutex
	closed bool
}

// NewChannelSurface creates a surface with the given buffer size.
func NewChannelSurface(id string, buffer int) *ChannelSurface {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &ChannelSurface{id: id, ch: make(chan domain.SurfaceMessage, buffer)}
}

// ID implements ports.Surface.
func (c *ChannelSurface) ID() string {
	return c.id
}

// Deliver implements ports.Surface. It never blocks.
func (c *ChannelSurface) Deliver(msg domain.SurfaceMessage) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrSurfaceClosed
	}
	select {
	case c.ch <- msg:
		return nil
	default:
		return ErrSurfaceFull
	}
}

// Messages returns the queue. It is closed by Close.
func (c *ChannelSurface) Messages() <-chan domain.SurfaceMessage {
	return c.ch
}

// Close stops accepting messages and closes the queue.
func (c *ChannelSurface) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.ch)
	}
}
