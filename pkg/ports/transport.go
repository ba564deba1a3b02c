package ports

import "context"

// Conn is a message-oriented backend socket.
// ReadMessage blocks until a text frame arrives or the socket fails.
// WriteMessage is safe for concurrent use.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// Dialer opens backend sockets. Dial must honour ctx cancellation so an
// abandoned attempt cannot complete after its deadline.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}
