// Package transport defines the duplex connection the chat core runs on.
package transport

import "context"

// Conn abstracts a bidirectional, frame-oriented connection.
// This interface isolates transport details from chat logic.
type Conn interface {
	// Read reads a single message frame.
	// Returns an error once the connection is closed by either side.
	Read(ctx context.Context) ([]byte, error)

	// Write sends a single message frame.
	Write(ctx context.Context, data []byte) error

	// Close closes the connection.
	Close() error

	// RemoteAddr returns the remote address for logging.
	RemoteAddr() string
}

// Dialer establishes connections to an endpoint.
type Dialer interface {
	Dial(ctx context.Context, endpoint string) (Conn, error)
}
