// Package transporttest provides in-memory transport fakes for tests.
package transporttest

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/omochice/socketchat/internal/transport"
	"github.com/omochice/socketchat/pkg/protocol"
)

// ErrClosed is returned by Write after the connection is closed.
var ErrClosed = errors.New("transporttest: connection closed")

// Conn is an in-memory transport.Conn. Frames pushed with Deliver are
// returned by Read in order; frames passed to Write are recorded.
type Conn struct {
	inbound    chan []byte
	closed     chan struct{}
	closeOnce  sync.Once
	remoteAddr string

	mu       sync.Mutex
	written  [][]byte
	writeErr error
}

// NewConn creates a Conn reporting addr as its remote address.
func NewConn(addr string) *Conn {
	return &Conn{
		inbound:    make(chan []byte, 64),
		closed:     make(chan struct{}),
		remoteAddr: addr,
	}
}

// Read implements transport.Conn. Queued frames are returned before io.EOF.
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	select {
	case data := <-c.inbound:
		return data, nil
	default:
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.closed:
		return nil, io.EOF
	case data := <-c.inbound:
		return data, nil
	}
}

// Write implements transport.Conn.
func (c *Conn) Write(ctx context.Context, data []byte) error {
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	copied := make([]byte, len(data))
	copy(copied, data)
	c.written = append(c.written, copied)
	return nil
}

// Close implements transport.Conn. It also simulates the peer hanging up:
// pending and future Reads return io.EOF.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
	})
	return nil
}

// RemoteAddr implements transport.Conn.
func (c *Conn) RemoteAddr() string {
	return c.remoteAddr
}

// Deliver queues a raw frame as if the peer had sent it.
func (c *Conn) Deliver(data []byte) {
	c.inbound <- data
}

// DeliverMessage queues a chat_message frame carrying content.
func (c *Conn) DeliverMessage(content string) {
	env := protocol.NewMessage(content)
	data, err := env.Encode()
	if err != nil {
		panic(err)
	}
	c.Deliver(data)
}

// Written returns a copy of all frames written so far.
func (c *Conn) Written() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.written))
	copy(out, c.written)
	return out
}

// WrittenMessages decodes the written frames into chat message contents.
// Frames that are not chat messages are skipped.
func (c *Conn) WrittenMessages() []string {
	var out []string
	for _, data := range c.Written() {
		var env protocol.Envelope
		if err := env.Decode(data); err != nil || !env.IsMessage() {
			continue
		}
		out = append(out, env.Content)
	}
	return out
}

// SetWriteError makes subsequent Writes fail with err.
func (c *Conn) SetWriteError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeErr = err
}

// IsClosed reports whether Close has been called.
func (c *Conn) IsClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// Dialer is an in-memory transport.Dialer handing out Conns.
type Dialer struct {
	mu    sync.Mutex
	gate  chan struct{}
	err   error
	conns []*Conn
}

// NewDialer creates a Dialer whose dials succeed immediately.
func NewDialer() *Dialer {
	return &Dialer{}
}

// Hold makes subsequent dials block until Release or context cancellation.
func (d *Dialer) Hold() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gate = make(chan struct{})
}

// Release unblocks dials held by Hold.
func (d *Dialer) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gate != nil {
		close(d.gate)
		d.gate = nil
	}
}

// FailWith makes subsequent dials fail with err.
func (d *Dialer) FailWith(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

// Dial implements transport.Dialer.
func (d *Dialer) Dial(ctx context.Context, endpoint string) (transport.Conn, error) {
	d.mu.Lock()
	gate := d.gate
	d.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	c := NewConn(endpoint)
	d.conns = append(d.conns, c)
	return c, nil
}

// Dials returns the number of successful dials.
func (d *Dialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

// Last returns the most recently dialed Conn, or nil.
func (d *Dialer) Last() *Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

var (
	_ transport.Conn   = (*Conn)(nil)
	_ transport.Dialer = (*Dialer)(nil)
)
