// Package connection manages the single duplex connection of a chat session.
package connection

import (
	"context"
	"sync"
	"time"

	"github.com/omochice/socketchat/internal/transport"
	"github.com/omochice/socketchat/pkg/protocol"
	"go.uber.org/zap"
)

const defaultEventBuffer = 64

// Manager opens Connections through a transport.Dialer.
type Manager struct {
	dialer      transport.Dialer
	logger      *zap.Logger
	dialTimeout time.Duration
	eventBuffer int
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger used by the Manager and its Connections.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithDialTimeout bounds connection establishment. Zero means no timeout.
func WithDialTimeout(d time.Duration) Option {
	return func(m *Manager) {
		m.dialTimeout = d
	}
}

// WithEventBuffer sets the capacity of each Connection's event channel.
func WithEventBuffer(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.eventBuffer = n
		}
	}
}

// NewManager creates a Manager dialing through dialer.
func NewManager(dialer transport.Dialer, opts ...Option) *Manager {
	m := &Manager{
		dialer:      dialer,
		logger:      zap.NewNop(),
		eventBuffer: defaultEventBuffer,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Open starts connecting to endpoint and returns immediately.
// The returned Connection is in StateConnecting; the outcome is reported
// on its Events channel.
func (m *Manager) Open(endpoint string) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		endpoint: endpoint,
		dialer:   m.dialer,
		logger:   m.logger.With(zap.String("endpoint", endpoint)),
		state:    StateConnecting,
		events:   make(chan Event, m.eventBuffer),
		ctx:      ctx,
		cancel:   cancel,
	}

	c.wg.Add(1)
	go c.run(m.dialTimeout)

	return c
}

// Connection is one duplex connection to a fixed endpoint.
// A disconnected Connection is never reused; open a new one instead.
type Connection struct {
	endpoint string
	dialer   transport.Dialer
	logger   *zap.Logger

	mu    sync.RWMutex
	state State
	conn  transport.Conn

	writeMu sync.Mutex
	events  chan Event

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Endpoint returns the address the Connection was opened for.
func (c *Connection) Endpoint() string {
	return c.endpoint
}

// State returns the current lifecycle state.
func (c *Connection) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Events returns the channel of state transitions and inbound messages, in
// the order they happened. It is closed when Close returns.
func (c *Connection) Events() <-chan Event {
	return c.events
}

// Send transmits content to the peer if the Connection is connected.
// Otherwise the message is dropped; it is never queued.
func (c *Connection) Send(content string) {
	c.mu.RLock()
	state, conn := c.state, c.conn
	c.mu.RUnlock()

	if state != StateConnected || conn == nil {
		c.logger.Debug("Dropping message, not connected", zap.Stringer("state", state))
		return
	}

	env := protocol.NewMessage(content)
	data, err := env.Encode()
	if err != nil {
		c.logger.Warn("Failed to encode message", zap.Error(err))
		return
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.Write(c.ctx, data); err != nil {
		c.logger.Warn("Failed to send message", zap.Error(err))
	}
}

// Close terminates the Connection. It is idempotent, safe in every state,
// and waits for the receive goroutine to exit.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		c.cancel()

		c.mu.Lock()
		transitioned := c.state != StateDisconnected
		c.state = StateDisconnected
		conn := c.conn
		c.conn = nil
		c.mu.Unlock()

		if conn != nil {
			if err := conn.Close(); err != nil {
				c.logger.Debug("Error closing transport", zap.Error(err))
			}
		}

		c.wg.Wait()

		if transitioned {
			c.logger.Info("Disconnected from socket server")
			select {
			case c.events <- Event{Kind: EventState, State: StateDisconnected}:
			default:
				c.logger.Debug("Event buffer full, dropping disconnect event")
			}
		}
		close(c.events)
	})
}

// run dials the endpoint and then receives until the transport fails or
// the Connection is closed.
func (c *Connection) run(dialTimeout time.Duration) {
	defer c.wg.Done()

	dialCtx := c.ctx
	if dialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(c.ctx, dialTimeout)
		defer cancel()
	}

	conn, err := c.dialer.Dial(dialCtx, c.endpoint)
	if err != nil {
		if c.ctx.Err() != nil {
			return
		}
		c.logger.Warn("Failed to connect to socket server", zap.Error(err))
		c.disconnected()
		return
	}

	c.mu.Lock()
	if c.state != StateConnecting {
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.conn = conn
	c.state = StateConnected
	c.mu.Unlock()

	c.logger.Info("Connected to socket server", zap.String("remote", conn.RemoteAddr()))
	c.emit(Event{Kind: EventState, State: StateConnected})

	c.receiveMessages(conn)
}

func (c *Connection) receiveMessages(conn transport.Conn) {
	for {
		data, err := conn.Read(c.ctx)
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			c.logger.Info("Connection lost", zap.Error(err))
			c.disconnected()
			return
		}

		var env protocol.Envelope
		if err := env.Decode(data); err != nil {
			c.logger.Warn("Failed to decode message", zap.Error(err))
			continue
		}
		if !env.IsMessage() {
			c.logger.Debug("Ignoring event", zap.String("event", env.Event))
			continue
		}

		c.emit(Event{Kind: EventMessage, Content: env.Content})
	}
}

// disconnected moves a live Connection to StateDisconnected and reports it.
// The transport itself is released by Close.
func (c *Connection) disconnected() {
	c.mu.Lock()
	if c.state == StateDisconnected {
		c.mu.Unlock()
		return
	}
	c.state = StateDisconnected
	c.mu.Unlock()

	c.logger.Info("Disconnected from socket server")
	c.emit(Event{Kind: EventState, State: StateDisconnected})
}

// emit delivers ev unless the Connection is being closed.
func (c *Connection) emit(ev Event) {
	select {
	case c.events <- ev:
	case <-c.ctx.Done():
	}
}
