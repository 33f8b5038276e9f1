// Package session ties one Connection and one message log together for the
// lifetime of a chat front end.
package session

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/omochice/socketchat/internal/connection"
	"github.com/omochice/socketchat/internal/messagelog"
	"go.uber.org/zap"
)

// Session owns exactly one Connection and one message log.
// Create it when the front end starts and Close it when the front end goes away.
type Session struct {
	id     string
	conn   *connection.Connection
	log    *messagelog.Log
	logger *zap.Logger

	pubMu         sync.Mutex
	updates       chan []string
	updatesClosed bool

	closed    atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

type options struct {
	logger *zap.Logger
}

// Option configures a Session.
type Option func(*options)

// WithLogger sets the session logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// New opens a connection to endpoint through manager and starts draining its
// events into a fresh message log.
func New(manager *connection.Manager, endpoint string, opts ...Option) *Session {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	id := uuid.NewString()
	s := &Session{
		id:      id,
		log:     messagelog.New(),
		logger:  o.logger.With(zap.String("session", id)),
		updates: make(chan []string, 1),
		done:    make(chan struct{}),
	}
	s.conn = manager.Open(endpoint)

	go s.loop()

	s.logger.Info("Session started", zap.String("endpoint", endpoint))
	return s
}

// ID returns the session identifier used in logs.
func (s *Session) ID() string {
	return s.id
}

// State returns the state of the session's connection.
func (s *Session) State() connection.State {
	return s.conn.State()
}

// Submit records content locally and sends it to the peer.
// The local record happens even when the message cannot be sent.
func (s *Session) Submit(content string) {
	if s.closed.Load() {
		return
	}
	if s.log.AppendLocal(content) {
		s.publish()
	}
	s.conn.Send(content)
}

// Snapshot returns the ordered, duplicate-free messages seen so far.
func (s *Session) Snapshot() []string {
	return s.log.Snapshot()
}

// Entries returns the messages with the origin of their first occurrence.
func (s *Session) Entries() []messagelog.Entry {
	return s.log.Entries()
}

// Updates delivers a fresh snapshot after every change to the log. Only the
// latest snapshot is kept when the reader falls behind. The channel is
// closed by Close.
func (s *Session) Updates() <-chan []string {
	return s.updates
}

// Close ends the session: the connection is closed exactly once and the
// message log is discarded. Close is idempotent.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.conn.Close()
		<-s.done

		s.log.Clear()

		s.pubMu.Lock()
		s.updatesClosed = true
		close(s.updates)
		s.pubMu.Unlock()

		s.logger.Info("Session closed")
	})
}

func (s *Session) loop() {
	defer close(s.done)

	for ev := range s.conn.Events() {
		switch ev.Kind {
		case connection.EventState:
			s.logger.Info("Connection state changed", zap.Stringer("state", ev.State))
		case connection.EventMessage:
			if s.log.AppendRemote(ev.Content) {
				s.publish()
			} else {
				s.logger.Debug("Skipping duplicate message")
			}
		}
	}
}

// publish replaces any unread snapshot with the current one.
func (s *Session) publish() {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	if s.updatesClosed {
		return
	}
	snap := s.log.Snapshot()
	select {
	case <-s.updates:
	default:
	}
	s.updates <- snap
}
