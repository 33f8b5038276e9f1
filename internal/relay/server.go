// Package relay implements a chat peer that rebroadcasts every chat message
// to all connected WebSocket clients.
package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/omochice/socketchat/internal/transport/ws"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const shutdownTimeout = 5 * time.Second

// Server accepts WebSocket connections and delegates them to a Hub.
type Server struct {
	address string
	hub     *Hub
	metrics *metrics
	logger  *zap.Logger

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type options struct {
	echo   bool
	limit  rate.Limit
	burst  int
	logger *zap.Logger
}

// Option configures a Server.
type Option func(*options)

// WithEchoToSender controls whether a sender receives its own messages.
// Enabled by default.
func WithEchoToSender(echo bool) Option {
	return func(o *options) {
		o.echo = echo
	}
}

// WithRateLimit limits each client to perSecond messages with the given burst.
// A non-positive perSecond disables limiting.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(o *options) {
		if perSecond <= 0 {
			o.limit = rate.Inf
		} else {
			o.limit = rate.Limit(perSecond)
		}
		o.burst = burst
	}
}

// WithLogger sets the server logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// New creates a relay server listening on address once started.
func New(address string, opts ...Option) *Server {
	o := options{
		echo:   true,
		limit:  rate.Inf,
		burst:  1,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	m := newMetrics()
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		address: address,
		hub:     newHub(o.echo, o.limit, o.burst, o.logger, m),
		metrics: m,
		logger:  o.logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Handler returns the HTTP handler serving WebSocket upgrades on "/" and
// Prometheus metrics on "/metrics".
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleWebSocket)
	mux.Handle("/metrics", s.metrics.handler())
	return mux
}

// Start listens and serves until Stop is called.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to start relay: %w", err)
	}

	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		listener.Close()
		return nil
	}
	s.listener = listener
	s.server = &http.Server{Handler: s.Handler()}
	srv := s.server
	s.mu.Unlock()

	s.logger.Info("Relay started", zap.String("addr", listener.Addr().String()))

	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("relay stopped: %w", err)
	}
	return nil
}

// Stop stops accepting connections, disconnects all clients and waits for
// their goroutines to finish.
func (s *Server) Stop() {
	s.cancel()

	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()

	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			s.logger.Warn("Relay shutdown", zap.Error(err))
		}
	}

	s.hub.CloseAll()
	s.wg.Wait()
}

// Addr returns the listening address.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	return s.hub.ClientCount()
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.ctx.Err() != nil {
		http.Error(w, "relay stopping", http.StatusServiceUnavailable)
		return
	}

	conn, err := ws.Upgrade(w, r)
	if err != nil {
		s.logger.Warn("Failed to accept WebSocket connection", zap.Error(err))
		return
	}

	client := s.hub.NewClient(conn)
	s.hub.Register(client)

	s.wg.Add(2)
	go s.handleClient(client)
	go s.writeLoop(client)
}

func (s *Server) handleClient(client *Client) {
	defer s.wg.Done()
	defer client.Conn.Close()
	s.hub.HandleClient(s.ctx, client)
}

func (s *Server) writeLoop(client *Client) {
	defer s.wg.Done()
	for data := range client.Outgoing {
		if err := client.Conn.Write(s.ctx, data); err != nil {
			s.logger.Warn("Failed to write to WebSocket client", zap.String("client", client.ID), zap.Error(err))
			_ = client.Conn.Close()
			// drain until Unregister closes the queue
			for range client.Outgoing {
			}
			return
		}
	}
}
