package relay

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/omochice/socketchat/internal/transport"
	"github.com/omochice/socketchat/pkg/protocol"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const outgoingBuffer = 16

// Client represents a connected client with transport-agnostic connection.
type Client struct {
	ID       string
	Conn     transport.Conn
	Outgoing chan []byte
	limiter  *rate.Limiter
}

// Hub tracks connected clients and rebroadcasts their chat messages.
type Hub struct {
	clients map[*Client]bool
	mu      sync.RWMutex

	echo    bool
	limit   rate.Limit
	burst   int
	logger  *zap.Logger
	metrics *metrics
}

// newHub creates a Hub. echo controls whether senders receive their own messages.
func newHub(echo bool, limit rate.Limit, burst int, logger *zap.Logger, m *metrics) *Hub {
	if burst < 1 {
		burst = 1
	}
	return &Hub{
		clients: make(map[*Client]bool),
		echo:    echo,
		limit:   limit,
		burst:   burst,
		logger:  logger,
		metrics: m,
	}
}

// NewClient wraps conn in a Client with its own rate limiter.
func (h *Hub) NewClient(conn transport.Conn) *Client {
	return &Client{
		ID:       uuid.NewString(),
		Conn:     conn,
		Outgoing: make(chan []byte, outgoingBuffer),
		limiter:  rate.NewLimiter(h.limit, h.burst),
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client] = true
	h.metrics.clients.Set(float64(len(h.clients)))
}

// Unregister removes a client from the hub and closes its outgoing queue.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.Outgoing)
	h.metrics.clients.Set(float64(len(h.clients)))
}

// ClientCount returns number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// CloseAll closes the transport of every registered client.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		_ = client.Conn.Close()
	}
}

// Broadcast queues data for every client, skipping sender unless echo is on.
// Clients whose queue is full miss the message.
func (h *Hub) Broadcast(data []byte, sender *Client) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		if client == sender && !h.echo {
			continue
		}
		select {
		case client.Outgoing <- data:
		default:
			h.metrics.dropped.WithLabelValues(reasonQueueFull).Inc()
			h.logger.Warn("Client channel full, skipping", zap.String("client", client.ID))
		}
	}
}

// HandleClient reads frames from client until its connection fails and
// relays every chat message. It unregisters the client on return.
func (h *Hub) HandleClient(ctx context.Context, client *Client) {
	defer h.Unregister(client)

	logger := h.logger.With(zap.String("client", client.ID), zap.String("remote", client.Conn.RemoteAddr()))
	logger.Info("Client connected")
	defer logger.Info("Client disconnected")

	for {
		data, err := client.Conn.Read(ctx)
		if err != nil {
			logger.Debug("Read ended", zap.Error(err))
			return
		}

		var env protocol.Envelope
		if err := env.Decode(data); err != nil {
			h.metrics.dropped.WithLabelValues(reasonInvalid).Inc()
			logger.Warn("Failed to decode message", zap.Error(err))
			continue
		}
		if !env.IsMessage() {
			logger.Debug("Ignoring event", zap.String("event", env.Event))
			continue
		}
		if !client.limiter.Allow() {
			h.metrics.dropped.WithLabelValues(reasonRateLimited).Inc()
			logger.Warn("Rate limit exceeded, dropping message")
			continue
		}

		h.metrics.messages.Inc()
		logger.Debug("Relaying message", zap.Int("bytes", len(env.Content)))
		h.Broadcast(data, client)
	}
}
