package relay

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Reasons recorded on the dropped messages counter.
const (
	reasonQueueFull   = "queue_full"
	reasonInvalid     = "invalid"
	reasonRateLimited = "rate_limited"
)

type metrics struct {
	registry *prometheus.Registry
	clients  prometheus.Gauge
	messages prometheus.Counter
	dropped  *prometheus.CounterVec
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		clients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "socketchat_relay_clients",
			Help: "Number of connected clients.",
		}),
		messages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "socketchat_relay_messages_total",
			Help: "Chat messages accepted for broadcast.",
		}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "socketchat_relay_dropped_total",
			Help: "Frames or deliveries dropped, by reason.",
		}, []string{"reason"}),
	}
	m.registry.MustRegister(m.clients, m.messages, m.dropped)
	return m
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
