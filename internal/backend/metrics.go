package backend

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes Prometheus collectors for backend activity.
type Metrics struct {
	registry       *prometheus.Registry
	sessionsTotal  *prometheus.CounterVec
	sessionsActive prometheus.Gauge
	eventsStreamed prometheus.Counter
	chatMessages   *prometheus.CounterVec
	streamClients  prometheus.Gauge
}

// NewMetrics registers the backend collectors on a fresh registry, so several
// servers can coexist in one process.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		sessionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentd",
			Name:      "sessions_total",
			Help:      "Task sessions by final status.",
		}, []string{"status"}),
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "agentd",
			Name:      "sessions_active",
			Help:      "Task sessions currently starting or running.",
		}),
		eventsStreamed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "agentd",
			Name:      "events_streamed_total",
			Help:      "Events written to session streams.",
		}),
		chatMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentd",
			Name:      "chat_messages_total",
			Help:      "Chat messages persisted, by role.",
		}, []string{"role"}),
		streamClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "agentd",
			Name:      "stream_clients",
			Help:      "Open SSE and WebSocket connections.",
		}),
	}
	reg.MustRegister(
		m.sessionsTotal,
		m.sessionsActive,
		m.eventsStreamed,
		m.chatMessages,
		m.streamClients,
		collectors.NewGoCollector(),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }
