package metrics

import "github.com/prometheus/client_golang/prometheus"

// WebSocketMetrics holds Prometheus metrics for websocket sessions.
type WebSocketMetrics struct {
	ActiveSessions   prometheus.Gauge
	FramesReceived   *prometheus.CounterVec
	FramesSent       prometheus.Counter
	SessionsClosed   *prometheus.CounterVec
	PingFailures     prometheus.Counter
	RejectedUpgrades *prometheus.CounterVec
}

// NewWebSocketMetrics creates and registers websocket metrics on the given registry.
func NewWebSocketMetrics(reg prometheus.Registerer) *WebSocketMetrics {
	m := &WebSocketMetrics{
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "active_sessions",
			Help:      "Number of active websocket sessions.",
		}),
		FramesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "frames_received_total",
			Help:      "Total application frames received from clients, by kind.",
		}, []string{"kind"}),
		FramesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "frames_sent_total",
			Help:      "Total application frames written to clients.",
		}),
		SessionsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "sessions_closed_total",
			Help:      "Total websocket sessions closed, by reason.",
		}, []string{"reason"}),
		PingFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "ping_failures_total",
			Help:      "Total liveness probes that could not be written.",
		}),
		RejectedUpgrades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "rejected_upgrades_total",
			Help:      "Total websocket upgrades rejected by connection limits, by reason.",
		}, []string{"reason"}),
	}

	reg.MustRegister(m.ActiveSessions, m.FramesReceived, m.FramesSent, m.SessionsClosed, m.PingFailures, m.RejectedUpgrades)
	return m
}
