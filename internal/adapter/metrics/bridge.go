package metrics

import "github.com/prometheus/client_golang/prometheus"

// BridgeMetrics holds Prometheus metrics for the external bus bridge.
type BridgeMetrics struct {
	Published        prometheus.Counter
	PublishFailures  prometheus.Counter
	Received         prometheus.Counter
	EchoesSuppressed prometheus.Counter
	Restarts         prometheus.Counter
	MirrorDrops      prometheus.Counter
}

// NewBridgeMetrics creates and registers bridge metrics on the given registry.
func NewBridgeMetrics(reg prometheus.Registerer) *BridgeMetrics {
	m := &BridgeMetrics{
		Published: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "published_total",
			Help:      "Total messages mirrored to the external bus.",
		}),
		PublishFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "publish_failures_total",
			Help:      "Total failed publishes to the external bus.",
		}),
		Received: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "received_total",
			Help:      "Total messages received from the external bus and broadcast locally.",
		}),
		EchoesSuppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "echoes_suppressed_total",
			Help:      "Total self-published messages dropped on their way back from the bus.",
		}),
		Restarts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "subscriber_restarts_total",
			Help:      "Total subscriber restarts after a dropped subscription.",
		}),
		MirrorDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "mirror_queue_drops_total",
			Help:      "Total client messages not mirrored because the mirror queue was full.",
		}),
	}

	reg.MustRegister(m.Published, m.PublishFailures, m.Received, m.EchoesSuppressed, m.Restarts, m.MirrorDrops)
	return m
}
