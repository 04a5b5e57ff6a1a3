package metrics

import "github.com/prometheus/client_golang/prometheus"

// HubMetrics holds Prometheus metrics for the broadcast hub.
type HubMetrics struct {
	Subscribers         prometheus.Gauge
	Broadcasts          prometheus.Counter
	Deliveries          prometheus.Counter
	DeliveryFailures    prometheus.Counter
	CommandChannelDepth prometheus.Gauge
	Panics              prometheus.Counter
}

// NewHubMetrics creates and registers hub metrics on the given registry.
func NewHubMetrics(reg prometheus.Registerer) *HubMetrics {
	m := &HubMetrics{
		Subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "subscribers",
			Help:      "Number of sessions currently subscribed to the hub.",
		}),
		Broadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "broadcasts_total",
			Help:      "Total number of messages fanned out by the hub.",
		}),
		Deliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "deliveries_total",
			Help:      "Total number of messages enqueued into session mailboxes.",
		}),
		DeliveryFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "delivery_failures_total",
			Help:      "Total number of deliveries dropped because a mailbox was closed or full.",
		}),
		CommandChannelDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "command_channel_depth",
			Help:      "Current depth of the hub command channel.",
		}),
		Panics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "panics_total",
			Help:      "Total hub panic recoveries.",
		}),
	}

	reg.MustRegister(m.Subscribers, m.Broadcasts, m.Deliveries, m.DeliveryFailures, m.CommandChannelDepth, m.Panics)
	return m
}
