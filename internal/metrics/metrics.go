// Package metrics exposes the server's prometheus counters and gauges.
// Build a *Metrics with New: its collectors work whether or not the
// registry they are registered with is served by an HTTP exporter, so
// tests can construct one and read the counters directly. The zero
// Metrics value has nil collectors and is not usable.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics groups the counters and gauges the server's accept loop,
// connection loop, and eviction loop update as they run.
type Metrics struct {
	CommandsExecuted    *prometheus.CounterVec
	ConnectionsAccepted prometheus.Counter
	PassiveEvictions    prometheus.Counter
	ActiveEvictions     prometheus.Counter
	KeyCount            prometheus.Gauge
}

// New builds a Metrics value and registers its collectors with reg. If
// reg is nil, a private, unregistered registry is used instead — the
// counters remain fully functional, just invisible to any `/metrics`
// endpoint.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{
		CommandsExecuted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "redikv_commands_executed_total",
			Help: "Number of commands dispatched, by command name.",
		}, []string{"command"}),
		ConnectionsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "redikv_connections_accepted_total",
			Help: "Number of client connections accepted.",
		}),
		PassiveEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "redikv_passive_evictions_total",
			Help: "Number of keys evicted on access because they had expired.",
		}),
		ActiveEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "redikv_active_evictions_total",
			Help: "Number of keys evicted by the background sampling loop.",
		}),
		KeyCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "redikv_keys",
			Help: "Current number of keys held in the store.",
		}),
	}

	reg.MustRegister(m.CommandsExecuted, m.ConnectionsAccepted, m.PassiveEvictions, m.ActiveEvictions, m.KeyCount)
	return m
}
