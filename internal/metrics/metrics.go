// Package metrics holds the Prometheus instruments for the realtime server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "cospace"

// Metrics aggregates the server-wide instruments. Construct one per process
// (or per test, with a fresh registry).
type Metrics struct {
	ConnectionsActive  prometheus.Gauge
	SessionsActive     prometheus.Gauge
	FramesTotal        *prometheus.CounterVec
	HeartbeatEvictions prometheus.Counter
	PositionBroadcasts prometheus.Counter
}

// New registers the instruments with reg. Pass prometheus.DefaultRegisterer
// in production.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ConnectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Currently open websocket connections",
		}),
		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Currently loaded sessions",
		}),
		FramesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Inbound frames processed, by eventType",
		}, []string{"event_type"}),
		HeartbeatEvictions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "heartbeat_evictions_total",
			Help:      "Connections dropped for missing two heartbeat probes",
		}),
		PositionBroadcasts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "position_broadcasts_total",
			Help:      "Batched position frames broadcast by session ticks",
		}),
	}
}
