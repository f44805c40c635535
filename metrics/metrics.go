package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Dispatch metrics
var (
	DispatchesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "edgeproxy_dispatches_total",
			Help: "Total number of readiness dispatches handled",
		},
	)

	HandshakeSteps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edgeproxy_handshake_steps_total",
			Help: "Handshake step invocations by step and result",
		},
		[]string{"step", "result"},
	)

	HandshakeOverruns = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "edgeproxy_handshake_overruns_total",
			Help: "Dispatches aborted because the handshake loop exceeded its step budget",
		},
	)
)

// Polling metrics
var (
	PollUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edgeproxy_poll_updates_total",
			Help: "epoll interest updates by operation",
		},
		[]string{"op"},
	)
)

// Connection metrics
var (
	ConnectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "edgeproxy_connections_total",
			Help: "Total number of connections accepted",
		},
	)

	ConnectionsCurrent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "edgeproxy_connections_current",
			Help: "Current number of live connections",
		},
	)

	EmbryonicDestroyed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "edgeproxy_embryonic_destroyed_total",
			Help: "Embryonic connections torn down before their session completed",
		},
	)
)
