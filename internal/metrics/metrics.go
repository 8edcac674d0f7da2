// Package metrics holds the Prometheus collectors exposed on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsTotal counts handled events by source (redemption, chat) and
	// outcome (applied, dropped).
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lighter_events_total",
			Help: "Viewer events handled, by source and outcome",
		},
		[]string{"source", "outcome"},
	)

	// JobsRejected counts events that never reached a worker because the
	// queue was full or already stopped.
	JobsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lighter_jobs_rejected_total",
			Help: "Jobs rejected by the worker pool",
		},
		[]string{"reason"},
	)

	// LightCallDuration tracks the latency of light.turn_on calls.
	LightCallDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lighter_light_call_duration_seconds",
			Help:    "Duration of Home Assistant light calls",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	// TransportConnected is 1 while the named transport (eventsub, chat) is connected.
	TransportConnected = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lighter_transport_connected",
			Help: "Whether an event transport is currently connected",
		},
		[]string{"transport"},
	)
)
