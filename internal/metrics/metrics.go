package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Connection metrics
	ConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatrelay_connections_active",
			Help: "Live client connections",
		},
	)

	RoomsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatrelay_rooms_active",
			Help: "Rooms with at least one joined connection",
		},
	)

	// Protocol metrics
	FramesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatrelay_frames_received_total",
			Help: "Inbound frames by type",
		},
		[]string{"type"},
	)

	ProtocolErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatrelay_protocol_errors_total",
			Help: "Error frames sent to clients",
		},
		[]string{"reason"},
	)

	// Business metrics
	MessagesPersisted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatrelay_messages_persisted_total",
			Help: "Chat messages stored and broadcast",
		},
	)

	BroadcastDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatrelay_broadcast_deliveries_total",
			Help: "Per-recipient broadcast outcomes",
		},
		[]string{"result"}, // "sent", "skipped" or "dropped"
	)

	CollaboratorLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatrelay_collaborator_duration_seconds",
			Help:    "Token verifier and message store call duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"call"},
	)
)
