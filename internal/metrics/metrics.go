package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Hub Metrics
var (
	// HubActiveConnections tracks the number of currently registered connections
	HubActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hub_active_connections",
			Help: "Number of currently registered WebSocket connections",
		},
	)

	// HubBroadcastsTotal tracks total broadcast sweeps performed
	HubBroadcastsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hub_broadcasts_total",
			Help: "Total broadcast sweeps performed by the hub",
		},
	)

	// HubMessagesDeliveredTotal tracks messages enqueued to client writers
	HubMessagesDeliveredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hub_messages_delivered_total",
			Help: "Total messages enqueued to per-connection writers",
		},
	)

	// HubSlowClientsEvicted tracks clients evicted due to a full send buffer
	HubSlowClientsEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hub_slow_clients_evicted_total",
			Help: "Total clients evicted because their send buffer was full",
		},
	)

	// HubCommandChannelDepth tracks pending commands in the hub actor channel
	HubCommandChannelDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hub_command_channel_depth",
			Help: "Current depth of the hub command channel",
		},
	)

	// HubStopTimeoutsTotal tracks hub shutdowns that exceeded the stop timeout
	HubStopTimeoutsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hub_stop_timeouts_total",
			Help: "Total hub stops that exceeded the graceful shutdown timeout",
		},
	)
)

// WebSocket Metrics
var (
	// WebSocketMessageSendDuration tracks time to write a message to a client
	WebSocketMessageSendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "websocket_message_send_duration_seconds",
			Help:    "Time to write a single message to a WebSocket client",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
		},
	)

	// WebSocketPingFailures tracks failed keepalive pings
	WebSocketPingFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_ping_failures_total",
			Help: "Total failed WebSocket keepalive pings",
		},
	)

	// ConnectionsRejectedTotal tracks rejected connection attempts by reason
	ConnectionsRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connections_rejected_total",
			Help: "Total rejected WebSocket connection attempts by reason",
		},
		[]string{"reason"},
	)
)
