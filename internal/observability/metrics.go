package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ridesync", Name: "http_retries_total", Help: "Retry attempts per endpoint"},
		[]string{"endpoint"},
	)
	CircuitOpenedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ridesync", Name: "circuit_opened_total", Help: "Circuit breaker open events per endpoint"},
		[]string{"endpoint"},
	)
	CircuitRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ridesync", Name: "circuit_rejected_total", Help: "Requests rejected while a circuit was open"},
		[]string{"endpoint"},
	)
	OfflineQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{Namespace: "ridesync", Name: "offline_queue_depth", Help: "Requests waiting in the offline queue"},
	)
	OfflineQueueDrainedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ridesync", Name: "offline_queue_drained_total", Help: "Offline queue replay outcomes"},
		[]string{"outcome"},
	)
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ridesync",
			Name:      "http_request_duration_seconds",
			Help:      "Resilient request latency including retries",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "outcome"},
	)

	RealtimeReconnectsTotal = promauto.NewCounter(
		prometheus.CounterOpts{Namespace: "ridesync", Name: "realtime_reconnects_total", Help: "Realtime reconnection attempts"},
	)
	HeartbeatMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{Namespace: "ridesync", Name: "heartbeat_misses_total", Help: "Heartbeats with no pong before the deadline"},
	)
	OutboundQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{Namespace: "ridesync", Name: "outbound_queue_depth", Help: "Messages waiting in the outbound realtime queue"},
	)
	MessagesDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ridesync", Name: "messages_dropped_total", Help: "Outbound messages dropped by reason"},
		[]string{"reason"},
	)
	EventsReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ridesync", Name: "events_received_total", Help: "Inbound realtime events by type"},
		[]string{"type"},
	)

	StateTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ridesync", Name: "state_transitions_total", Help: "Driver lifecycle transitions by outcome"},
		[]string{"outcome"},
	)

	LocationFallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ridesync", Name: "location_fallbacks_total", Help: "Location acquisitions by final source"},
		[]string{"source"},
	)
)
