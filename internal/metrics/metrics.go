package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Message result labels.
const (
	ResultDelivered       = "delivered"
	ResultValidationError = "validation_error"
	ResultMediaError      = "media_error"
	ResultPersistError    = "persistence_error"
	ResultRateLimited     = "rate_limited"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_relay_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// Pipeline metrics
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_relay_messages_total",
			Help: "Inbound messages by type and pipeline result",
		},
		[]string{"type", "result"},
	)

	HistoryRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_relay_history_requests_total",
			Help: "History requests by result",
		},
		[]string{"result"}, // "ok" or "error"
	)

	// Connection registry metrics
	Connections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_relay_connections",
			Help: "Currently registered WebSocket connections",
		},
	)

	BroadcastDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_relay_broadcast_dropped_total",
			Help: "Broadcast deliveries skipped because the peer was closed or too slow",
		},
	)

	// Infrastructure metrics
	MediaUploadDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_relay_media_upload_duration_seconds",
			Help:    "Media resolution latency",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"type"},
	)

	StoreDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_relay_store_duration_seconds",
			Help:    "Message store operation latency",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"op"}, // "append" or "list"
	)
)
