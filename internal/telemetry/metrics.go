package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transfer_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "transfer_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Transfer metrics
	TransfersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transfer_transfers_total",
			Help: "Total number of transfer attempts by outcome",
		},
		[]string{"status"}, // success or a lower-cased error code
	)

	TransferAmount = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "transfer_amount",
			Help:    "Transfer amount distribution",
			Buckets: []float64{1, 10, 50, 100, 500, 1000, 5000, 10000, 50000, 100000},
		},
		[]string{"status"},
	)

	TransferProcessingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "transfer_processing_duration_seconds",
			Help:    "Time to execute a transfer, notifications included",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
	)

	// Lock metrics
	LockWaitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "transfer_lock_wait_duration_seconds",
			Help:    "Time spent acquiring both account lock handles, including waits that gave up",
			Buckets: []float64{0.00001, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"result"}, // acquired or unavailable
	)

	LockHandles = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "transfer_lock_handles",
			Help: "Number of account lock handles created",
		},
	)

	// Store metrics
	AccountCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "transfer_account_count",
			Help: "Total number of accounts",
		},
	)

	TransferRecords = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "transfer_records",
			Help: "Number of transfer records held",
		},
	)

	// Notification metrics
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transfer_notifications_total",
			Help: "Total number of notifications by side and outcome",
		},
		[]string{"side", "status"}, // sender/receiver, sent/failed
	)

	NATSMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transfer_nats_messages_published_total",
			Help: "Total number of NATS messages published",
		},
		[]string{"subject"},
	)
)
