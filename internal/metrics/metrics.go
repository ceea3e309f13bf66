// GeoSentry - Real-Time Geospatial Risk Assessment
// Copyright 2026 GeoSentry Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geosentry/geosentry

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus instrumentation for the risk pipeline:
// - Ping ingestion (accepted / rejected by reason)
// - Risk signal production per source
// - Alert emission, suppression, and queue pressure
// - API endpoint latency and throughput
// - WebSocket fan-out

var (
	// Ingestion Metrics
	PingsAccepted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ingest_pings_accepted_total",
			Help: "Total number of location pings accepted into session tracks",
		},
	)

	PingsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_pings_rejected_total",
			Help: "Total number of location pings rejected",
		},
		[]string{"reason"}, // "out_of_range", "low_accuracy", "out_of_order", "stale", "duplicate"
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ingest_active_sessions",
			Help: "Current number of tracked sessions",
		},
	)

	TrackPingsEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ingest_track_pings_evicted_total",
			Help: "Total number of pings evicted from tracks by age or count bounds",
		},
	)

	// Evaluation Metrics
	EvaluationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "risk_evaluation_duration_seconds",
			Help:    "Duration of a full per-ping risk evaluation",
			Buckets: []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
		},
	)

	SignalsProduced = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "risk_signals_produced_total",
			Help: "Total number of risk signals produced",
		},
		[]string{"source"}, // "geofence", "hotspot", "pattern"
	)

	GeofenceTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geofence_transitions_total",
			Help: "Total number of geofence membership transitions",
		},
		[]string{"transition"}, // "enter", "exit"
	)

	GeofenceBreaches = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "geofence_breaches_total",
			Help: "Total number of geofence breaches",
		},
	)

	GeofenceRadiusAdjustments = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "geofence_radius_adjustments_total",
			Help: "Total number of automatic geofence radius adjustments",
		},
	)

	HotspotIncidents = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hotspot_incidents_total",
			Help: "Total number of incidents recorded against hotspots",
		},
	)

	// Alert Metrics
	AlertsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alerts_emitted_total",
			Help: "Total number of alerts emitted",
		},
		[]string{"risk_level"},
	)

	AlertsSuppressed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alerts_suppressed_total",
			Help: "Total number of alerts suppressed",
		},
		[]string{"reason"}, // "dedup", "below_min_level"
	)

	AlertsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "alerts_dropped_total",
			Help: "Total number of alerts dropped from a full queue",
		},
	)

	AlertQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "alert_queue_depth",
			Help: "Current number of alerts waiting for dispatch",
		},
	)

	AlertDispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "alert_dispatch_duration_seconds",
			Help:    "Duration of alert dispatch per sink",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"sink"}, // "store", "websocket", "nats", "webhook"
	)

	AlertDispatchErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alert_dispatch_errors_total",
			Help: "Total number of alert dispatch errors per sink",
		},
		[]string{"sink"},
	)

	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	APIRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_rate_limit_hits_total",
			Help: "Total number of rate limit rejections",
		},
		[]string{"endpoint"},
	)

	// WebSocket Metrics
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections",
			Help: "Current number of active WebSocket connections",
		},
	)

	WSMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Total number of WebSocket messages sent",
		},
	)

	WSMessagesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_dropped_total",
			Help: "Total number of WebSocket messages dropped on slow clients",
		},
	)

	// Store Metrics
	StoreOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "store_operation_duration_seconds",
			Help:    "Duration of badger store operations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"}, // "put_alert", "list_alerts", "put_track", "gc"
	)

	StoreOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_operation_errors_total",
			Help: "Total number of badger store operation errors",
		},
		[]string{"operation"},
	)

	// NATS Publish Metrics
	NATSMessagesPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nats_messages_published_total",
			Help: "Total number of alert messages published to NATS",
		},
	)

	NATSPublishErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nats_publish_errors_total",
			Help: "Total number of NATS publish errors",
		},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)
)

// RecordPingRejected records a rejected ping with its rejection reason.
func RecordPingRejected(reason string) {
	PingsRejected.WithLabelValues(reason).Inc()
}

// RecordSignal records a produced risk signal for a source.
func RecordSignal(source string) {
	SignalsProduced.WithLabelValues(source).Inc()
}

// RecordEvaluation records a full risk evaluation duration.
func RecordEvaluation(duration time.Duration) {
	EvaluationDuration.Observe(duration.Seconds())
}

// RecordAlertEmitted records an emitted alert by risk level.
func RecordAlertEmitted(riskLevel string) {
	AlertsEmitted.WithLabelValues(riskLevel).Inc()
}

// RecordAlertSuppressed records a suppressed alert with its reason.
func RecordAlertSuppressed(reason string) {
	AlertsSuppressed.WithLabelValues(reason).Inc()
}

// RecordDispatch records an alert dispatch attempt for a sink.
func RecordDispatch(sink string, duration time.Duration, err error) {
	AlertDispatchDuration.WithLabelValues(sink).Observe(duration.Seconds())
	if err != nil {
		AlertDispatchErrors.WithLabelValues(sink).Inc()
	}
}

// RecordAPIRequest records an API request metric.
func RecordAPIRequest(method, endpoint string, statusCode int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordStoreOperation records a badger store operation.
func RecordStoreOperation(operation string, duration time.Duration, err error) {
	StoreOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		StoreOperationErrors.WithLabelValues(operation).Inc()
	}
}

// TrackActiveRequest tracks active API requests.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}
