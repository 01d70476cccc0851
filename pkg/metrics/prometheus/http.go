// Package prometheus provides the Prometheus-backed implementations of
// the metrics interfaces.
package prometheus

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/dittoshare/pkg/metrics"
)

// httpMetrics is the Prometheus implementation of metrics.HTTPMetrics.
type httpMetrics struct {
	requests         *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	inFlight         *prometheus.GaugeVec
	bytesTransferred *prometheus.CounterVec
	activeConns      prometheus.Gauge
	connsAccepted    prometheus.Counter
	connsClosed      prometheus.Counter
	connsForceClosed prometheus.Counter
}

// NewHTTPMetrics creates a new Prometheus-backed HTTPMetrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called), so
// the result can be passed straight to consumers that treat nil as
// disabled.
func NewHTTPMetrics() metrics.HTTPMetrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &httpMetrics{
		requests: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittoshare_http_requests_total",
				Help: "Total number of file share requests by share, operation, and status",
			},
			[]string{"share", "operation", "status"},
		),
		requestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "dittoshare_http_request_duration_milliseconds",
				Help: "Duration of file share requests in milliseconds",
				Buckets: []float64{
					1,     // 1ms - cached listings
					5,     // 5ms
					10,    // 10ms
					50,    // 50ms
					100,   // 100ms
					500,   // 500ms
					1000,  // 1s - small transfers
					5000,  // 5s
					30000, // 30s - large transfers
				},
			},
			[]string{"operation"},
		),
		inFlight: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dittoshare_http_in_flight_requests",
				Help: "Number of requests currently being served",
			},
			[]string{"share", "operation"},
		),
		bytesTransferred: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittoshare_http_bytes_transferred_total",
				Help: "Payload bytes moved by share and direction",
			},
			[]string{"share", "direction"}, // direction: "download", "upload"
		),
		activeConns: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "dittoshare_active_connections",
				Help: "Current number of open client connections across all listeners",
			},
		),
		connsAccepted: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dittoshare_connections_accepted_total",
				Help: "Total number of accepted client connections",
			},
		),
		connsClosed: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dittoshare_connections_closed_total",
				Help: "Total number of closed client connections",
			},
		),
		connsForceClosed: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dittoshare_connections_force_closed_total",
				Help: "Total number of connections cut at the shutdown drain deadline",
			},
		),
	}
}

func (m *httpMetrics) RecordRequest(share, operation string, status int, duration time.Duration) {
	m.requests.WithLabelValues(share, operation, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(operation).Observe(float64(duration.Milliseconds()))
}

func (m *httpMetrics) RecordRequestStart(share, operation string) {
	m.inFlight.WithLabelValues(share, operation).Inc()
}

func (m *httpMetrics) RecordRequestEnd(share, operation string) {
	m.inFlight.WithLabelValues(share, operation).Dec()
}

func (m *httpMetrics) RecordBytesTransferred(share, direction string, bytes int64) {
	if bytes <= 0 {
		return
	}
	m.bytesTransferred.WithLabelValues(share, direction).Add(float64(bytes))
}

func (m *httpMetrics) SetActiveConnections(count int32) {
	m.activeConns.Set(float64(count))
}

func (m *httpMetrics) RecordConnectionAccepted() {
	m.connsAccepted.Inc()
}

func (m *httpMetrics) RecordConnectionClosed() {
	m.connsClosed.Inc()
}

func (m *httpMetrics) RecordConnectionForceClosed() {
	m.connsForceClosed.Inc()
}
