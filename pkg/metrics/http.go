package metrics

import (
	"time"
)

// HTTPMetrics provides observability for file share requests and the
// connection lifecycle.
//
// This interface is optional - pass nil to disable metrics collection
// with zero overhead.
//
// Example usage:
//
//	// With metrics enabled
//	metrics.InitRegistry()
//	m := prometheus.NewHTTPMetrics()
//	srv := server.New(cfg, reg, ops, m)
//
//	// Without metrics (pass nil for zero overhead)
//	srv := server.New(cfg, reg, ops, nil)
type HTTPMetrics interface {
	// RecordRequest records a completed request with its share,
	// operation name (e.g. "download", "upload", "list"), HTTP status,
	// and duration.
	RecordRequest(share string, operation string, status int, duration time.Duration)

	// RecordRequestStart increments the in-flight request gauge.
	RecordRequestStart(share string, operation string)

	// RecordRequestEnd decrements the in-flight request gauge.
	RecordRequestEnd(share string, operation string)

	// RecordBytesTransferred records payload bytes moved for a share.
	// Direction is "download" or "upload".
	RecordBytesTransferred(share string, direction string, bytes int64)

	// SetActiveConnections updates the current connection count across
	// all listeners.
	SetActiveConnections(count int32)

	// RecordConnectionAccepted increments the accepted connections counter.
	RecordConnectionAccepted()

	// RecordConnectionClosed increments the closed connections counter.
	RecordConnectionClosed()

	// RecordConnectionForceClosed increments the force-closed counter.
	// Called for connections cut at the drain deadline.
	RecordConnectionForceClosed()
}
