package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Common attribute keys for share operations.
// These follow OpenTelemetry semantic conventions where applicable.
// HTTP keys use the standard "http." prefix, share-level keys use "share.".
const (
	// Client attributes
	AttrClientIP   = "client.ip"
	AttrClientAddr = "client.address"

	// HTTP attributes
	AttrHTTPMethod = "http.request.method"
	AttrHTTPStatus = "http.response.status_code"
	AttrRequestID  = "http.request_id"

	// Share attributes
	AttrShare     = "share.name"
	AttrPath      = "share.path"
	AttrOperation = "share.operation" // list, download, upload, mkdir, rename, move, copy, delete
	AttrDest      = "share.dest"      // destination for move/copy
	AttrOverwrite = "share.overwrite"
	AttrSize      = "share.size"
	AttrBytes     = "share.bytes_transferred"
	AttrEntries   = "share.entries" // number of directory entries returned
)

// SpanRequest is the name of the span covering a whole share request.
// Operation spans are named share.<operation> and filesystem spans
// fs.<operation> by StartShareSpan and StartFSSpan.
const SpanRequest = "share.request"

// ClientIP returns an attribute for client IP address
func ClientIP(ip string) attribute.KeyValue {
	return attribute.String(AttrClientIP, ip)
}

// ClientAddr returns an attribute for full client address
func ClientAddr(addr string) attribute.KeyValue {
	return attribute.String(AttrClientAddr, addr)
}

// HTTPMethod returns an attribute for the HTTP request method
func HTTPMethod(method string) attribute.KeyValue {
	return attribute.String(AttrHTTPMethod, method)
}

// HTTPStatus returns an attribute for the HTTP response status code
func HTTPStatus(status int) attribute.KeyValue {
	return attribute.Int(AttrHTTPStatus, status)
}

// RequestID returns an attribute for the request ID
func RequestID(id string) attribute.KeyValue {
	return attribute.String(AttrRequestID, id)
}

// Share returns an attribute for share name
func Share(name string) attribute.KeyValue {
	return attribute.String(AttrShare, name)
}

// Path returns an attribute for the share-relative path
func Path(path string) attribute.KeyValue {
	return attribute.String(AttrPath, path)
}

// Operation returns an attribute for the share operation name
func Operation(op string) attribute.KeyValue {
	return attribute.String(AttrOperation, op)
}

// Dest returns an attribute for a move/copy destination
func Dest(dest string) attribute.KeyValue {
	return attribute.String(AttrDest, dest)
}

// Overwrite returns an attribute for the overwrite flag
func Overwrite(overwrite bool) attribute.KeyValue {
	return attribute.Bool(AttrOverwrite, overwrite)
}

// Size returns an attribute for file size
func Size(size int64) attribute.KeyValue {
	return attribute.Int64(AttrSize, size)
}

// Bytes returns an attribute for bytes transferred
func Bytes(n int64) attribute.KeyValue {
	return attribute.Int64(AttrBytes, n)
}

// Entries returns an attribute for the number of directory entries
func Entries(n int) attribute.KeyValue {
	return attribute.Int(AttrEntries, n)
}

// StartShareSpan starts a span for a share operation.
// This is a convenience function that sets common attributes.
func StartShareSpan(ctx context.Context, operation, share, path string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		Operation(operation),
		Share(share),
		Path(path),
	}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, "share."+operation, trace.WithAttributes(allAttrs...))
}

// StartFSSpan starts a span for an underlying filesystem operation.
func StartFSSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return StartSpan(ctx, "fs."+operation, trace.WithAttributes(attrs...))
}
