package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.False(t, cfg.Enabled)
	assert.Equal(t, "dittoshare", cfg.ServiceName)
	assert.Equal(t, "dev", cfg.ServiceVersion)
	assert.Equal(t, "localhost:4317", cfg.Endpoint)
	assert.True(t, cfg.Insecure)
	assert.Equal(t, 1.0, cfg.SampleRate)
}

func TestInitDisabled(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.Enabled = false

	shutdown, err := Init(ctx, cfg)
	require.NoError(t, err)
	require.NotNil(t, shutdown)

	// Should be able to call shutdown without error
	err = shutdown(ctx)
	assert.NoError(t, err)

	// Should not be enabled
	assert.False(t, IsEnabled())
}

func TestTracerReturnsNoOp(t *testing.T) {
	// Reset state
	tracer = nil
	enabled = false

	// Without initialization, should return no-op tracer
	tr := Tracer()
	require.NotNil(t, tr)
}

func TestStartSpan(t *testing.T) {
	ctx := context.Background()

	// Even without initialization, StartSpan should work (no-op)
	newCtx, span := StartSpan(ctx, "test.operation")
	require.NotNil(t, newCtx)
	require.NotNil(t, span)

	// Should be able to end the span
	span.End()
}

func TestRecordError(t *testing.T) {
	ctx := context.Background()

	// Should not panic with nil error
	require.NotPanics(t, func() {
		RecordError(ctx, nil)
	})

	// Should not panic with error
	require.NotPanics(t, func() {
		RecordError(ctx, errors.New("test error"))
	})
}

func TestSetAttributes(t *testing.T) {
	ctx := context.Background()

	// Should not panic
	require.NotPanics(t, func() {
		SetAttributes(ctx, ClientIP("192.168.1.1"))
	})
}

func TestTraceID(t *testing.T) {
	ctx := context.Background()

	// Without active span, should return empty string
	traceID := TraceID(ctx)
	assert.Equal(t, "", traceID)
}

func TestAttributeHelpers(t *testing.T) {
	t.Run("ClientIP", func(t *testing.T) {
		attr := ClientIP("192.168.1.100")
		assert.Equal(t, AttrClientIP, string(attr.Key))
		assert.Equal(t, "192.168.1.100", attr.Value.AsString())
	})

	t.Run("ClientAddr", func(t *testing.T) {
		attr := ClientAddr("192.168.1.100:12345")
		assert.Equal(t, AttrClientAddr, string(attr.Key))
		assert.Equal(t, "192.168.1.100:12345", attr.Value.AsString())
	})

	t.Run("HTTPMethod", func(t *testing.T) {
		attr := HTTPMethod("PUT")
		assert.Equal(t, AttrHTTPMethod, string(attr.Key))
		assert.Equal(t, "PUT", attr.Value.AsString())
	})

	t.Run("HTTPStatus", func(t *testing.T) {
		attr := HTTPStatus(201)
		assert.Equal(t, AttrHTTPStatus, string(attr.Key))
		assert.Equal(t, int64(201), attr.Value.AsInt64())
	})

	t.Run("RequestID", func(t *testing.T) {
		attr := RequestID("req-42")
		assert.Equal(t, AttrRequestID, string(attr.Key))
		assert.Equal(t, "req-42", attr.Value.AsString())
	})

	t.Run("Share", func(t *testing.T) {
		attr := Share("public")
		assert.Equal(t, AttrShare, string(attr.Key))
		assert.Equal(t, "public", attr.Value.AsString())
	})

	t.Run("Path", func(t *testing.T) {
		attr := Path("docs/readme.txt")
		assert.Equal(t, AttrPath, string(attr.Key))
		assert.Equal(t, "docs/readme.txt", attr.Value.AsString())
	})

	t.Run("Operation", func(t *testing.T) {
		attr := Operation("upload")
		assert.Equal(t, AttrOperation, string(attr.Key))
		assert.Equal(t, "upload", attr.Value.AsString())
	})

	t.Run("Dest", func(t *testing.T) {
		attr := Dest("/archive/2024/report.pdf")
		assert.Equal(t, AttrDest, string(attr.Key))
		assert.Equal(t, "/archive/2024/report.pdf", attr.Value.AsString())
	})

	t.Run("Overwrite", func(t *testing.T) {
		attr := Overwrite(true)
		assert.Equal(t, AttrOverwrite, string(attr.Key))
		assert.True(t, attr.Value.AsBool())
	})

	t.Run("Size", func(t *testing.T) {
		attr := Size(1048576)
		assert.Equal(t, AttrSize, string(attr.Key))
		assert.Equal(t, int64(1048576), attr.Value.AsInt64())
	})

	t.Run("Bytes", func(t *testing.T) {
		attr := Bytes(4096)
		assert.Equal(t, AttrBytes, string(attr.Key))
		assert.Equal(t, int64(4096), attr.Value.AsInt64())
	})

	t.Run("Entries", func(t *testing.T) {
		attr := Entries(12)
		assert.Equal(t, AttrEntries, string(attr.Key))
		assert.Equal(t, int64(12), attr.Value.AsInt64())
	})
}

func TestStartShareSpan(t *testing.T) {
	ctx := context.Background()

	newCtx, span := StartShareSpan(ctx, "download", "public", "docs/readme.txt")
	require.NotNil(t, newCtx)
	require.NotNil(t, span)
	span.End()

	// With empty path (share root)
	newCtx2, span2 := StartShareSpan(ctx, "list", "public", "")
	require.NotNil(t, newCtx2)
	require.NotNil(t, span2)
	span2.End()

	// With additional attributes
	newCtx3, span3 := StartShareSpan(ctx, "move", "public", "a.txt", Dest("/archive/a.txt"), Overwrite(false))
	require.NotNil(t, newCtx3)
	require.NotNil(t, span3)
	span3.End()
}

func TestStartFSSpan(t *testing.T) {
	ctx := context.Background()

	newCtx, span := StartFSSpan(ctx, "resolve")
	require.NotNil(t, newCtx)
	require.NotNil(t, span)
	span.End()

	// With additional attributes
	newCtx2, span2 := StartFSSpan(ctx, "copy", Path("src/dir"), Bytes(1024))
	require.NotNil(t, newCtx2)
	require.NotNil(t, span2)
	span2.End()
}
