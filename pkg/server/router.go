package server

import (
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/marmos91/dittoshare/internal/logger"
	"github.com/marmos91/dittoshare/internal/telemetry"
	"github.com/marmos91/dittoshare/pkg/fileops"
	"github.com/marmos91/dittoshare/pkg/metrics"
	"github.com/marmos91/dittoshare/pkg/registry"
)

// RouterOptions carries the knobs the router needs beyond its
// collaborators.
type RouterOptions struct {
	// Metrics receives per-request observations. Nil disables.
	Metrics metrics.HTTPMetrics

	// MetricsPath mounts the Prometheus scrape endpoint when non-empty.
	MetricsPath string

	// MaxUploadSize caps PUT and form upload bodies in bytes.
	// Zero means unlimited.
	MaxUploadSize int64
}

// NewRouter creates and configures the chi router with all middleware
// and the share dispatch.
//
// The router is configured with:
//   - Request ID middleware for request tracking
//   - Real IP extraction for proper client identification
//   - Custom request logging using the internal logger
//   - Panic recovery to prevent server crashes
//
// Routes:
//   - GET / - index of visible shares
//   - /{share} and /{share}/* - share dispatch (custom handlers first,
//     then registry lookup, path resolution, and the file operation
//     selected by method and query)
//   - GET <MetricsPath> - Prometheus scrape endpoint when configured
func NewRouter(reg *registry.Registry, ops *fileops.Operations, opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	// Middleware stack - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestTracer)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	h := &shareHandler{
		reg:           reg,
		ops:           ops,
		metrics:       opts.Metrics,
		maxUploadSize: opts.MaxUploadSize,
	}

	if opts.MetricsPath != "" {
		r.Handle(opts.MetricsPath, metrics.Handler())
	}

	r.Get("/", h.index)
	r.Head("/", h.index)
	r.HandleFunc("/{share}", h.dispatch)
	r.HandleFunc("/{share}/*", h.dispatch)

	return r
}

// requestTracer opens a span covering the whole request and records
// the final status code when the handler returns. Per-operation spans
// nest under it.
func requestTracer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := telemetry.StartSpan(r.Context(), telemetry.SpanRequest)
		defer span.End()

		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			telemetry.SetAttributes(ctx, telemetry.ClientIP(host))
		} else {
			telemetry.SetAttributes(ctx, telemetry.ClientAddr(r.RemoteAddr))
		}
		telemetry.SetAttributes(ctx,
			telemetry.HTTPMethod(r.Method),
			telemetry.RequestID(middleware.GetReqID(ctx)),
		)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		telemetry.SetAttributes(ctx, telemetry.HTTPStatus(ww.Status()))
	})
}

// requestLogger is a custom middleware that logs requests using the
// internal logger.
//
// It logs:
//   - Request start (DEBUG level): method, path, client
//   - Request completion (INFO level): status, bytes, duration
//
// The request fields travel in a LogContext so deeper layers log with
// the same correlation fields.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		lc := logger.NewLogContext(r.RemoteAddr).WithRequest(requestID, r.Method, r.URL.Path)
		ctx := logger.WithContext(r.Context(), lc)
		r = r.WithContext(ctx)

		logger.DebugCtx(ctx, "request started")

		// Wrap response writer to capture status code
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		fields := []any{
			logger.KeyStatus, ww.Status(),
			logger.KeyBytes, ww.BytesWritten(),
			logger.KeyDuration, time.Since(start).Milliseconds(),
		}
		if traceID := telemetry.TraceID(ctx); traceID != "" {
			fields = append(fields, "trace_id", traceID)
		}
		logger.InfoCtx(ctx, "request completed", fields...)
	})
}
