package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"identity-session-plane/internal/events"
)

const instrumentationName = "identity-session-plane/internal/server"

// RequestTelemetry returns middleware that wraps each request in a span,
// records request count and latency, and emits an http_request event on the
// security event stream. Emission is best-effort and asynchronous; if producer
// is nil only the span and metrics are recorded. skipPaths is the set of paths
// to not instrument (e.g. /healthz).
func RequestTelemetry(producer events.Producer, skipPaths map[string]bool) gin.HandlerFunc {
	tracer := otel.Tracer(instrumentationName)
	meter := otel.Meter(instrumentationName)
	requests, _ := meter.Int64Counter("http.server.requests")
	latency, _ := meter.Float64Histogram("http.server.duration", metric.WithUnit("ms"))

	return func(c *gin.Context) {
		if skipPaths[c.Request.URL.Path] {
			c.Next()
			return
		}

		method, path := c.Request.Method, c.Request.URL.Path
		ctx, span := tracer.Start(c.Request.Context(), method+" "+c.FullPath(),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", method),
				attribute.String("url.path", path),
			),
		)
		c.Request = c.Request.WithContext(ctx)

		start := time.Now()
		c.Next()
		elapsed := time.Since(start)
		status := c.Writer.Status()

		attrs := metric.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("http.route", c.FullPath()),
			attribute.Int("http.response.status_code", status),
		)
		requests.Add(ctx, 1, attrs)
		latency.Record(ctx, float64(elapsed.Milliseconds()), attrs)
		span.SetAttributes(attribute.Int("http.response.status_code", status))
		span.End()

		if producer == nil {
			return
		}
		userID, _ := GetUserID(c.Request.Context())
		sessionID, _ := GetSessionID(c.Request.Context())
		event := events.New(events.TypeHTTPRequest, userID, sessionID)
		event.Metadata = map[string]string{
			"method":      method,
			"path":        path,
			"status":      strconv.Itoa(status),
			"duration_ms": strconv.FormatInt(elapsed.Milliseconds(), 10),
			"client_ip":   c.ClientIP(),
		}
		events.EmitAsync(producer, c.Request.Context(), event)
	}
}
