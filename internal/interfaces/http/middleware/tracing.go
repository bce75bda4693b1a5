package middleware

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Tracing wraps otelgin. Spans are named "METHOD /route/:pattern"; otelgin
// marks 5xx responses as failed.
func Tracing(serviceName string, enabled bool) gin.HandlerFunc {
	if !enabled {
		return func(c *gin.Context) { c.Next() }
	}
	return otelgin.Middleware(serviceName,
		otelgin.WithSpanNameFormatter(func(c *gin.Context) string {
			route := c.FullPath()
			if route == "" {
				route = "unmatched"
			}
			return c.Request.Method + " " + route
		}),
		otelgin.WithGinFilter(func(c *gin.Context) bool {
			// no spans for scrapes and health checks
			switch c.Request.URL.Path {
			case "/metrics", "/health", "/ready":
				return false
			}
			return true
		}),
	)
}

// TraceActor adds the request id and the authenticated caller to the active
// span. It must run after Authenticate.
func TraceActor() gin.HandlerFunc {
	return func(c *gin.Context) {
		span := trace.SpanFromContext(c.Request.Context())
		if span.IsRecording() {
			if id := c.GetString(RequestIDKey); id != "" {
				span.SetAttributes(attribute.String("request_id", id))
			}
			if actor, ok := ActorFrom(c); ok {
				span.SetAttributes(
					attribute.String("actor.kind", string(actor.Kind)),
					attribute.String("actor.store_id", actor.StoreID.String()),
				)
			}
		}
		c.Next()
	}
}
