package logger

import (
	"context"

	"github.com/erp/returns/internal/domain/returns"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type contextKey int

const (
	loggerKey contextKey = iota
	requestIDKey
	actorKey
)

// WithContext returns a new context with the logger attached
func WithContext(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext retrieves the logger from context, or a no-op logger
func FromContext(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(loggerKey).(*zap.Logger); ok {
		return l
	}
	return zap.NewNop()
}

// WithRequestID stores the request id and returns the enriched logger
func WithRequestID(ctx context.Context, logger *zap.Logger, requestID string) (context.Context, *zap.Logger) {
	ctx = context.WithValue(ctx, requestIDKey, requestID)
	l := logger.With(zap.String("request_id", requestID))
	return WithContext(ctx, l), l
}

// RequestID returns the request id stored in ctx
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithActor stores the authenticated actor and returns the enriched logger
func WithActor(ctx context.Context, logger *zap.Logger, actor returns.Actor) (context.Context, *zap.Logger) {
	ctx = context.WithValue(ctx, actorKey, actor)
	l := logger.With(ActorFields(actor)...)
	return WithContext(ctx, l), l
}

// ActorFromContext returns the actor stored in ctx
func ActorFromContext(ctx context.Context) (returns.Actor, bool) {
	a, ok := ctx.Value(actorKey).(returns.Actor)
	return a, ok
}

// ActorFields returns the log fields identifying an actor
func ActorFields(a returns.Actor) []zap.Field {
	fields := []zap.Field{zap.String("actor_kind", string(a.Kind))}
	if a.StoreID != uuid.Nil {
		fields = append(fields, zap.String("store_id", a.StoreID.String()))
	}
	if a.CustomerID != uuid.Nil {
		fields = append(fields, zap.String("customer_id", a.CustomerID.String()))
	}
	if a.UserID != uuid.Nil {
		fields = append(fields, zap.String("user_id", a.UserID.String()))
	}
	return fields
}

// TraceFields returns trace_id and span_id of the active span, if any
func TraceFields(ctx context.Context) []zap.Field {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return nil
	}
	return []zap.Field{
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	}
}

// L returns the context logger with trace correlation added.
// Usage: logger.L(ctx).Info("message", zap.String("key", "value"))
func L(ctx context.Context) *zap.Logger {
	l := FromContext(ctx)
	if fields := TraceFields(ctx); fields != nil {
		l = l.With(fields...)
	}
	return l
}
