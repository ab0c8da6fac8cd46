package logging

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// ctxKey is an unexported type for context keys defined in this package.
type ctxKey string

const (
	loggerKey  ctxKey = "logger"
	traceIDKey ctxKey = "traceID"
)

// WithLogger stores the provided logger on the context.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	if ctx == nil || logger == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext returns the scoped logger or falls back to slog.Default().
func FromContext(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return slog.Default()
	}
	if logger, ok := ctx.Value(loggerKey).(*slog.Logger); ok && logger != nil {
		return logger
	}
	return slog.Default()
}

// WithTraceID stores a trace identifier on the context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	if ctx == nil || traceID == "" {
		return ctx
	}
	return context.WithValue(ctx, traceIDKey, traceID)
}

// TraceIDFromContext retrieves the trace identifier from the context.
func TraceIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if traceID, ok := ctx.Value(traceIDKey).(string); ok {
		return traceID
	}
	return ""
}

// ForEvent derives a context carrying a logger enriched with a fresh trace id
// and the inbound chat event's coordinates. Every handler dispatch starts here
// so worker completions can be correlated with the event that scheduled them.
func ForEvent(ctx context.Context, base *slog.Logger, kind string, userID int64) context.Context {
	if base == nil {
		base = slog.Default()
	}

	traceID := uuid.NewString()
	logger := base.With(
		slog.String("trace_id", traceID),
		slog.String("event", kind),
		slog.Int64("user_id", userID),
	)

	ctx = WithTraceID(ctx, traceID)
	return WithLogger(ctx, logger)
}
