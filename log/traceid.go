package log

import (
	"context"

	"github.com/google/uuid"
)

// WithTraceID returns a copy of ctx carrying a new random trace ID.
func WithTraceID(ctx context.Context) context.Context {
	return context.WithValue(ctx, TraceIDKey, uuid.NewString())
}

// TraceID returns the trace ID stored in ctx or an empty string.
func TraceID(ctx context.Context) string {
	id, _ := ctx.Value(TraceIDKey).(string)
	return id
}
