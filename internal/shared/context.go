package shared

import "context"

type traceContextKey struct{}

// ContextWithTraceID stores the run trace identifier in context.
func ContextWithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceContextKey{}, traceID)
}

// TraceIDFromContext extracts the run trace identifier from context.
func TraceIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(traceContextKey{}).(string)
	return id
}
