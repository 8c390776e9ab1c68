package logging

import "context"

// CorrelationIDField is the structured field name used for correlation ids.
const CorrelationIDField = "correlation_id"

type correlationKey struct{}

// WithCorrelationID returns a child context carrying the correlation id of the
// message being processed. The value is scoped to the callback's context and is
// gone once the callback returns.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationIDFromContext returns the correlation id stored by
// WithCorrelationID, or "" when there is none.
func CorrelationIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}

// FromContext enriches logger with the correlation id found in ctx.
func FromContext(ctx context.Context, logger ServiceLogger) ServiceLogger {
	id := CorrelationIDFromContext(ctx)
	if id == "" {
		return logger
	}
	return logger.With(LogFields{CorrelationIDField: id})
}
