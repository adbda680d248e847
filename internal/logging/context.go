package logging

import (
	"context"

	"github.com/sirupsen/logrus"
)

type correlationKey struct{}

// WithCorrelationID stores a request correlation ID in ctx.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationID returns the correlation ID stored in ctx, or "".
func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}

// Entry returns a log entry carrying the correlation ID of ctx, if any.
func Entry(logger *logrus.Logger, ctx context.Context) *logrus.Entry {
	entry := logrus.NewEntry(logger)
	if id := CorrelationID(ctx); id != "" {
		entry = entry.WithField("correlation_id", id)
	}
	return entry
}
