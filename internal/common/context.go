package common

import (
	"context"

	"github.com/google/uuid"
)

// Context keys for storing values in context
type contextKey string

const (
	ContextKeyRunID      contextKey = "run_id"
	ContextKeySourceName contextKey = "source_name"
)

// WithRunID adds the batch run ID to the context
func WithRunID(ctx context.Context, runID uuid.UUID) context.Context {
	return context.WithValue(ctx, ContextKeyRunID, runID)
}

// RunIDFromContext extracts the batch run ID from context
func RunIDFromContext(ctx context.Context) uuid.UUID {
	if runID, ok := ctx.Value(ContextKeyRunID).(uuid.UUID); ok {
		return runID
	}
	return uuid.Nil
}

// WithSourceName adds the archive entry name being processed to the context
func WithSourceName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, ContextKeySourceName, name)
}

// SourceNameFromContext extracts the archive entry name from context
func SourceNameFromContext(ctx context.Context) string {
	if name, ok := ctx.Value(ContextKeySourceName).(string); ok {
		return name
	}
	return ""
}
