package tools

import (
	"context"

	"github.com/surajcodesml/a2a/pkg/a2a"
)

type contextKey int

const (
	ctxKeyTaskID contextKey = iota
	ctxKeyContextID
)

func WithTaskInfo(ctx context.Context, taskID, contextID string) context.Context {
	ctx = context.WithValue(ctx, ctxKeyTaskID, taskID)
	ctx = context.WithValue(ctx, ctxKeyContextID, contextID)
	return ctx
}

func TaskIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyTaskID).(string); ok {
		return v
	}
	return ""
}

func ContextIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyContextID).(string); ok {
		return v
	}
	return ""
}

// WithIdempotencyKey carries the caller's idempotency key to payment tools
// whose arguments do not name one. It shares its slot with the key the A2A
// handler lifts from the Idempotency-Key header.
func WithIdempotencyKey(ctx context.Context, key string) context.Context {
	return a2a.WithIdempotencyKey(ctx, key)
}

func IdempotencyKeyFromContext(ctx context.Context) string {
	return a2a.IdempotencyKeyFromContext(ctx)
}
