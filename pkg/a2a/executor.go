package a2a

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// RequestContext carries one inbound message and the ids it correlates to.
// Task is the stored task when the message continues one, nil otherwise.
type RequestContext struct {
	TaskID    string
	ContextID string
	Message   *Message
	Task      *Task
	Metadata  map[string]any
}

// Validate checks the correlation fields every execution needs.
func (rc *RequestContext) Validate() error {
	switch {
	case rc == nil:
		return &PreconditionError{Field: "request"}
	case rc.TaskID == "":
		return &PreconditionError{Field: "task id"}
	case rc.ContextID == "":
		return &PreconditionError{Field: "context id"}
	case rc.Message == nil || len(rc.Message.Parts) == 0:
		return &PreconditionError{Field: "message"}
	}
	for i, p := range rc.Message.Parts {
		if err := p.Validate(); err != nil {
			return &PreconditionError{Field: fmt.Sprintf("message part %d", i), Reason: strings.TrimPrefix(err.Error(), "a2a: ")}
		}
	}
	return nil
}

// IdempotencyHeader names the caller's idempotency key on inbound requests.
// A key in the message metadata takes precedence over the header.
const IdempotencyHeader = "Idempotency-Key"

const metadataIdempotencyKey = "idempotencyKey"

type idempotencyCtxKey struct{}

func WithIdempotencyKey(ctx context.Context, key string) context.Context {
	if key == "" {
		return ctx
	}
	return context.WithValue(ctx, idempotencyCtxKey{}, key)
}

func IdempotencyKeyFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(idempotencyCtxKey{}).(string); ok {
		return v
	}
	return ""
}

// AgentExecutor runs the work behind a task, reporting progress only through
// the updater.
type AgentExecutor interface {
	Execute(ctx context.Context, rc *RequestContext, u *TaskUpdater) error
	Cancel(ctx context.Context, rc *RequestContext) error
}

// ToolCaller dispatches a named tool directly, bypassing the task lifecycle.
type ToolCaller interface {
	HasTool(name string) bool
	CallTool(ctx context.Context, name string, args json.RawMessage) (string, error)
}
