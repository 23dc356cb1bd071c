package a2a

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

// funcExecutor runs fn as the task body and rejects every cancel.
type funcExecutor struct {
	fn          func(ctx context.Context, rc *RequestContext, u *TaskUpdater) error
	cancelCalls int
}

func (e *funcExecutor) Execute(ctx context.Context, rc *RequestContext, u *TaskUpdater) error {
	return e.fn(ctx, rc, u)
}

func (e *funcExecutor) Cancel(context.Context, *RequestContext) error {
	e.cancelCalls++
	return ErrUnsupportedOperation
}

func echoExecutor() *funcExecutor {
	return &funcExecutor{fn: func(ctx context.Context, rc *RequestContext, u *TaskUpdater) error {
		if err := u.Submit(ctx, rc.Message); err != nil {
			return err
		}
		if err := u.StartWork(ctx); err != nil {
			return err
		}
		if err := u.UpdateStatus(ctx, TaskStateWorking, []Part{TextPart("working on it")}); err != nil {
			return err
		}
		u.AddArtifact("echo", TextPart("echo: "+ExtractText(*rc.Message)))
		return u.Complete(ctx)
	}}
}

func failingExecutor(reason string) *funcExecutor {
	return &funcExecutor{fn: func(ctx context.Context, rc *RequestContext, u *TaskUpdater) error {
		if err := u.Submit(ctx, rc.Message); err != nil {
			return err
		}
		u.StartWork(ctx)
		return errors.New(reason)
	}}
}

type fakeTools struct{}

func (fakeTools) HasTool(name string) bool { return name == "echo" || name == "boom" }

func (fakeTools) CallTool(_ context.Context, name string, args json.RawMessage) (string, error) {
	if name == "boom" {
		return "", errors.New("tool exploded")
	}
	return string(args), nil
}

func testCard(t *testing.T) *PublishedCard {
	t.Helper()
	card, err := PublishCard(AgentCard{
		Name:               "TestAgent",
		Description:        "A test agent",
		URL:                "http://localhost:10002/",
		Version:            "1.0.0",
		DefaultInputModes:  []string{"text/plain"},
		DefaultOutputModes: []string{"text/plain"},
		Capabilities:       Capabilities{Streaming: true},
		Skills: []Skill{{
			ID:          "pay402_and_fetch",
			Name:        "Pay and fetch",
			Description: "Pays an x402 challenge",
			Tags:        []string{"payments", "x402"},
		}},
	})
	if err != nil {
		t.Fatalf("PublishCard: %v", err)
	}
	return card
}

func testHandler(t *testing.T, exec AgentExecutor) *Handler {
	t.Helper()
	return NewHandler(HandlerConfig{
		Card:     testCard(t),
		Executor: exec,
		Tools:    fakeTools{},
		Actor:    "test",
	})
}

func textMessage(text string) Message {
	return Message{Role: RoleUser, Parts: []Part{TextPart(text)}}
}
