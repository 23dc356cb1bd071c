package agent

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/surajcodesml/a2a/pkg/a2a"
	"github.com/surajcodesml/a2a/pkg/agent/tools"
	"github.com/surajcodesml/a2a/pkg/store"
)

type fakeSessions struct {
	mu       sync.Mutex
	sessions map[string]store.Session
	calls    int
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{sessions: make(map[string]store.Session)}
}

func (f *fakeSessions) GetOrCreateSession(_ context.Context, id, appName, userID string) (*store.Session, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if s, ok := f.sessions[id]; ok {
		return &s, false, nil
	}
	s := store.Session{ID: id, AppName: appName, UserID: userID, CreatedAt: time.Now()}
	f.sessions[id] = s
	return &s, true, nil
}

type scriptedRunner struct {
	events []Event
	err    error
	runErr error
	got    RunRequest
}

func (r *scriptedRunner) Run(_ context.Context, req RunRequest) (Stream, error) {
	r.got = req
	if r.runErr != nil {
		return nil, r.runErr
	}
	return SliceStream(r.events, r.err), nil
}

type echoTool struct{}

func (echoTool) Definition() tools.Definition {
	return tools.Definition{
		Name:        "echo",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"text":{"type":"string"}},"required":["text"]}`),
	}
}

func (echoTool) Execute(_ context.Context, input json.RawMessage) (string, error) {
	var in struct{ Text string }
	json.Unmarshal(input, &in)
	return "echo: " + in.Text, nil
}

type brokenTool struct{}

func (brokenTool) Definition() tools.Definition {
	return tools.Definition{Name: "broken"}
}

func (brokenTool) Execute(context.Context, json.RawMessage) (string, error) {
	return "", errors.New("provider unreachable")
}

func textMessage(text string) *a2a.Message {
	return &a2a.Message{Role: a2a.RoleUser, MessageID: "m-1", Parts: []a2a.Part{a2a.TextPart(text)}}
}

// harness runs one Execute against a fresh store and collects its events.
type harness struct {
	store *a2a.TaskStore
	queue *a2a.EventQueue
	u     *a2a.TaskUpdater
}

func newHarness(taskID, contextID string) *harness {
	s := a2a.NewTaskStore()
	q := a2a.NewEventQueue()
	return &harness{store: s, queue: q, u: a2a.NewTaskUpdater(s, q, taskID, contextID)}
}

func (h *harness) events() []a2a.Event {
	h.queue.Close()
	var out []a2a.Event
	for {
		ev, err := h.queue.Next(context.Background())
		if err != nil {
			return out
		}
		out = append(out, ev)
	}
}
