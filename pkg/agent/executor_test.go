package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/surajcodesml/a2a/pkg/a2a"
)

func TestExecuteCompletesWithSingleArtifact(t *testing.T) {
	runner := &scriptedRunner{events: []Event{
		{Parts: []a2a.Part{a2a.TextPart("looking it up")}},
		{ToolCalls: []ToolCall{{Name: "pay402_and_fetch"}}, Parts: []a2a.Part{a2a.TextPart("calling tool")}},
		{Parts: []a2a.Part{a2a.TextPart("unlocked-body")}, Final: true},
	}}
	sessions := newFakeSessions()
	e := NewExecutor(ExecutorConfig{Runner: runner, Sessions: sessions, AppName: PayerAppName, UserID: PayerUserID})
	h := newHarness("task-1", "ctx-1")

	rc := &a2a.RequestContext{TaskID: "task-1", ContextID: "ctx-1", Message: textMessage("hi")}
	if err := e.Execute(context.Background(), rc, h.u); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	task, err := h.store.Get("task-1")
	if err != nil {
		t.Fatal(err)
	}
	if task.Status.State != a2a.TaskStateCompleted {
		t.Fatalf("state = %s, want completed", task.Status.State)
	}
	if len(task.Artifacts) != 1 {
		t.Fatalf("artifacts = %d, want 1", len(task.Artifacts))
	}
	if text, _ := a2a.FirstText(task.Artifacts[0].Parts); text != "unlocked-body" {
		t.Errorf("artifact text = %q", text)
	}

	var kinds []string
	for _, ev := range h.events() {
		switch {
		case ev.Kind == a2a.EventKindArtifact:
			kinds = append(kinds, "artifact")
		case ev.Status != nil:
			kinds = append(kinds, string(ev.Status.State))
		}
	}
	want := []string{"submitted", "working", "working", "artifact", "completed"}
	if len(kinds) != len(want) {
		t.Fatalf("events = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("events = %v, want %v", kinds, want)
		}
	}

	s := sessions.sessions["ctx-1"]
	if s.UserID != PayerUserID || s.AppName != PayerAppName {
		t.Errorf("session = %+v", s)
	}
	if runner.got.SessionID != "ctx-1" || runner.got.UserID != PayerUserID {
		t.Errorf("run request = %+v", runner.got)
	}
}

func TestExecutePreconditions(t *testing.T) {
	runner := &scriptedRunner{}
	sessions := newFakeSessions()
	e := NewExecutor(ExecutorConfig{Runner: runner, Sessions: sessions})

	cases := map[string]*a2a.RequestContext{
		"task id":    {ContextID: "c", Message: textMessage("x")},
		"context id": {TaskID: "t", Message: textMessage("x")},
		"message":    {TaskID: "t", ContextID: "c"},
	}
	for field, rc := range cases {
		h := newHarness(rc.TaskID, rc.ContextID)
		err := e.Execute(context.Background(), rc, h.u)
		var perr *a2a.PreconditionError
		if !errors.As(err, &perr) || perr.Field != field {
			t.Errorf("%s: err = %v", field, err)
		}
		if h.store.Len() != 0 {
			t.Errorf("%s: task created despite failed precondition", field)
		}
	}
	if sessions.calls != 0 {
		t.Error("session store touched before preconditions passed")
	}
}

func TestExecuteStreamErrorFailsTask(t *testing.T) {
	runner := &scriptedRunner{
		events: []Event{{Parts: []a2a.Part{a2a.TextPart("working on it")}}},
		err:    errors.New("relay: timed out waiting for the payment agent"),
	}
	e := NewExecutor(ExecutorConfig{Runner: runner})
	h := newHarness("task-1", "ctx-1")

	rc := &a2a.RequestContext{TaskID: "task-1", ContextID: "ctx-1", Message: textMessage("hi")}
	if err := e.Execute(context.Background(), rc, h.u); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	task, _ := h.store.Get("task-1")
	if task.Status.State != a2a.TaskStateFailed {
		t.Fatalf("state = %s, want failed", task.Status.State)
	}
	if len(task.Artifacts) != 0 {
		t.Errorf("failed task has %d artifacts", len(task.Artifacts))
	}
	reason, _ := a2a.FirstText(task.Status.Message.Parts)
	if reason != "relay: timed out waiting for the payment agent" {
		t.Errorf("reason = %q", reason)
	}
}

func TestExecuteRunRejectionFailsTask(t *testing.T) {
	runner := &scriptedRunner{runErr: errors.New("agent: message does not name a tool")}
	e := NewExecutor(ExecutorConfig{Runner: runner})
	h := newHarness("task-1", "ctx-1")

	rc := &a2a.RequestContext{TaskID: "task-1", ContextID: "ctx-1", Message: textMessage("hi")}
	e.Execute(context.Background(), rc, h.u)

	task, _ := h.store.Get("task-1")
	if task.Status.State != a2a.TaskStateFailed {
		t.Errorf("state = %s, want failed", task.Status.State)
	}
}

func TestExecuteStreamWithoutFinalFails(t *testing.T) {
	runner := &scriptedRunner{events: []Event{{Parts: []a2a.Part{a2a.TextPart("thinking")}}}}
	e := NewExecutor(ExecutorConfig{Runner: runner})
	h := newHarness("task-1", "ctx-1")

	rc := &a2a.RequestContext{TaskID: "task-1", ContextID: "ctx-1", Message: textMessage("hi")}
	e.Execute(context.Background(), rc, h.u)

	task, _ := h.store.Get("task-1")
	if task.Status.State != a2a.TaskStateFailed || len(task.Artifacts) != 0 {
		t.Errorf("task = %s with %d artifacts, want failed with none", task.Status.State, len(task.Artifacts))
	}
}

func TestExecuteReusesSessionPerContext(t *testing.T) {
	sessions := newFakeSessions()
	final := []Event{{Parts: []a2a.Part{a2a.TextPart("ok")}, Final: true}}
	e := NewExecutor(ExecutorConfig{Runner: &scriptedRunner{events: final}, Sessions: sessions, UserID: PayerUserID})

	for _, id := range []string{"t-1", "t-2"} {
		h := newHarness(id, "shared-ctx")
		rc := &a2a.RequestContext{TaskID: id, ContextID: "shared-ctx", Message: textMessage("hi")}
		if err := e.Execute(context.Background(), rc, h.u); err != nil {
			t.Fatal(err)
		}
	}
	if len(sessions.sessions) != 1 || sessions.calls != 2 {
		t.Errorf("sessions = %d after %d calls, want 1 after 2", len(sessions.sessions), sessions.calls)
	}
}

func TestCancelUnsupported(t *testing.T) {
	e := NewExecutor(ExecutorConfig{Runner: &scriptedRunner{}})
	err := e.Cancel(context.Background(), &a2a.RequestContext{TaskID: "t"})
	if !errors.Is(err, a2a.ErrUnsupportedOperation) {
		t.Errorf("Cancel err = %v, want ErrUnsupportedOperation", err)
	}
}
