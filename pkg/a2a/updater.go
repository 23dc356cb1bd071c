package a2a

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

var ErrNoArtifact = errors.New("a2a: task completed without an artifact")

// TaskUpdater is the single writer for one task. It applies transitions to
// the store and publishes each one, in order, to the event queue. The
// artifact is held back until Complete so a failed task never carries one.
type TaskUpdater struct {
	store     *TaskStore
	queue     *EventQueue
	taskID    string
	contextID string

	mu        sync.Mutex
	pending   []Part
	name      string
	submitted bool
	done      bool
}

func NewTaskUpdater(store *TaskStore, queue *EventQueue, taskID, contextID string) *TaskUpdater {
	return &TaskUpdater{
		store:     store,
		queue:     queue,
		taskID:    taskID,
		contextID: contextID,
	}
}

func (u *TaskUpdater) TaskID() string    { return u.taskID }
func (u *TaskUpdater) ContextID() string { return u.contextID }

// Submit creates the task. It fails with ErrTaskExists for a known id.
func (u *TaskUpdater) Submit(_ context.Context, initial *Message) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	task := &Task{ID: u.taskID, ContextID: u.contextID}
	if initial != nil {
		m := *initial
		m.TaskID, m.ContextID = u.taskID, u.contextID
		task.History = []Message{m}
	}
	if err := u.store.Create(task); err != nil {
		return err
	}
	u.submitted = true
	created, err := u.store.Get(u.taskID)
	if err != nil {
		return err
	}
	return u.publishStatus(created.Status, false)
}

// Attach binds the updater to a task that already exists in the store, for
// executors continuing a task rather than submitting one.
func (u *TaskUpdater) Attach() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	task, err := u.store.Get(u.taskID)
	if err != nil {
		return err
	}
	u.submitted = true
	u.done = task.Status.State.Terminal()
	return nil
}

func (u *TaskUpdater) Submitted() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.submitted
}

func (u *TaskUpdater) Done() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.done
}

func (u *TaskUpdater) StartWork(ctx context.Context) error {
	return u.UpdateStatus(ctx, TaskStateWorking, nil)
}

// UpdateStatus moves the task to state with an optional agent message made of
// parts. Terminal states must go through Complete or Fail.
func (u *TaskUpdater) UpdateStatus(_ context.Context, state TaskState, parts []Part) error {
	if state.Terminal() {
		return fmt.Errorf("a2a: use Complete or Fail for terminal state %q", state)
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.done {
		return &TransitionError{TaskID: u.taskID, From: TaskStateCompleted, To: state}
	}
	return u.transition(state, parts, false)
}

// AddArtifact buffers parts for the artifact emitted by Complete.
func (u *TaskUpdater) AddArtifact(name string, parts ...Part) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.name == "" {
		u.name = name
	}
	u.pending = append(u.pending, parts...)
}

// Complete emits the single buffered artifact followed by the completed
// status. It is an error to complete without artifact parts.
func (u *TaskUpdater) Complete(_ context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.done {
		return &TransitionError{TaskID: u.taskID, From: TaskStateCompleted, To: TaskStateCompleted}
	}
	if len(u.pending) == 0 {
		return ErrNoArtifact
	}

	artifact := Artifact{ArtifactID: uuid.NewString(), Name: u.name, Parts: u.pending}
	if err := u.store.AddArtifact(u.taskID, artifact); err != nil {
		return err
	}
	if err := u.queue.Enqueue(Event{
		Kind:      EventKindArtifact,
		TaskID:    u.taskID,
		ContextID: u.contextID,
		Artifact:  &artifact,
	}); err != nil {
		return err
	}
	u.pending = nil
	return u.transition(TaskStateCompleted, nil, true)
}

// Fail drops any buffered artifact and terminates the task with reason as a
// text part of its status message.
func (u *TaskUpdater) Fail(_ context.Context, reason string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.done {
		return &TransitionError{TaskID: u.taskID, From: TaskStateFailed, To: TaskStateFailed}
	}
	u.pending = nil
	if reason == "" {
		reason = "task failed"
	}
	return u.transition(TaskStateFailed, []Part{TextPart(reason)}, true)
}

func (u *TaskUpdater) transition(state TaskState, parts []Part, final bool) error {
	var msg *Message
	if len(parts) > 0 {
		msg = &Message{
			Role:      RoleAgent,
			MessageID: uuid.NewString(),
			Parts:     parts,
			TaskID:    u.taskID,
			ContextID: u.contextID,
		}
	}
	task, err := u.store.Transition(u.taskID, state, msg)
	if err != nil {
		return err
	}
	if final {
		u.done = true
	}
	return u.publishStatus(task.Status, final)
}

func (u *TaskUpdater) publishStatus(status TaskStatus, final bool) error {
	return u.queue.Enqueue(Event{
		Kind:      EventKindStatus,
		TaskID:    u.taskID,
		ContextID: u.contextID,
		Status:    &status,
		Final:     final,
	})
}
