package a2a

import (
	"sort"
	"sync"
	"time"

	"github.com/surajcodesml/a2a/pkg/keyed"
	"github.com/surajcodesml/a2a/pkg/telemetry"
)

// TaskStore holds tasks in memory. Every mutation of a task runs under that
// task's own lock, so transitions on one id never interleave while other ids
// proceed untouched. Callers only ever see copies.
type TaskStore struct {
	mu    sync.RWMutex
	tasks map[string]*Task
	locks *keyed.Mutex[string]
	now   func() time.Time
}

func NewTaskStore() *TaskStore {
	return &TaskStore{
		tasks: make(map[string]*Task),
		locks: keyed.NewMutex[string](),
		now:   time.Now,
	}
}

func (s *TaskStore) lookup(id string) (*Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	return t, ok
}

// Create registers a new task in the submitted state. A known id is rejected.
func (s *TaskStore) Create(task *Task) error {
	if task.ID == "" {
		return &PreconditionError{Field: "task id"}
	}
	unlock := s.locks.Lock(task.ID)
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[task.ID]; ok {
		return ErrTaskExists
	}

	t := task.Clone()
	t.Kind = "task"
	t.Status.State = TaskStateSubmitted
	if t.Status.Timestamp.IsZero() {
		t.Status.Timestamp = s.now()
	}
	s.tasks[t.ID] = t

	telemetry.Metrics.TaskTransitionsTotal.WithLabelValues(string(TaskStateSubmitted)).Inc()
	telemetry.Metrics.ActiveTasks.Inc()
	return nil
}

func (s *TaskStore) Exists(id string) bool {
	_, ok := s.lookup(id)
	return ok
}

func (s *TaskStore) Get(id string) (*Task, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	t, ok := s.lookup(id)
	if !ok {
		return nil, ErrTaskNotFound
	}
	return t.Clone(), nil
}

// Transition moves a task to state, replacing its status message. It
// enforces submitted < working < {completed, failed}.
func (s *TaskStore) Transition(id string, state TaskState, msg *Message) (*Task, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	t, ok := s.lookup(id)
	if !ok {
		return nil, ErrTaskNotFound
	}
	from := t.Status.State
	if !from.CanTransition(state) {
		return nil, &TransitionError{TaskID: id, From: from, To: state}
	}

	t.Status = TaskStatus{State: state, Timestamp: s.now()}
	if msg != nil {
		m := cloneMessage(*msg)
		t.Status.Message = &m
		t.History = append(t.History, m)
	}

	if from != state {
		telemetry.Metrics.TaskTransitionsTotal.WithLabelValues(string(state)).Inc()
	}
	if state.Terminal() {
		telemetry.Metrics.ActiveTasks.Dec()
	}
	return t.Clone(), nil
}

// AddArtifact attaches an artifact to a task that has not yet terminated.
func (s *TaskStore) AddArtifact(id string, a Artifact) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	t, ok := s.lookup(id)
	if !ok {
		return ErrTaskNotFound
	}
	if t.Status.State.Terminal() {
		return &TransitionError{TaskID: id, From: t.Status.State, To: t.Status.State}
	}
	a.Parts = append([]Part(nil), a.Parts...)
	t.Artifacts = append(t.Artifacts, a)
	return nil
}

// List returns copies of all tasks, oldest status first.
func (s *TaskStore) List() []*Task {
	s.mu.RLock()
	ids := make([]string, 0, len(s.tasks))
	for id := range s.tasks {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	result := make([]*Task, 0, len(ids))
	for _, id := range ids {
		if t, err := s.Get(id); err == nil {
			result = append(result, t)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Status.Timestamp.Before(result[j].Status.Timestamp)
	})
	return result
}

// Evict drops terminal tasks whose final status is older than retention and
// returns how many were removed. Tasks still in flight are never evicted.
func (s *TaskStore) Evict(retention time.Duration) int {
	cutoff := s.now().Add(-retention)

	s.mu.RLock()
	ids := make([]string, 0, len(s.tasks))
	for id := range s.tasks {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	removed := 0
	for _, id := range ids {
		unlock := s.locks.Lock(id)
		t, ok := s.lookup(id)
		if ok && t.Status.State.Terminal() && t.Status.Timestamp.Before(cutoff) {
			s.mu.Lock()
			delete(s.tasks, id)
			s.mu.Unlock()
			removed++
		}
		unlock()
	}
	return removed
}

func (s *TaskStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}
