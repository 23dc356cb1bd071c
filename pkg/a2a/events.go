package a2a

import (
	"context"
	"errors"
	"io"
	"sync"
)

type EventKind string

const (
	EventKindStatus   EventKind = "status-update"
	EventKindArtifact EventKind = "artifact-update"
)

// Event is one observable step of a task: a status change or the artifact.
// Final is set on the terminal status event and nothing follows it.
type Event struct {
	Kind      EventKind   `json:"kind"`
	TaskID    string      `json:"taskId"`
	ContextID string      `json:"contextId"`
	Status    *TaskStatus `json:"status,omitempty"`
	Artifact  *Artifact   `json:"artifact,omitempty"`
	Final     bool        `json:"final"`
}

var ErrQueueClosed = errors.New("a2a: event queue closed")

// EventQueue is an unbounded FIFO of task events with a pull-based reader.
// Writers never block; Next returns io.EOF once the queue is closed and
// drained.
type EventQueue struct {
	mu     sync.Mutex
	events []Event
	closed bool
	err    error
	signal chan struct{}
}

func NewEventQueue() *EventQueue {
	return &EventQueue{signal: make(chan struct{}, 1)}
}

func (q *EventQueue) Enqueue(ev Event) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.events = append(q.events, ev)
	q.mu.Unlock()
	q.notify()
	return nil
}

func (q *EventQueue) Close() {
	q.CloseWithError(nil)
}

// CloseWithError closes the queue; once drained, Next returns err instead of
// io.EOF. A nil err behaves like Close.
func (q *EventQueue) CloseWithError(err error) {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		q.err = err
	}
	q.mu.Unlock()
	q.notify()
}

func (q *EventQueue) notify() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *EventQueue) Next(ctx context.Context) (Event, error) {
	for {
		q.mu.Lock()
		if len(q.events) > 0 {
			ev := q.events[0]
			q.events = q.events[1:]
			q.mu.Unlock()
			return ev, nil
		}
		closed, err := q.closed, q.err
		q.mu.Unlock()
		if closed {
			if err != nil {
				return Event{}, err
			}
			return Event{}, io.EOF
		}

		select {
		case <-ctx.Done():
			return Event{}, ctx.Err()
		case <-q.signal:
		}
	}
}
