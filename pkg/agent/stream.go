package agent

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/surajcodesml/a2a/pkg/a2a"
)

type ToolCall struct {
	Name  string
	Input json.RawMessage
}

// Event is one step of an agent run. Only the last event of a successful
// run is final; its parts are the answer.
type Event struct {
	Author    string
	Parts     []a2a.Part
	ToolCalls []ToolCall
	Final     bool
}

func (e Event) IsFinal() bool {
	return e.Final
}

// Stream is a pull-based sequence of events. Next returns io.EOF once the
// run is over.
type Stream interface {
	Next(ctx context.Context) (Event, error)
	Close() error
}

type RunRequest struct {
	SessionID string
	UserID    string
	Message   *a2a.Message
	Metadata  map[string]any
}

type Runner interface {
	Run(ctx context.Context, req RunRequest) (Stream, error)
}

// StepFunc produces the event for step n, or io.EOF when there are no more.
type StepFunc func(ctx context.Context, n int) (Event, error)

type stepStream struct {
	mu     sync.Mutex
	step   StepFunc
	n      int
	done   bool
	closed bool
}

// NewStepStream turns a step function into a Stream. Steps run lazily, one
// per Next call; after an error or a final event the stream is exhausted.
func NewStepStream(step StepFunc) Stream {
	return &stepStream{step: step}
}

func (s *stepStream) Next(ctx context.Context) (Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done || s.closed {
		return Event{}, io.EOF
	}
	if err := ctx.Err(); err != nil {
		return Event{}, err
	}

	ev, err := s.step(ctx, s.n)
	s.n++
	if err != nil || ev.Final {
		s.done = true
	}
	return ev, err
}

func (s *stepStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// SliceStream replays fixed events, optionally ending with err.
func SliceStream(events []Event, err error) Stream {
	return NewStepStream(func(_ context.Context, n int) (Event, error) {
		if n < len(events) {
			return events[n], nil
		}
		if err != nil {
			return Event{}, err
		}
		return Event{}, io.EOF
	})
}
