package paywall

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindTimeout Kind = iota + 1
	KindUnreachable
	KindProvider
)

var (
	ErrTimeout     = errors.New("paywall: fetch timed out")
	ErrUnreachable = errors.New("paywall: resource unreachable")
	ErrProvider    = errors.New("paywall: provider error")

	ErrBodyTooLarge = errors.New("paywall: response body exceeds limit")
)

// Error classifies a failed fetch. Status is set for KindProvider only.
type Error struct {
	Kind   Kind
	URL    string
	Status int
	Body   string
	Reason string
	Err    error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindProvider:
		if e.Reason != "" {
			return fmt.Sprintf("paywall: provider returned HTTP %d for %s: %s", e.Status, e.URL, e.Reason)
		}
		return fmt.Sprintf("paywall: provider returned HTTP %d for %s", e.Status, e.URL)
	case KindTimeout:
		return fmt.Sprintf("paywall: fetching %s timed out: %v", e.URL, e.Err)
	default:
		return fmt.Sprintf("paywall: fetching %s: %v", e.URL, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	switch e.Kind {
	case KindTimeout:
		return target == ErrTimeout
	case KindUnreachable:
		return target == ErrUnreachable
	case KindProvider:
		return target == ErrProvider
	}
	return false
}
