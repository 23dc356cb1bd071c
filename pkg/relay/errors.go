package relay

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindRelayTimeout Kind = iota + 1
	KindRemotePaymentFailed
	KindMalformedReply
)

func (k Kind) String() string {
	switch k {
	case KindRelayTimeout:
		return "relay_timeout"
	case KindRemotePaymentFailed:
		return "remote_payment_failed"
	case KindMalformedReply:
		return "malformed_reply"
	default:
		return "unknown"
	}
}

var (
	ErrRelayTimeout        = errors.New("relay: timed out waiting for the payment agent")
	ErrRemotePaymentFailed = errors.New("relay: remote payment failed")
	ErrMalformedReply      = errors.New("relay: malformed reply from the payment agent")
)

// Error is a classified relay failure. errors.Is matches it against the
// sentinel for its Kind.
type Error struct {
	Kind   Kind
	TaskID string
	// Reason is the remote agent's explanation, or the raw reply for a
	// malformed one.
	Reason string
	Err    error
}

func (e *Error) Error() string {
	msg := e.sentinel().Error()
	if e.Reason != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Reason)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	return target == e.sentinel()
}

func (e *Error) sentinel() error {
	switch e.Kind {
	case KindRelayTimeout:
		return ErrRelayTimeout
	case KindRemotePaymentFailed:
		return ErrRemotePaymentFailed
	default:
		return ErrMalformedReply
	}
}
