package payment

import "errors"

var (
	ErrUnknownIdentity        = errors.New("payment: unknown payer identity")
	ErrUnsupportedRequirement = errors.New("payment: no supported payment requirement")
	ErrPaymentRejected        = errors.New("payment: provider rejected payment")
	ErrDuplicateInFlight      = errors.New("payment: payment with this idempotency key already in flight")
	ErrAmountExceeded         = errors.New("payment: amount exceeds configured maximum")
)
