package payment

import (
	"errors"
	"fmt"
)

// ErrNotAllowed is a gate denial: paying requires an authenticated session.
var ErrNotAllowed = errors.New("not allowed to pay for this booking")

// ErrPaymentInFlight guards against double initiation: at most one payment
// attempt is in flight per booking at a time, enforced client-side.
var ErrPaymentInFlight = errors.New("a payment for this booking is already in progress")

// CardDeclinedError is an SDK-reported decline. It surfaces as a failed
// attempt outcome and never mutates booking status.
type CardDeclinedError struct {
	Code    string
	Message string
}

func (e *CardDeclinedError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("card declined (%s): %s", e.Code, e.Message)
	}
	return fmt.Sprintf("card declined: %s", e.Message)
}
