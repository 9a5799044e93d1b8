package booking

import (
	"errors"
	"fmt"

	"estately/models"
)

// ErrNotAllowed is a gate denial surfaced as an error: the caller lacks the
// role or ownership the operation requires. It is decided locally, before
// any network call.
var ErrNotAllowed = errors.New("not allowed to perform this action")

// ErrVisitDateRequired is the client's only local validation on booking
// creation; everything else is the server's call.
var ErrVisitDateRequired = errors.New("visit date is required")

// TransitionError reports an attempted edge outside the booking state
// machine. Invalid transitions are rejected, never silently ignored.
type TransitionError struct {
	BookingID int64
	From      models.BookingStatus
	To        models.BookingStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("booking %d: invalid transition %s -> %s", e.BookingID, e.From, e.To)
}

// ConflictError reports a mutation that lost to the booking's current state,
// e.g. canceling an already-paid booking. Local state has been refreshed
// from the server to resolve the discrepancy.
type ConflictError struct {
	BookingID int64
	Status    models.BookingStatus
	Message   string
}

func (e *ConflictError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("booking %d: %s", e.BookingID, e.Message)
	}
	return fmt.Sprintf("booking %d: conflicting state %s", e.BookingID, e.Status)
}
