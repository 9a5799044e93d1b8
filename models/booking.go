package models

import "time"

// BookingStatus is the booking state machine. pending is the only initial
// state; paid and canceled are terminal.
type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingPaid      BookingStatus = "paid"
	BookingCanceled  BookingStatus = "canceled"
)

func (s BookingStatus) IsValid() bool {
	switch s {
	case BookingPending, BookingConfirmed, BookingPaid, BookingCanceled:
		return true
	}
	return false
}

func (s BookingStatus) String() string {
	return string(s)
}

// IsTerminal reports whether no further transition is permitted.
func (s BookingStatus) IsTerminal() bool {
	return s == BookingPaid || s == BookingCanceled
}

// CanTransitionTo reports whether the edge s -> next exists:
//
//	pending   -> confirmed | paid | canceled
//	confirmed -> paid | canceled
//
// Nothing leaves paid or canceled.
func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	if !s.IsValid() || !next.IsValid() || s.IsTerminal() {
		return false
	}
	switch next {
	case BookingConfirmed:
		return s == BookingPending
	case BookingPaid, BookingCanceled:
		return s == BookingPending || s == BookingConfirmed
	}
	return false
}

// CanBeCancelled reports whether the self-service cancel path is open.
func (s BookingStatus) CanBeCancelled() bool {
	return s.CanTransitionTo(BookingCanceled)
}

// Booking is a property visit booking. Created pending by a user action,
// mutated by the owning user (cancel), an admin (status override) or a
// confirmed payment (paid). Never deleted client-side.
type Booking struct {
	ID               int64         `json:"id"`
	PropertyID       int64         `json:"property"`
	PropertyName     string        `json:"property_name,omitempty"`
	PropertyLocation string        `json:"property_location,omitempty"`
	UserID           int64         `json:"user"`
	Username         string        `json:"username,omitempty"`
	BookingDate      time.Time     `json:"booking_date"`
	VisitDate        string        `json:"visit_date,omitempty"`
	Subtotal         string        `json:"subtotal"`
	Discount         string        `json:"discount"`
	TotalAmount      string        `json:"total_amount"`
	Notes            string        `json:"notes,omitempty"`
	Status           BookingStatus `json:"status"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// BookingCreateInput is the payload for creating a booking. The server is
// authoritative on date validity and availability; the client only performs
// presence checks.
type BookingCreateInput struct {
	PropertyID int64  `json:"property"`
	VisitDate  string `json:"visit_date"`
	Notes      string `json:"notes,omitempty"`
}
