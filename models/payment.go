package models

import "time"

// PaymentProvider is the external payment rail used to settle a booking.
type PaymentProvider string

const (
	ProviderCard   PaymentProvider = "card"
	ProviderWallet PaymentProvider = "wallet"
)

func (p PaymentProvider) IsValid() bool {
	return p == ProviderCard || p == ProviderWallet
}

// PaymentOutcome is the observed result of a payment attempt.
type PaymentOutcome string

const (
	PaymentPending   PaymentOutcome = "pending"
	PaymentSucceeded PaymentOutcome = "succeeded"
	PaymentFailed    PaymentOutcome = "failed"
)

// PaymentAttempt is an ephemeral record of one payment initiation. At most
// one attempt is in flight per booking at a time. A succeeded outcome is a
// hint only; the server's booking status remains authoritative.
type PaymentAttempt struct {
	AttemptID     string          `json:"attempt_id"`
	BookingID     int64           `json:"booking_id"`
	Provider      PaymentProvider `json:"provider"`
	ClientSecret  string          `json:"client_secret,omitempty"`
	RedirectURL   string          `json:"redirect_url,omitempty"`
	Outcome       PaymentOutcome  `json:"outcome"`
	DisplayAmount string          `json:"display_amount,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}
