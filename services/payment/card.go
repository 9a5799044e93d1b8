package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/paymentintent"
)

// CardConfirmer collects card details and confirms the charge against the
// payment intent the server issued. Success here is a hint only — the
// booking is marked paid exclusively by the server.
type CardConfirmer interface {
	Confirm(ctx context.Context, clientSecret string) error
}

// StripeConfirmer confirms payment intents through the Stripe SDK.
// stripe.Key must be set at startup.
type StripeConfirmer struct {
	// PaymentMethod is the card payment method to confirm with, e.g. a
	// tokenized method collected from the user or a test method such as
	// "pm_card_visa".
	PaymentMethod string
}

func (c *StripeConfirmer) Confirm(ctx context.Context, clientSecret string) error {
	intentID, err := intentIDFromSecret(clientSecret)
	if err != nil {
		return err
	}

	params := &stripe.PaymentIntentConfirmParams{
		PaymentMethod: stripe.String(c.PaymentMethod),
	}
	params.Context = ctx

	intent, err := paymentintent.Confirm(intentID, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Type == stripe.ErrorTypeCard {
			return &CardDeclinedError{Code: string(stripeErr.Code), Message: stripeErr.Msg}
		}
		return fmt.Errorf("card confirmation failed: %w", err)
	}

	switch intent.Status {
	case stripe.PaymentIntentStatusSucceeded, stripe.PaymentIntentStatusProcessing:
		return nil
	case stripe.PaymentIntentStatusRequiresPaymentMethod:
		return &CardDeclinedError{Message: "payment method was rejected"}
	default:
		return fmt.Errorf("unexpected payment intent status %q", intent.Status)
	}
}

// intentIDFromSecret extracts the intent id from a client secret of the form
// "pi_xxx_secret_yyy".
func intentIDFromSecret(clientSecret string) (string, error) {
	id, _, found := strings.Cut(clientSecret, "_secret")
	if !found || id == "" {
		return "", fmt.Errorf("malformed client secret")
	}
	return id, nil
}
