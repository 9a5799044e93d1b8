package payment

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strconv"
	"sync"
	"time"

	"estately/models"
	"estately/services/booking"
	"estately/services/session"
	"estately/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Requester is the API surface the orchestrator needs.
type Requester interface {
	PostJSON(ctx context.Context, path string, in, out interface{}) error
}

// BookingSource reads authoritative booking state and drops stale local
// caches after a payment signal.
type BookingSource interface {
	Get(ctx context.Context, id int64) (*models.Booking, error)
	InvalidateCache(ctx context.Context)
}

// Navigator performs the full client navigation to an external payment page.
type Navigator interface {
	Navigate(url string) error
}

// Orchestrator selects a payment rail for a booking, initiates the
// provider-specific flow and reconciles the result back into booking status.
// It never marks a booking paid itself: only the server-confirmed status is
// adopted, and provider callbacks are treated strictly as hints to re-fetch.
type Orchestrator interface {
	Initiate(ctx context.Context, bookingID int64, provider models.PaymentProvider) (*models.PaymentAttempt, error)
	HandleReturn(ctx context.Context, ev ReturnEvent) (*models.Booking, error)
}

type DefaultOrchestrator struct {
	Client   Requester
	Bookings BookingSource
	Store    session.Store
	Gate     session.Gate
	Card     CardConfirmer
	Nav      Navigator
	// DisplayRate converts the API-reported ledger amount into the wallet's
	// local currency for display only; the server owns the charged amount.
	DisplayRate float64
	Logger      *zap.Logger

	mu       sync.Mutex
	inFlight map[int64]bool
}

type initiateResponse struct {
	Success      bool   `json:"success"`
	ClientSecret string `json:"client_secret"`
	RedirectURL  string `json:"redirect_url"`
	PaymentURL   string `json:"payment_url"`
	WalletURL    string `json:"bkash_url"`
	Error        string `json:"error"`
}

func (o *DefaultOrchestrator) Initiate(ctx context.Context, bookingID int64, provider models.PaymentProvider) (*models.PaymentAttempt, error) {
	if !o.Gate.CanAccess(session.CapViewOwnBookings, o.Store.Get()) {
		return nil, ErrNotAllowed
	}
	if !provider.IsValid() {
		return nil, fmt.Errorf("unsupported payment provider %q", provider)
	}

	if !o.acquire(bookingID) {
		return nil, ErrPaymentInFlight
	}
	release := true
	defer func() {
		if release {
			o.release(bookingID)
		}
	}()

	b, err := o.Bookings.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.Status != models.BookingPending && b.Status != models.BookingConfirmed {
		return nil, &booking.TransitionError{BookingID: bookingID, From: b.Status, To: models.BookingPaid}
	}

	attempt := &models.PaymentAttempt{
		AttemptID: uuid.New().String(),
		BookingID: bookingID,
		Provider:  provider,
		Outcome:   models.PaymentPending,
		CreatedAt: time.Now(),
	}

	var resp initiateResponse
	payload := map[string]interface{}{"booking_id": bookingID, "provider": string(provider)}
	if err := o.Client.PostJSON(ctx, "/payments/initiate/", payload, &resp); err != nil {
		return nil, fmt.Errorf("payment initiation failed: %w", err)
	}

	switch provider {
	case models.ProviderCard:
		return attempt, o.runCardFlow(ctx, attempt, resp)
	default:
		// The wallet guard stays held across the redirect; HandleReturn
		// releases it when the provider sends the user back.
		err := o.runWalletFlow(attempt, b, resp)
		if err == nil {
			release = false
		}
		return attempt, err
	}
}

// runCardFlow confirms the charge synchronously through the card SDK. A
// decline surfaces as a failed outcome without touching booking status; a
// success is adopted only once the server reports the booking paid.
func (o *DefaultOrchestrator) runCardFlow(ctx context.Context, attempt *models.PaymentAttempt, resp initiateResponse) error {
	if resp.ClientSecret == "" {
		return fmt.Errorf("payment initiation returned no client secret")
	}
	attempt.ClientSecret = resp.ClientSecret

	if err := o.Card.Confirm(ctx, resp.ClientSecret); err != nil {
		if declined, ok := asDecline(err); ok {
			attempt.Outcome = models.PaymentFailed
			o.logger().Warn("card declined",
				zap.Int64("booking", attempt.BookingID),
				zap.String("code", declined.Code))
			return declined
		}
		return err
	}

	o.Bookings.InvalidateCache(ctx)
	paid, err := o.awaitServerPaid(ctx, attempt.BookingID)
	if err != nil {
		return err
	}
	if paid {
		attempt.Outcome = models.PaymentSucceeded
		o.logger().Info("payment settled", zap.Int64("booking", attempt.BookingID))
	} else {
		// The SDK said yes but the server has not. Keep the attempt pending;
		// the webhook-driven status will land on a later refresh.
		o.logger().Warn("card confirmed but server has not settled yet",
			zap.Int64("booking", attempt.BookingID))
	}
	return nil
}

// runWalletFlow hands control to the external payment page. No local status
// changes before the user returns.
func (o *DefaultOrchestrator) runWalletFlow(attempt *models.PaymentAttempt, b *models.Booking, resp initiateResponse) error {
	redirect := firstNonEmpty(resp.RedirectURL, resp.WalletURL, resp.PaymentURL)
	if redirect == "" {
		return fmt.Errorf("payment initiation returned no redirect URL")
	}
	attempt.RedirectURL = redirect
	attempt.DisplayAmount = o.displayAmount(b.TotalAmount)

	o.logger().Info("redirecting to wallet provider",
		zap.Int64("booking", attempt.BookingID),
		zap.String("display_amount", attempt.DisplayAmount))
	if err := o.Nav.Navigate(redirect); err != nil {
		return fmt.Errorf("failed to open payment page: %w", err)
	}
	return nil
}

// HandleReturn reacts to the provider's return navigation: refresh the
// authoritative booking status, nothing more. The callback itself never
// proves payment.
func (o *DefaultOrchestrator) HandleReturn(ctx context.Context, ev ReturnEvent) (*models.Booking, error) {
	o.release(ev.BookingID)
	o.Bookings.InvalidateCache(ctx)

	b, err := o.Bookings.Get(ctx, ev.BookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to refresh booking after return: %w", err)
	}
	o.logger().Info("booking refreshed after wallet return",
		zap.Int64("booking", b.ID),
		zap.String("status", b.Status.String()))
	return b, nil
}

// awaitServerPaid polls briefly for the webhook-driven paid status.
func (o *DefaultOrchestrator) awaitServerPaid(ctx context.Context, bookingID int64) (bool, error) {
	const attempts = 5
	for i := 0; i < attempts; i++ {
		b, err := o.Bookings.Get(ctx, bookingID)
		if err != nil {
			return false, err
		}
		if b.Status == models.BookingPaid {
			return true, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(time.Duration(i+1) * time.Second):
		}
	}
	return false, nil
}

func (o *DefaultOrchestrator) displayAmount(ledger string) string {
	amount, err := strconv.ParseFloat(ledger, 64)
	if err != nil || o.DisplayRate <= 0 {
		return ledger
	}
	return fmt.Sprintf("%.2f", amount*o.DisplayRate)
}

func (o *DefaultOrchestrator) acquire(bookingID int64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.inFlight == nil {
		o.inFlight = map[int64]bool{}
	}
	if o.inFlight[bookingID] {
		return false
	}
	o.inFlight[bookingID] = true
	return true
}

func (o *DefaultOrchestrator) release(bookingID int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inFlight, bookingID)
}

func (o *DefaultOrchestrator) logger() *zap.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return utils.GetLogger()
}

func asDecline(err error) (*CardDeclinedError, bool) {
	declined, ok := err.(*CardDeclinedError)
	return declined, ok
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// BrowserNavigator opens URLs in the system browser, falling back to
// printing the URL when no opener is available.
type BrowserNavigator struct {
	Logger *zap.Logger
}

func (n *BrowserNavigator) Navigate(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		logger := n.Logger
		if logger == nil {
			logger = utils.GetLogger()
		}
		logger.Info("open this URL to complete the payment", zap.String("url", url))
	}
	return nil
}
