package payment

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"estately/models"
	"estately/services/booking"
	"estately/services/session"

	"go.uber.org/zap"
)

type memSessionStore struct {
	sess models.Session
}

func (m *memSessionStore) Get() models.Session                   { return m.sess }
func (m *memSessionStore) Set(s models.Session) error            { m.sess = s; return nil }
func (m *memSessionStore) Clear() error                          { m.sess = models.Session{}; return nil }
func (m *memSessionStore) Subscribe(func(models.Session)) func() { return func() {} }

type fakeBookings struct {
	booking       *models.Booking
	paidOnRefetch bool
	gets          int
	invalidations int
}

func (f *fakeBookings) Get(context.Context, int64) (*models.Booking, error) {
	f.gets++
	b := *f.booking
	// Simulate the webhook landing server-side between confirm and refetch.
	if f.paidOnRefetch && f.gets > 1 {
		b.Status = models.BookingPaid
	}
	return &b, nil
}

func (f *fakeBookings) InvalidateCache(context.Context) {
	f.invalidations++
}

type fakeRequester struct {
	response map[string]interface{}
	calls    int
}

func (f *fakeRequester) PostJSON(_ context.Context, path string, in, out interface{}) error {
	f.calls++
	data, err := json.Marshal(f.response)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

type fakeConfirmer struct {
	err     error
	secrets []string
}

func (f *fakeConfirmer) Confirm(_ context.Context, clientSecret string) error {
	f.secrets = append(f.secrets, clientSecret)
	return f.err
}

type fakeNavigator struct {
	urls []string
}

func (f *fakeNavigator) Navigate(url string) error {
	f.urls = append(f.urls, url)
	return nil
}

func newOrchestrator(bookings *fakeBookings, req *fakeRequester, card CardConfirmer, nav Navigator) *DefaultOrchestrator {
	return &DefaultOrchestrator{
		Client:   req,
		Bookings: bookings,
		Store: &memSessionStore{sess: models.Session{
			AccessToken: "t",
			Profile:     &models.UserProfile{ID: 10},
		}},
		Gate:        session.Gate{},
		Card:        card,
		Nav:         nav,
		DisplayRate: 110,
		Logger:      zap.NewNop(),
	}
}

func TestCardPaymentAdoptsPaidOnlyAfterServerConfirms(t *testing.T) {
	bookings := &fakeBookings{
		booking:       &models.Booking{ID: 7, UserID: 10, Status: models.BookingPending, TotalAmount: "250.00"},
		paidOnRefetch: true,
	}
	req := &fakeRequester{response: map[string]interface{}{
		"success": true, "client_secret": "pi_123_secret_456",
	}}
	confirmer := &fakeConfirmer{}

	orch := newOrchestrator(bookings, req, confirmer, &fakeNavigator{})
	attempt, err := orch.Initiate(context.Background(), 7, models.ProviderCard)
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}

	if len(confirmer.secrets) != 1 || confirmer.secrets[0] != "pi_123_secret_456" {
		t.Errorf("client secret not handed to the SDK: %v", confirmer.secrets)
	}
	if attempt.Outcome != models.PaymentSucceeded {
		t.Errorf("outcome = %s, want succeeded", attempt.Outcome)
	}
	// The paid status came from a server refetch after the SDK callback,
	// never from the callback alone.
	if bookings.gets < 2 {
		t.Error("orchestrator must re-fetch the booking after SDK success")
	}
	if bookings.invalidations == 0 {
		t.Error("payment signal must drop the stale local cache")
	}
}

func TestCardDeclineIsFailedOutcomeWithoutStatusChange(t *testing.T) {
	bookings := &fakeBookings{
		booking: &models.Booking{ID: 7, UserID: 10, Status: models.BookingConfirmed, TotalAmount: "250.00"},
	}
	req := &fakeRequester{response: map[string]interface{}{
		"success": true, "client_secret": "pi_123_secret_456",
	}}
	confirmer := &fakeConfirmer{err: &CardDeclinedError{Code: "card_declined", Message: "insufficient funds"}}

	orch := newOrchestrator(bookings, req, confirmer, &fakeNavigator{})
	attempt, err := orch.Initiate(context.Background(), 7, models.ProviderCard)

	var declined *CardDeclinedError
	if !errors.As(err, &declined) {
		t.Fatalf("want CardDeclinedError, got %v", err)
	}
	if attempt.Outcome != models.PaymentFailed {
		t.Errorf("outcome = %s, want failed", attempt.Outcome)
	}
	if bookings.gets != 1 {
		t.Error("a decline must not trigger the paid-status poll")
	}
}

func TestWalletRedirectMakesNoLocalStatusChange(t *testing.T) {
	bookings := &fakeBookings{
		booking: &models.Booking{ID: 9, UserID: 10, Status: models.BookingPending, TotalAmount: "100.00"},
	}
	req := &fakeRequester{response: map[string]interface{}{
		"success": true, "bkash_url": "https://wallet.example/pay/abc",
	}}
	nav := &fakeNavigator{}

	orch := newOrchestrator(bookings, req, &fakeConfirmer{}, nav)
	attempt, err := orch.Initiate(context.Background(), 9, models.ProviderWallet)
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}

	if len(nav.urls) != 1 || nav.urls[0] != "https://wallet.example/pay/abc" {
		t.Errorf("navigation not performed: %v", nav.urls)
	}
	if attempt.Outcome != models.PaymentPending {
		t.Errorf("outcome = %s, want pending until the user returns", attempt.Outcome)
	}
	if attempt.DisplayAmount != "11000.00" {
		t.Errorf("display amount = %s, want the fixed-rate conversion 11000.00", attempt.DisplayAmount)
	}
	if bookings.invalidations != 0 {
		t.Error("no local state may change before the return navigation")
	}
}

func TestWalletReturnRefreshesAuthoritativeStatus(t *testing.T) {
	bookings := &fakeBookings{
		booking:       &models.Booking{ID: 9, UserID: 10, Status: models.BookingPending, TotalAmount: "100.00"},
		paidOnRefetch: true,
	}
	req := &fakeRequester{response: map[string]interface{}{
		"success": true, "redirect_url": "https://wallet.example/pay/abc",
	}}

	orch := newOrchestrator(bookings, req, &fakeConfirmer{}, &fakeNavigator{})
	if _, err := orch.Initiate(context.Background(), 9, models.ProviderWallet); err != nil {
		t.Fatalf("Initiate: %v", err)
	}

	b, err := orch.HandleReturn(context.Background(), ReturnEvent{BookingID: 9, Status: "success"})
	if err != nil {
		t.Fatalf("HandleReturn: %v", err)
	}
	if b.Status != models.BookingPaid {
		t.Errorf("status = %s, want the server-confirmed paid", b.Status)
	}
	if bookings.invalidations == 0 {
		t.Error("the return must drop the stale local cache")
	}
}

func TestSecondInitiationWhileInFlightRejected(t *testing.T) {
	bookings := &fakeBookings{
		booking: &models.Booking{ID: 9, UserID: 10, Status: models.BookingPending, TotalAmount: "100.00"},
	}
	req := &fakeRequester{response: map[string]interface{}{
		"success": true, "redirect_url": "https://wallet.example/pay/abc",
	}}

	orch := newOrchestrator(bookings, req, &fakeConfirmer{}, &fakeNavigator{})
	if _, err := orch.Initiate(context.Background(), 9, models.ProviderWallet); err != nil {
		t.Fatalf("first Initiate: %v", err)
	}

	// The wallet attempt holds the guard until the user returns.
	if _, err := orch.Initiate(context.Background(), 9, models.ProviderWallet); !errors.Is(err, ErrPaymentInFlight) {
		t.Fatalf("want ErrPaymentInFlight, got %v", err)
	}

	if _, err := orch.HandleReturn(context.Background(), ReturnEvent{BookingID: 9}); err != nil {
		t.Fatalf("HandleReturn: %v", err)
	}
	if _, err := orch.Initiate(context.Background(), 9, models.ProviderWallet); err != nil {
		t.Errorf("guard must be released after the return, got %v", err)
	}
}

func TestPaidBookingCannotStartAPayment(t *testing.T) {
	bookings := &fakeBookings{
		booking: &models.Booking{ID: 4, UserID: 10, Status: models.BookingPaid, TotalAmount: "100.00"},
	}
	req := &fakeRequester{}

	orch := newOrchestrator(bookings, req, &fakeConfirmer{}, &fakeNavigator{})
	_, err := orch.Initiate(context.Background(), 4, models.ProviderCard)

	var transition *booking.TransitionError
	if !errors.As(err, &transition) {
		t.Fatalf("want TransitionError, got %v", err)
	}
	if req.calls != 0 {
		t.Error("terminal-state payment must be rejected before the initiate call")
	}
}

func TestGuestCannotInitiate(t *testing.T) {
	orch := newOrchestrator(&fakeBookings{booking: &models.Booking{}}, &fakeRequester{}, &fakeConfirmer{}, &fakeNavigator{})
	orch.Store = &memSessionStore{}

	if _, err := orch.Initiate(context.Background(), 1, models.ProviderCard); !errors.Is(err, ErrNotAllowed) {
		t.Fatalf("want ErrNotAllowed, got %v", err)
	}
}
