// File: estately/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"estately/api"
	"estately/config"
	"estately/models"
	"estately/services/booking"
	"estately/services/payment"
	"estately/services/property"
	"estately/services/session"
	"estately/utils"

	"github.com/stripe/stripe-go/v76"
	"go.uber.org/zap"
)

const walletReturnTimeout = 5 * time.Minute

type app struct {
	store      session.Store
	auth       session.AuthService
	gate       session.Gate
	bookings   *booking.DefaultBookingService
	properties property.Service
	payments   payment.Orchestrator
	listener   *payment.ReturnListener
	logger     *zap.Logger
}

func main() {
	config.LoadConfig()
	logger := utils.GetLogger()
	defer logger.Sync()

	utils.InitCache()
	stripe.Key = config.AppConfig.StripeKey

	store, err := session.NewFileStore(config.AppConfig.CredentialsFile)
	if err != nil {
		logger.Sugar().Fatalf("main: failed to open credential store: %v", err)
	}
	client := api.NewClient(store)
	gate := session.Gate{}

	authService := &session.DefaultAuthService{
		Client: client,
		Store:  store,
		Logger: logger,
	}

	var cache booking.Cache
	if redisClient := utils.GetCacheClient(); redisClient != nil {
		cache = booking.NewRedisCache(redisClient)
	}
	bookingService := &booking.DefaultBookingService{
		Client: client,
		Store:  store,
		Gate:   gate,
		Cache:  cache,
		Logger: logger,
	}

	propertyService := &property.DefaultPropertyService{
		Client: client,
		Store:  store,
		Gate:   gate,
	}

	listener := payment.NewReturnListener(config.AppConfig.ReturnListenerPort)
	orchestrator := &payment.DefaultOrchestrator{
		Client:      client,
		Bookings:    bookingService,
		Store:       store,
		Gate:        gate,
		Card:        &payment.StripeConfirmer{PaymentMethod: "pm_card_visa"},
		Nav:         &payment.BrowserNavigator{Logger: logger},
		DisplayRate: config.AppConfig.WalletDisplayRate,
		Logger:      logger,
	}

	a := &app{
		store:      store,
		auth:       authService,
		gate:       gate,
		bookings:   bookingService,
		properties: propertyService,
		payments:   orchestrator,
		listener:   listener,
		logger:     logger,
	}

	if err := a.run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func (a *app) run(args []string) error {
	if len(args) == 0 {
		usage()
		return nil
	}
	ctx := context.Background()
	sess := a.auth.Restore()

	switch args[0] {
	case "login":
		if len(args) != 3 {
			return fmt.Errorf("usage: login <username> <password>")
		}
		profile, err := a.auth.Login(ctx, args[1], args[2])
		if err != nil {
			return err
		}
		fmt.Printf("logged in as %s (%s)\n", profile.Username, profile.RoleOf())
		return nil

	case "register":
		if len(args) != 4 {
			return fmt.Errorf("usage: register <username> <email> <password>")
		}
		input := session.RegisterInput{
			Username:        args[1],
			Email:           args[2],
			Password:        args[3],
			PasswordConfirm: args[3],
		}
		profile, err := a.auth.Register(ctx, input)
		if err != nil {
			return err
		}
		fmt.Printf("registered %s, you can log in now\n", profile.Username)
		return nil

	case "logout":
		return a.auth.Logout()

	case "whoami":
		if !sess.Authenticated() {
			fmt.Println("not logged in")
			return nil
		}
		username := "(unknown)"
		if sess.Profile != nil {
			username = sess.Profile.Username
		}
		fmt.Printf("%s (%s)\n", username, sess.Role())
		return nil

	case "properties":
		page, err := a.properties.List(ctx, models.PropertyFilter{Status: models.PropertyActive})
		if err != nil {
			return err
		}
		for _, p := range page.Results {
			fmt.Printf("%-30s %-20s $%s  %db/%db  [%s]\n",
				p.Name, p.Location, p.Price, p.Bedrooms, p.Bathrooms, p.Slug)
		}
		return nil

	case "property":
		if len(args) != 2 {
			return fmt.Errorf("usage: property <slug>")
		}
		p, err := a.properties.Get(ctx, args[1])
		if err != nil {
			return err
		}
		fmt.Printf("%s — %s\n$%s, %d bedrooms, %d bathrooms\n%s\n",
			p.Name, p.Location, p.Price, p.Bedrooms, p.Bathrooms, p.Description)
		return nil

	case "book":
		if len(args) != 3 {
			return fmt.Errorf("usage: book <property-id> <visit-date YYYY-MM-DD>")
		}
		propertyID, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid property id %q", args[1])
		}
		b, err := a.bookings.Create(ctx, models.BookingCreateInput{
			PropertyID: propertyID,
			VisitDate:  args[2],
		})
		if err != nil {
			return err
		}
		fmt.Printf("booking #%d created (%s), total $%s\n", b.ID, b.Status, b.TotalAmount)
		return nil

	case "bookings":
		status := models.BookingStatus("")
		if len(args) == 2 {
			status = models.BookingStatus(args[1])
			if !status.IsValid() {
				return fmt.Errorf("unknown status %q", args[1])
			}
		}
		list, err := a.bookings.List(ctx, status)
		if err != nil {
			return err
		}
		for _, b := range list {
			fmt.Printf("#%-5d %-30s visit %-12s $%-10s %s\n",
				b.ID, b.PropertyName, b.VisitDate, b.TotalAmount, b.Status)
		}
		return nil

	case "cancel":
		if len(args) != 2 {
			return fmt.Errorf("usage: cancel <booking-id>")
		}
		id, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid booking id %q", args[1])
		}
		b, err := a.bookings.Cancel(ctx, id)
		if err != nil {
			return err
		}
		fmt.Printf("booking #%d is now %s\n", b.ID, b.Status)
		return nil

	case "set-status":
		if len(args) != 3 {
			return fmt.Errorf("usage: set-status <booking-id> <pending|confirmed|paid|canceled>")
		}
		id, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid booking id %q", args[1])
		}
		b, err := a.bookings.AdminSetStatus(ctx, id, models.BookingStatus(args[2]))
		if err != nil {
			return err
		}
		fmt.Printf("booking #%d is now %s\n", b.ID, b.Status)
		return nil

	case "pay":
		if len(args) != 3 {
			return fmt.Errorf("usage: pay <booking-id> <card|wallet>")
		}
		id, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid booking id %q", args[1])
		}
		return a.pay(ctx, id, models.PaymentProvider(args[2]))

	default:
		usage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func (a *app) pay(ctx context.Context, bookingID int64, provider models.PaymentProvider) error {
	if provider == models.ProviderWallet {
		if err := a.listener.Start(); err != nil {
			return err
		}
		defer a.listener.Stop(context.Background())
	}

	attempt, err := a.payments.Initiate(ctx, bookingID, provider)
	if err != nil {
		return err
	}

	switch provider {
	case models.ProviderCard:
		fmt.Printf("payment attempt %s: %s\n", attempt.AttemptID, attempt.Outcome)
		return nil
	default:
		fmt.Printf("redirected to wallet provider (display amount %s); waiting for return...\n",
			attempt.DisplayAmount)
		return a.awaitWalletReturn(ctx, bookingID)
	}
}

func (a *app) awaitWalletReturn(ctx context.Context, bookingID int64) error {
	timeout := time.After(walletReturnTimeout)
	for {
		select {
		case ev := <-a.listener.Events():
			if ev.BookingID != 0 && ev.BookingID != bookingID {
				continue
			}
			ev.BookingID = bookingID
			b, err := a.payments.HandleReturn(ctx, ev)
			if err != nil {
				return err
			}
			fmt.Printf("booking #%d is now %s\n", b.ID, b.Status)
			return nil
		case <-timeout:
			return fmt.Errorf("timed out waiting for the wallet return; run 'bookings' to check the status")
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func usage() {
	fmt.Println(`estately — property booking client

commands:
  login <username> <password>
  register <username> <email> <password>
  logout
  whoami
  properties
  property <slug>
  book <property-id> <visit-date>
  bookings [status]
  cancel <booking-id>
  set-status <booking-id> <status>     (admin)
  pay <booking-id> <card|wallet>`)
}
