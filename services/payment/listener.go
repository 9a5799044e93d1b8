package payment

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"estately/config"
	"estately/utils"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ReturnEvent carries the query parameters the wallet provider sends on the
// return navigation.
type ReturnEvent struct {
	BookingID int64
	PaymentID string
	Status    string
}

// ReturnListener is the loopback endpoint standing in for the browser's
// return navigation: the wallet provider redirects back here after the user
// settles (or abandons) the charge, and the orchestrator learns the outcome
// asynchronously.
type ReturnListener struct {
	Port   string
	Logger *zap.Logger

	events chan ReturnEvent
	srv    *http.Server
}

func NewReturnListener(port string) *ReturnListener {
	return &ReturnListener{
		Port:   port,
		events: make(chan ReturnEvent, 8),
	}
}

// Events exposes the return notifications in arrival order.
func (l *ReturnListener) Events() <-chan ReturnEvent {
	return l.events
}

// Start serves the return endpoint in the background.
func (l *ReturnListener) Start() error {
	if config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.Default())

	router.GET("/payments/return", func(c *gin.Context) {
		bookingID, _ := strconv.ParseInt(c.Query("booking_id"), 10, 64)
		ev := ReturnEvent{
			BookingID: bookingID,
			PaymentID: c.Query("paymentID"),
			Status:    c.Query("status"),
		}
		l.logger().Info("payment return received",
			zap.Int64("booking", ev.BookingID),
			zap.String("status", ev.Status))

		select {
		case l.events <- ev:
		default:
			l.logger().Warn("return event dropped, queue full")
		}
		c.Data(http.StatusOK, "text/html; charset=utf-8",
			[]byte("<html><body>Payment received. You can return to the app.</body></html>"))
	})

	l.srv = &http.Server{
		Addr:         ":" + l.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		if err := l.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			l.logger().Error("return listener stopped", zap.Error(err))
		}
	}()
	return nil
}

// Stop shuts the listener down gracefully.
func (l *ReturnListener) Stop(ctx context.Context) error {
	if l.srv == nil {
		return nil
	}
	return l.srv.Shutdown(ctx)
}

func (l *ReturnListener) logger() *zap.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return utils.GetLogger()
}
