package booking

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"estately/api"
	"estately/models"
	"estately/services/session"
	"estately/utils"

	"go.uber.org/zap"
)

const defaultCacheTTL = 2 * time.Minute

// Requester is the API surface the booking service needs.
type Requester interface {
	GetJSON(ctx context.Context, path string, query url.Values, out interface{}) error
	PostJSON(ctx context.Context, path string, in, out interface{}) error
	PatchJSON(ctx context.Context, path string, in, out interface{}) error
}

// Service is the booking lifecycle controller.
type Service interface {
	Create(ctx context.Context, input models.BookingCreateInput) (*models.Booking, error)
	List(ctx context.Context, status models.BookingStatus) ([]models.Booking, error)
	Get(ctx context.Context, id int64) (*models.Booking, error)
	Cancel(ctx context.Context, id int64) (*models.Booking, error)
	AdminSetStatus(ctx context.Context, id int64, status models.BookingStatus) (*models.Booking, error)
}

type DefaultBookingService struct {
	Client   Requester
	Store    session.Store
	Gate     session.Gate
	Cache    Cache
	CacheTTL time.Duration
	Logger   *zap.Logger
}

// Create books a property visit. The client checks only that a session and a
// visit date are present; date validity, availability and pricing are the
// server's business.
func (s *DefaultBookingService) Create(ctx context.Context, input models.BookingCreateInput) (*models.Booking, error) {
	sess := s.Store.Get()
	if !s.Gate.CanAccess(session.CapViewOwnBookings, sess) {
		return nil, ErrNotAllowed
	}
	if input.VisitDate == "" {
		return nil, ErrVisitDateRequired
	}

	b := &models.Booking{}
	if err := s.Client.PostJSON(ctx, "/bookings/", input, b); err != nil {
		return nil, fmt.Errorf("failed to create booking: %w", err)
	}
	s.invalidate(ctx)
	s.logger().Info("booking created",
		zap.Int64("booking", b.ID),
		zap.Int64("property", b.PropertyID),
		zap.String("status", b.Status.String()))
	return b, nil
}

// List returns the caller's bookings (all bookings for admins, server-side
// rule), optionally filtered by status, through the cache.
func (s *DefaultBookingService) List(ctx context.Context, status models.BookingStatus) ([]models.Booking, error) {
	sess := s.Store.Get()
	if !s.Gate.CanAccess(session.CapViewOwnBookings, sess) {
		return nil, ErrNotAllowed
	}

	key := s.cacheKey(sess, status)
	var cached []models.Booking
	if s.Cache != nil {
		if err := s.Cache.Get(ctx, key, &cached); err == nil {
			return cached, nil
		}
	}

	query := url.Values{}
	if status != "" {
		query.Set("status", status.String())
	}
	var raw json.RawMessage
	if err := s.Client.GetJSON(ctx, "/bookings/", query, &raw); err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	list, err := decodeBookingList(raw)
	if err != nil {
		return nil, err
	}

	if s.Cache != nil {
		if err := s.Cache.Set(ctx, key, list, s.cacheTTL()); err != nil {
			s.logger().Warn("failed to cache booking list", zap.Error(err))
		}
	}
	return list, nil
}

// Get fetches one booking; the server scopes visibility to owner-or-admin.
func (s *DefaultBookingService) Get(ctx context.Context, id int64) (*models.Booking, error) {
	b := &models.Booking{}
	if err := s.Client.GetJSON(ctx, fmt.Sprintf("/bookings/%d/", id), nil, b); err != nil {
		return nil, fmt.Errorf("failed to fetch booking %d: %w", id, err)
	}
	return b, nil
}

// Cancel performs the self-service cancel: the owner, or an admin force
// cancel. Terminal bookings are rejected with a conflict before the call;
// a conflicting server answer refreshes local state instead of trusting it.
func (s *DefaultBookingService) Cancel(ctx context.Context, id int64) (*models.Booking, error) {
	sess := s.Store.Get()
	if !s.Gate.CanAccess(session.CapCancelBooking, sess) {
		return nil, ErrNotAllowed
	}

	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.Gate.CanCancel(sess, current.UserID) {
		return nil, ErrNotAllowed
	}
	if !current.Status.CanBeCancelled() {
		return nil, &ConflictError{
			BookingID: id,
			Status:    current.Status,
			Message:   fmt.Sprintf("cannot cancel a %s booking", current.Status),
		}
	}

	if err := s.Client.PostJSON(ctx, fmt.Sprintf("/bookings/%d/cancel/", id), nil, nil); err != nil {
		return nil, s.reconcileCancelError(ctx, id, err)
	}
	s.invalidate(ctx)

	// Reconcile from the server rather than assuming the optimistic state.
	updated, err := s.Get(ctx, id)
	if err != nil {
		s.logger().Warn("cancel succeeded but refetch failed", zap.Int64("booking", id), zap.Error(err))
		current.Status = models.BookingCanceled
		return current, nil
	}
	s.logger().Info("booking canceled", zap.Int64("booking", id))
	return updated, nil
}

// AdminSetStatus forwards an admin status override. The role check happens
// before any network I/O; the server stays the source of truth on whether
// the transition is legal, and the returned status is adopted as-is.
func (s *DefaultBookingService) AdminSetStatus(ctx context.Context, id int64, status models.BookingStatus) (*models.Booking, error) {
	sess := s.Store.Get()
	if !s.Gate.CanAccess(session.CapViewAdminPanel, sess) {
		return nil, ErrNotAllowed
	}
	if !status.IsValid() {
		return nil, fmt.Errorf("invalid booking status %q", status)
	}

	b := &models.Booking{}
	payload := map[string]string{"status": status.String()}
	if err := s.Client.PatchJSON(ctx, fmt.Sprintf("/bookings/%d/", id), payload, b); err != nil {
		return nil, fmt.Errorf("failed to update booking %d: %w", id, err)
	}
	s.invalidate(ctx)
	s.logger().Info("booking status overridden",
		zap.Int64("booking", id),
		zap.String("status", b.Status.String()))
	return b, nil
}

// reconcileCancelError maps a server rejection of the cancel into a conflict
// carrying the refreshed authoritative state.
func (s *DefaultBookingService) reconcileCancelError(ctx context.Context, id int64, err error) error {
	kind := api.KindOf(err)
	if kind != api.KindValidation && kind != api.KindConflict {
		return fmt.Errorf("failed to cancel booking %d: %w", id, err)
	}
	s.invalidate(ctx)
	conflict := &ConflictError{BookingID: id, Message: err.Error()}
	if refreshed, getErr := s.Get(ctx, id); getErr == nil {
		conflict.Status = refreshed.Status
	}
	return conflict
}

// InvalidateCache drops the cached booking lists; collaborators call this
// after out-of-band status changes such as a settled payment.
func (s *DefaultBookingService) InvalidateCache(ctx context.Context) {
	s.invalidate(ctx)
}

func (s *DefaultBookingService) invalidate(ctx context.Context) {
	if s.Cache == nil {
		return
	}
	if err := s.Cache.DeletePattern(ctx, "bookings:*"); err != nil {
		s.logger().Warn("failed to invalidate booking cache", zap.Error(err))
	}
}

func (s *DefaultBookingService) cacheKey(sess models.Session, status models.BookingStatus) string {
	userID := int64(0)
	if sess.Profile != nil {
		userID = sess.Profile.ID
	}
	filter := "all"
	if status != "" {
		filter = status.String()
	}
	return fmt.Sprintf("bookings:%d:%s", userID, filter)
}

func (s *DefaultBookingService) cacheTTL() time.Duration {
	if s.CacheTTL > 0 {
		return s.CacheTTL
	}
	return defaultCacheTTL
}

func (s *DefaultBookingService) logger() *zap.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return utils.GetLogger()
}

// decodeBookingList accepts both the paginated envelope and a bare array;
// the server paginates some deployments and not others.
func decodeBookingList(raw json.RawMessage) ([]models.Booking, error) {
	var list []models.Booking
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	var page struct {
		Results []models.Booking `json:"results"`
	}
	if err := json.Unmarshal(raw, &page); err != nil {
		return nil, fmt.Errorf("failed to decode booking list: %w", err)
	}
	return page.Results, nil
}
