package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"testing"
	"time"

	"estately/api"
	"estately/models"
	"estately/services/session"

	"go.uber.org/zap"
)

type memSessionStore struct {
	sess models.Session
}

func (m *memSessionStore) Get() models.Session                          { return m.sess }
func (m *memSessionStore) Set(s models.Session) error                   { m.sess = s; return nil }
func (m *memSessionStore) Clear() error                                 { m.sess = models.Session{}; return nil }
func (m *memSessionStore) Subscribe(func(models.Session)) func()        { return func() {} }

type memCache struct {
	entries map[string]json.RawMessage
	deletes int
}

func (m *memCache) Get(_ context.Context, key string, dest interface{}) error {
	raw, ok := m.entries[key]
	if !ok {
		return ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if m.entries == nil {
		m.entries = map[string]json.RawMessage{}
	}
	m.entries[key] = data
	return nil
}

func (m *memCache) DeletePattern(_ context.Context, pattern string) error {
	m.deletes++
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range m.entries {
		if strings.HasPrefix(key, prefix) {
			delete(m.entries, key)
		}
	}
	return nil
}

// fakeServer emulates the remote bookings API with in-memory state.
type fakeServer struct {
	bookings map[int64]*models.Booking
	calls    []string
}

func (f *fakeServer) record(method, path string) {
	f.calls = append(f.calls, method+" "+path)
}

func (f *fakeServer) GetJSON(_ context.Context, path string, query url.Values, out interface{}) error {
	f.record("GET", path)
	if path == "/bookings/" {
		var list []models.Booking
		for _, b := range f.bookings {
			if s := query.Get("status"); s != "" && string(b.Status) != s {
				continue
			}
			list = append(list, *b)
		}
		return respond(out, list)
	}
	var id int64
	fmt.Sscanf(path, "/bookings/%d/", &id)
	b, ok := f.bookings[id]
	if !ok {
		return &api.Error{Status: 404, Kind: api.KindNotFound, Message: "Booking not found"}
	}
	return respond(out, b)
}

func (f *fakeServer) PostJSON(_ context.Context, path string, in, out interface{}) error {
	f.record("POST", path)
	if path == "/bookings/" {
		input := in.(models.BookingCreateInput)
		b := &models.Booking{
			ID:         int64(len(f.bookings) + 100),
			PropertyID: input.PropertyID,
			VisitDate:  input.VisitDate,
			Status:     models.BookingPending,
		}
		f.bookings[b.ID] = b
		return respond(out, b)
	}
	// cancel endpoint
	var id int64
	fmt.Sscanf(path, "/bookings/%d/cancel/", &id)
	b, ok := f.bookings[id]
	if !ok {
		return &api.Error{Status: 404, Kind: api.KindNotFound, Message: "Booking not found"}
	}
	if b.Status == models.BookingPaid {
		return &api.Error{Status: 400, Kind: api.KindValidation, Message: "Cannot cancel paid booking. Request refund instead."}
	}
	if b.Status == models.BookingCanceled {
		return &api.Error{Status: 400, Kind: api.KindValidation, Message: "Booking already canceled"}
	}
	b.Status = models.BookingCanceled
	return nil
}

func (f *fakeServer) PatchJSON(_ context.Context, path string, in, out interface{}) error {
	f.record("PATCH", path)
	var id int64
	fmt.Sscanf(path, "/bookings/%d/", &id)
	b, ok := f.bookings[id]
	if !ok {
		return &api.Error{Status: 404, Kind: api.KindNotFound, Message: "Booking not found"}
	}
	payload := in.(map[string]string)
	b.Status = models.BookingStatus(payload["status"])
	return respond(out, b)
}

func respond(out interface{}, payload interface{}) error {
	if out == nil {
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func userSession(id int64) models.Session {
	return models.Session{AccessToken: "t", Profile: &models.UserProfile{ID: id, Username: "user"}}
}

func adminSession() models.Session {
	return models.Session{AccessToken: "t", Profile: &models.UserProfile{ID: 1, IsAdmin: true}}
}

func newService(server *fakeServer, sess models.Session, cache Cache) *DefaultBookingService {
	return &DefaultBookingService{
		Client: server,
		Store:  &memSessionStore{sess: sess},
		Gate:   session.Gate{},
		Cache:  cache,
		Logger: zap.NewNop(),
	}
}

func TestCancelOwnedPendingThenConflict(t *testing.T) {
	server := &fakeServer{bookings: map[int64]*models.Booking{
		42: {ID: 42, UserID: 10, Status: models.BookingPending},
	}}
	svc := newService(server, userSession(10), &memCache{})

	b, err := svc.Cancel(context.Background(), 42)
	if err != nil {
		t.Fatalf("first cancel: %v", err)
	}
	if b.Status != models.BookingCanceled {
		t.Errorf("status = %s, want canceled", b.Status)
	}

	// A second cancel is a conflict and leaves the status unchanged.
	_, err = svc.Cancel(context.Background(), 42)
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("second cancel: want ConflictError, got %v", err)
	}
	if server.bookings[42].Status != models.BookingCanceled {
		t.Errorf("conflicting cancel mutated status to %s", server.bookings[42].Status)
	}
}

func TestCancelPaidBookingIsConflict(t *testing.T) {
	server := &fakeServer{bookings: map[int64]*models.Booking{
		7: {ID: 7, UserID: 10, Status: models.BookingPaid},
	}}
	svc := newService(server, userSession(10), &memCache{})

	_, err := svc.Cancel(context.Background(), 7)
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("want ConflictError, got %v", err)
	}
	if conflict.Status != models.BookingPaid {
		t.Errorf("conflict status = %s, want paid", conflict.Status)
	}
	for _, call := range server.calls {
		if strings.Contains(call, "cancel") {
			t.Error("terminal-state cancel must be rejected before the cancel call")
		}
	}
}

func TestCancelSomeoneElsesBookingDenied(t *testing.T) {
	server := &fakeServer{bookings: map[int64]*models.Booking{
		5: {ID: 5, UserID: 99, Status: models.BookingPending},
	}}
	svc := newService(server, userSession(10), &memCache{})

	if _, err := svc.Cancel(context.Background(), 5); !errors.Is(err, ErrNotAllowed) {
		t.Fatalf("want ErrNotAllowed, got %v", err)
	}
	if server.bookings[5].Status != models.BookingPending {
		t.Error("denied cancel must not mutate the booking")
	}
}

func TestAdminCanForceCancel(t *testing.T) {
	server := &fakeServer{bookings: map[int64]*models.Booking{
		5: {ID: 5, UserID: 99, Status: models.BookingConfirmed},
	}}
	svc := newService(server, adminSession(), &memCache{})

	b, err := svc.Cancel(context.Background(), 5)
	if err != nil {
		t.Fatalf("admin cancel: %v", err)
	}
	if b.Status != models.BookingCanceled {
		t.Errorf("status = %s, want canceled", b.Status)
	}
}

func TestAdminSetStatusRejectedBeforeNetwork(t *testing.T) {
	server := &fakeServer{bookings: map[int64]*models.Booking{
		3: {ID: 3, UserID: 10, Status: models.BookingPending},
	}}
	svc := newService(server, userSession(10), &memCache{})

	_, err := svc.AdminSetStatus(context.Background(), 3, models.BookingConfirmed)
	if !errors.Is(err, ErrNotAllowed) {
		t.Fatalf("want ErrNotAllowed, got %v", err)
	}
	if len(server.calls) != 0 {
		t.Errorf("non-admin override must make no network call, saw %v", server.calls)
	}
}

func TestAdminSetStatusReconcilesServerAnswer(t *testing.T) {
	server := &fakeServer{bookings: map[int64]*models.Booking{
		3: {ID: 3, UserID: 10, Status: models.BookingPending},
	}}
	svc := newService(server, adminSession(), &memCache{})

	b, err := svc.AdminSetStatus(context.Background(), 3, models.BookingConfirmed)
	if err != nil {
		t.Fatalf("AdminSetStatus: %v", err)
	}
	if b.Status != models.BookingConfirmed {
		t.Errorf("status = %s, want confirmed (server's answer)", b.Status)
	}

	if _, err := svc.AdminSetStatus(context.Background(), 3, "shipped"); err == nil {
		t.Error("unknown status must be rejected")
	}
}

func TestCreateChecksSessionAndDatePresence(t *testing.T) {
	server := &fakeServer{bookings: map[int64]*models.Booking{}}

	guest := newService(server, models.Session{}, &memCache{})
	if _, err := guest.Create(context.Background(), models.BookingCreateInput{PropertyID: 1, VisitDate: "2026-09-01"}); !errors.Is(err, ErrNotAllowed) {
		t.Fatalf("guest create: want ErrNotAllowed, got %v", err)
	}

	svc := newService(server, userSession(10), &memCache{})
	if _, err := svc.Create(context.Background(), models.BookingCreateInput{PropertyID: 1}); !errors.Is(err, ErrVisitDateRequired) {
		t.Fatalf("want ErrVisitDateRequired, got %v", err)
	}

	b, err := svc.Create(context.Background(), models.BookingCreateInput{PropertyID: 1, VisitDate: "2026-09-01"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if b.Status != models.BookingPending {
		t.Errorf("new booking status = %s, want pending", b.Status)
	}
}

func TestListCachesAndMutationsInvalidate(t *testing.T) {
	server := &fakeServer{bookings: map[int64]*models.Booking{
		1: {ID: 1, UserID: 10, Status: models.BookingPending},
	}}
	cache := &memCache{}
	svc := newService(server, userSession(10), cache)

	if _, err := svc.List(context.Background(), ""); err != nil {
		t.Fatalf("first List: %v", err)
	}
	listCalls := len(server.calls)
	if _, err := svc.List(context.Background(), ""); err != nil {
		t.Fatalf("second List: %v", err)
	}
	if len(server.calls) != listCalls {
		t.Error("second List must be served from cache")
	}

	if _, err := svc.Cancel(context.Background(), 1); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if cache.deletes == 0 {
		t.Error("successful transition must invalidate the cached list")
	}

	list, err := svc.List(context.Background(), "")
	if err != nil {
		t.Fatalf("List after cancel: %v", err)
	}
	if len(list) != 1 || list[0].Status != models.BookingCanceled {
		t.Errorf("stale list after invalidation: %+v", list)
	}
}
