package session

import (
	"os"
	"path/filepath"
	"testing"

	"estately/models"
)

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")

	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if store.Get().Authenticated() {
		t.Fatal("fresh store must start empty")
	}

	sess := models.Session{
		AccessToken:  "access",
		RefreshToken: "refresh",
		Profile:      &models.UserProfile{ID: 7, Username: "ayesha", IsAdmin: true},
	}
	if err := store.Set(sess); err != nil {
		t.Fatalf("Set: %v", err)
	}

	// A new store over the same file reconstructs the same session, the way
	// a page reload would.
	reopened, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got := reopened.Get()
	if got.AccessToken != "access" || got.RefreshToken != "refresh" {
		t.Errorf("tokens not restored: %+v", got)
	}
	if got.Profile == nil || got.Profile.Username != "ayesha" || got.Role() != models.RoleAdmin {
		t.Errorf("profile not restored: %+v", got.Profile)
	}
}

func TestFileStoreClearIsAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if err := store.Set(models.Session{AccessToken: "a", RefreshToken: "r"}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	if err := store.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if store.Get().Authenticated() {
		t.Error("session must be gone after Clear")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("credentials file must be removed on Clear")
	}
	// Clearing an already-empty store is not an error.
	if err := store.Clear(); err != nil {
		t.Errorf("second Clear: %v", err)
	}
}

func TestFileStoreSubscribe(t *testing.T) {
	store, err := NewFileStore(filepath.Join(t.TempDir(), "credentials.json"))
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	var seen []models.Session
	unsubscribe := store.Subscribe(func(s models.Session) {
		seen = append(seen, s)
	})

	if err := store.Set(models.Session{AccessToken: "one"}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if len(seen) != 2 {
		t.Fatalf("subscriber saw %d events, want 2", len(seen))
	}
	if seen[0].AccessToken != "one" || seen[1].Authenticated() {
		t.Errorf("unexpected events: %+v", seen)
	}

	unsubscribe()
	if err := store.Set(models.Session{AccessToken: "two"}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if len(seen) != 2 {
		t.Error("unsubscribed callback must not fire")
	}
}
