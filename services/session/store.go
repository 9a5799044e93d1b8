package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"estately/models"
)

// Store is the injectable session service. Every consumer depends on this
// contract instead of ambient storage; writes are durably persisted so a
// process restart reconstructs the same session.
type Store interface {
	Get() models.Session
	Set(models.Session) error
	Clear() error
	// Subscribe registers a callback fired on every session change and
	// returns an unsubscribe func.
	Subscribe(fn func(models.Session)) func()
}

// FileStore persists the session as a JSON document on disk. Writes go
// through a temp file and rename so a crash never leaves a torn session.
// Tokens are stored unencrypted; expiry is discovered reactively through a
// failed authorized call, never checked locally. Single-instance use only:
// two processes sharing one file race and the last write wins.
type FileStore struct {
	path string

	mu      sync.RWMutex
	current models.Session
	subs    map[int]func(models.Session)
	nextSub int
}

// NewFileStore opens (or initializes) the store at path, loading any
// persisted session.
func NewFileStore(path string) (*FileStore, error) {
	s := &FileStore{
		path: path,
		subs: map[int]func(models.Session){},
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}
	if err := json.Unmarshal(data, &s.current); err != nil {
		return nil, fmt.Errorf("failed to parse credentials file: %w", err)
	}
	return s, nil
}

func (s *FileStore) Get() models.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

func (s *FileStore) Set(sess models.Session) error {
	s.mu.Lock()
	if err := s.persist(sess); err != nil {
		s.mu.Unlock()
		return err
	}
	s.current = sess
	subs := s.snapshotSubs()
	s.mu.Unlock()

	for _, fn := range subs {
		fn(sess)
	}
	return nil
}

// Clear destroys the persisted session atomically: tokens and profile go
// together, on logout or irrecoverable refresh failure.
func (s *FileStore) Clear() error {
	s.mu.Lock()
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		s.mu.Unlock()
		return fmt.Errorf("failed to remove credentials file: %w", err)
	}
	s.current = models.Session{}
	subs := s.snapshotSubs()
	s.mu.Unlock()

	for _, fn := range subs {
		fn(models.Session{})
	}
	return nil
}

func (s *FileStore) Subscribe(fn func(models.Session)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

func (s *FileStore) persist(sess models.Session) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create credentials dir: %w", err)
	}
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write credentials file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace credentials file: %w", err)
	}
	return nil
}

// snapshotSubs copies the callbacks so they run outside the lock. Callers
// must hold s.mu.
func (s *FileStore) snapshotSubs() []func(models.Session) {
	out := make([]func(models.Session), 0, len(s.subs))
	for _, fn := range s.subs {
		out = append(out, fn)
	}
	return out
}
