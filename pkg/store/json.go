package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/NicolasHaas/ticketbot/pkg/model"
)

// JSONStore keeps all sessions in one JSON object on disk, keyed by user id.
// The whole file is rewritten on every Put.
type JSONStore struct {
	mu       sync.RWMutex
	path     string
	sessions map[string]model.UserSession
}

// NewJSON opens the JSON file at path, creating it with an empty object if missing.
func NewJSON(path string) (*JSONStore, error) {
	s := &JSONStore{path: path, sessions: make(map[string]model.UserSession)}

	data, err := os.ReadFile(path) //nolint:gosec // path from operator config
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if err := s.flush(); err != nil {
			return nil, err
		}
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("store: read %s: %w", path, err)
	}

	if len(data) > 0 {
		if err := json.Unmarshal(data, &s.sessions); err != nil {
			return nil, fmt.Errorf("store: parse %s: %w", path, err)
		}
	}
	if s.sessions == nil {
		s.sessions = make(map[string]model.UserSession)
	}
	return s, nil
}

// Close is a no-op; every Put is already flushed.
func (s *JSONStore) Close() error {
	return nil
}

// Get returns the session for userID.
func (s *JSONStore) Get(userID string) (model.UserSession, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.sessions[userID]
	return u, ok, nil
}

// Put stores the session and rewrites the file. The in-memory map is only
// updated once the file write succeeded.
func (s *JSONStore) Put(userID string, u model.UserSession) error {
	if err := validatePut(userID, u); err != nil {
		return fmt.Errorf("store: put session: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.sessions[userID]
	s.sessions[userID] = u
	if err := s.flush(); err != nil {
		if had {
			s.sessions[userID] = prev
		} else {
			delete(s.sessions, userID)
		}
		return err
	}
	return nil
}

// List returns a copy of all sessions.
func (s *JSONStore) List() (map[string]model.UserSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]model.UserSession, len(s.sessions))
	for k, v := range s.sessions {
		out[k] = v
	}
	return out, nil
}

// flush writes the map through a temp file and rename so a crash never
// leaves a half-written file behind. Caller holds s.mu.
func (s *JSONStore) flush() error {
	data, err := json.MarshalIndent(s.sessions, "", "    ")
	if err != nil {
		return fmt.Errorf("store: marshal sessions: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("store: create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("store: write sessions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("store: close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("store: replace %s: %w", s.path, err)
	}
	return nil
}
