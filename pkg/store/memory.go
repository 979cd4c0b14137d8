package store

import (
	"fmt"
	"sync"

	"github.com/NicolasHaas/ticketbot/pkg/model"
)

// MemoryStore provides an in-memory SessionStore implementation for tests.
// It mirrors the persistent stores' validation.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]model.UserSession
	puts     int
}

// NewMemory creates an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]model.UserSession)}
}

// Close is a no-op for MemoryStore.
func (s *MemoryStore) Close() error {
	return nil
}

// Get returns the session for userID.
func (s *MemoryStore) Get(userID string) (model.UserSession, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.sessions[userID]
	return u, ok, nil
}

// Put stores the session for userID.
func (s *MemoryStore) Put(userID string, u model.UserSession) error {
	if err := validatePut(userID, u); err != nil {
		return fmt.Errorf("store: put session: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[userID] = u
	s.puts++
	return nil
}

// List returns a copy of all sessions.
func (s *MemoryStore) List() (map[string]model.UserSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]model.UserSession, len(s.sessions))
	for k, v := range s.sessions {
		out[k] = v
	}
	return out, nil
}

// Puts returns how many successful writes the store has seen.
func (s *MemoryStore) Puts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.puts
}
