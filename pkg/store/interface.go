package store

import (
	"errors"
	"fmt"

	"github.com/NicolasHaas/ticketbot/pkg/model"
)

var ErrEmptyUserID = errors.New("user id must not be empty")

// SessionStore defines the persistence interface for user sessions.
// Implementations include a JSON file (the default), SQLite, and an
// in-memory store for tests. A Put is durable when it returns.
type SessionStore interface {
	// Close releases the underlying storage.
	Close() error

	// Get returns the session for userID. ok is false if none is stored.
	Get(userID string) (s model.UserSession, ok bool, err error)

	// Put stores the session for userID, replacing any previous record.
	Put(userID string, s model.UserSession) error

	// List returns every stored session keyed by user id.
	List() (map[string]model.UserSession, error)
}

// Compile-time checks.
var (
	_ SessionStore = (*Store)(nil)
	_ SessionStore = (*JSONStore)(nil)
	_ SessionStore = (*MemoryStore)(nil)
)

func validatePut(userID string, s model.UserSession) error {
	if userID == "" {
		return ErrEmptyUserID
	}
	return s.Validate()
}

// Copy writes every session of src into dst and returns how many were copied.
// It is used to migrate a JSON users file into SQLite.
func Copy(dst, src SessionStore) (int, error) {
	sessions, err := src.List()
	if err != nil {
		return 0, fmt.Errorf("store: copy: %w", err)
	}
	n := 0
	for id, s := range sessions {
		if err := dst.Put(id, s); err != nil {
			return n, fmt.Errorf("store: copy %s: %w", id, err)
		}
		n++
	}
	return n, nil
}
