package bot

import (
	"fmt"
	"sync"

	"github.com/NicolasHaas/ticketbot/pkg/model"
	"github.com/NicolasHaas/ticketbot/pkg/platform"
	"github.com/NicolasHaas/ticketbot/pkg/store"
)

// account is the live platform session of one user.
type account struct {
	client platform.Client
	state  model.AccountState
}

// SessionRegistry owns every UserSession (persisted) and the in-memory
// platform account next to it. Writes to one user's session are serialized;
// different users never contend.
type SessionRegistry struct {
	store     store.SessionStore
	newClient platform.Factory

	mu       sync.Mutex
	locks    map[string]*sync.Mutex // userID -> write lock
	accounts map[string]*account
}

// NewSessionRegistry creates a registry over st. newClient builds the
// platform client for a user on first use.
func NewSessionRegistry(st store.SessionStore, newClient platform.Factory) *SessionRegistry {
	return &SessionRegistry{
		store:     st,
		newClient: newClient,
		locks:     make(map[string]*sync.Mutex),
		accounts:  make(map[string]*account),
	}
}

func (r *SessionRegistry) lockFor(userID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[userID] = l
	}
	return l
}

// Get returns the stored session, or a zero session for a new user.
func (r *SessionRegistry) Get(userID string) (model.UserSession, error) {
	s, _, err := r.store.Get(userID)
	if err != nil {
		return model.UserSession{}, fmt.Errorf("sessions: get %s: %w", userID, err)
	}
	return s, nil
}

// Update applies fn to the user's session and persists the result. If fn
// returns an error nothing is written. The lock is held only for the
// read-modify-write, never across a wait.
func (r *SessionRegistry) Update(userID string, fn func(*model.UserSession) error) (model.UserSession, error) {
	l := r.lockFor(userID)
	l.Lock()
	defer l.Unlock()

	s, _, err := r.store.Get(userID)
	if err != nil {
		return model.UserSession{}, fmt.Errorf("sessions: get %s: %w", userID, err)
	}
	if err := fn(&s); err != nil {
		return model.UserSession{}, err
	}
	if err := r.store.Put(userID, s); err != nil {
		return model.UserSession{}, fmt.Errorf("sessions: put %s: %w", userID, err)
	}
	return s, nil
}

// Ensure persists a zero session for a user seen for the first time.
func (r *SessionRegistry) Ensure(userID string) error {
	_, err := r.Update(userID, func(*model.UserSession) error { return nil })
	return err
}

// List returns all stored sessions.
func (r *SessionRegistry) List() (map[string]model.UserSession, error) {
	return r.store.List()
}

func (r *SessionRegistry) accountLocked(userID string) *account {
	a, ok := r.accounts[userID]
	if !ok {
		a = &account{client: r.newClient()}
		r.accounts[userID] = a
	}
	return a
}

// Client returns the user's platform client, creating one if needed.
func (r *SessionRegistry) Client(userID string) platform.Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.accountLocked(userID).client
}

// State returns a copy of the user's account state.
func (r *SessionRegistry) State(userID string) model.AccountState {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[userID]
	if !ok {
		return model.AccountState{}
	}
	return a.state
}

// SetState applies fn to the user's account state.
func (r *SessionRegistry) SetState(userID string, fn func(*model.AccountState)) model.AccountState {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := r.accountLocked(userID)
	fn(&a.state)
	return a.state
}

// ResetAccount drops the user's platform client and state. The next Client
// call starts an unauthenticated session.
func (r *SessionRegistry) ResetAccount(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.accounts, userID)
}

// AccountCount returns the number of users with a live account.
func (r *SessionRegistry) AccountCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.accounts)
}

// NewClient builds an unattached platform client, used to try a login
// without touching the user's current account.
func (r *SessionRegistry) NewClient() platform.Client {
	return r.newClient()
}

// Attach replaces the user's platform client and account state.
func (r *SessionRegistry) Attach(userID string, client platform.Client, state model.AccountState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts[userID] = &account{client: client, state: state}
}
