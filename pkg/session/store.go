// Package session holds the single source of truth for who is logged in
// and the token-version counter sent with every request.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/girmesh03/Task-Manager-V9-sub000/pkg/logger"
)

// DepartmentRef points at the department a user belongs to.
type DepartmentRef struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// User is the identity record of the logged-in user.
type User struct {
	ID         string         `json:"id"`
	Name       string         `json:"name,omitempty"`
	Email      string         `json:"email,omitempty"`
	Role       string         `json:"role"`
	Department *DepartmentRef `json:"department,omitempty"`
}

// Credentials are what the user types to log in.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResult is the server's answer to a successful login.
type LoginResult struct {
	User         User
	TokenVersion int
	Message      string
}

// Authenticator talks to the auth endpoints.
type Authenticator interface {
	Login(ctx context.Context, creds Credentials) (*LoginResult, error)
	Logout(ctx context.Context) (message string, err error)
}

// State is a copy of the session at one point in time.
type State struct {
	CurrentUser     *User
	IsAuthenticated bool
	TokenVersion    int
}

// Messenger shows a message to the user.
type Messenger func(message string)

// Option configures a Store.
type Option func(*Store)

// WithPersister makes the store survive process restarts.
func WithPersister(p Persister) Option {
	return func(s *Store) { s.persister = p }
}

// WithMessenger sets where user-visible messages go.
func WithMessenger(m Messenger) Option {
	return func(s *Store) { s.messenger = m }
}

// Store is the session store. All methods are safe for concurrent use.
// Whenever IsAuthenticated is false, CurrentUser is nil and TokenVersion is 0.
type Store struct {
	auth      Authenticator
	persister Persister
	messenger Messenger

	mu    sync.RWMutex
	state State

	subsMu  sync.Mutex
	subs    map[int]func(State)
	nextSub int
}

// NewStore creates an unauthenticated store.
func NewStore(auth Authenticator, opts ...Option) *Store {
	s := &Store{
		auth: auth,
		subs: make(map[int]func(State)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyState(s.state)
}

// IsAuthenticated reports whether a user is logged in.
func (s *Store) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.IsAuthenticated
}

// TokenVersion returns the counter sent as X-Token-Version.
func (s *Store) TokenVersion() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.TokenVersion
}

// CurrentUser returns a copy of the logged-in user, or nil.
func (s *Store) CurrentUser() *User {
	return s.Snapshot().CurrentUser
}

// Subscribe registers fn to run after every authentication transition.
// fn runs synchronously on the goroutine that caused the transition.
func (s *Store) Subscribe(fn func(State)) (unsubscribe func()) {
	s.subsMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subsMu.Lock()
			delete(s.subs, id)
			s.subsMu.Unlock()
		})
	}
}

// Login sends creds to the auth endpoint. On failure the store stays
// unauthenticated and the returned error carries the server's message.
func (s *Store) Login(ctx context.Context, creds Credentials) error {
	if s.auth == nil {
		return fmt.Errorf("session: no authenticator configured")
	}

	logger.Debug("Logging in", "email", creds.Email)
	res, err := s.auth.Login(ctx, creds)
	if err != nil {
		logger.Warn("Login failed", "email", creds.Email, "error", err)
		return err
	}

	user := res.User
	next := State{
		CurrentUser:     &user,
		IsAuthenticated: true,
		TokenVersion:    res.TokenVersion,
	}
	s.transition(next)
	logger.Info("Logged in", "user_id", user.ID, "token_version", res.TokenVersion)

	if res.Message != "" {
		s.message(res.Message)
	}
	return nil
}

// Logout tells the server the session is over, then clears local state no
// matter what the server said. A non-empty reason is shown to the user.
func (s *Store) Logout(ctx context.Context, reason string) error {
	var serverMsg string
	if s.auth != nil && s.IsAuthenticated() {
		msg, err := s.auth.Logout(ctx)
		if err != nil {
			logger.Warn("Logout request failed, clearing local session anyway", "error", err)
		}
		serverMsg = msg
	}

	s.transition(State{})
	logger.Info("Logged out")

	switch {
	case reason != "":
		s.message(reason)
	case serverMsg != "":
		s.message(serverMsg)
	}
	return nil
}

// ForceRevoke clears the session without a network round-trip. It is used
// when the server says the session is no longer valid. Revoking an
// unauthenticated store does nothing, so concurrent failures revoke once.
func (s *Store) ForceRevoke(reason string) {
	s.mu.Lock()
	if !s.state.IsAuthenticated {
		s.mu.Unlock()
		return
	}
	s.state = State{}
	s.mu.Unlock()

	logger.Warn("Session revoked", "reason", reason)
	s.persist(State{})
	s.notify(State{})

	if reason != "" {
		s.message(reason)
	}
}

// Restore loads the persisted identity. TokenVersion always starts at 0
// after a restore; it is never persisted.
func (s *Store) Restore() error {
	if s.persister == nil {
		return nil
	}

	p, err := s.persister.Load()
	if err != nil {
		return fmt.Errorf("restore session: %w", err)
	}
	if p == nil || !p.IsAuthenticated || p.CurrentUser == nil {
		return nil
	}

	s.mu.Lock()
	s.state = State{CurrentUser: p.CurrentUser, IsAuthenticated: true}
	snapshot := copyState(s.state)
	s.mu.Unlock()

	logger.Debug("Session restored", "user_id", p.CurrentUser.ID)
	s.notify(snapshot)
	return nil
}

func (s *Store) transition(next State) {
	if !next.IsAuthenticated {
		next = State{}
	}

	s.mu.Lock()
	s.state = next
	snapshot := copyState(s.state)
	s.mu.Unlock()

	s.persist(snapshot)
	s.notify(snapshot)
}

func (s *Store) persist(st State) {
	if s.persister == nil {
		return
	}

	var err error
	if st.IsAuthenticated {
		err = s.persister.Save(&Persisted{CurrentUser: st.CurrentUser, IsAuthenticated: true})
	} else {
		err = s.persister.Clear()
	}
	if err != nil {
		logger.Error("Failed to persist session", "error", err)
	}
}

func (s *Store) notify(st State) {
	s.subsMu.Lock()
	fns := make([]func(State), 0, len(s.subs))
	for i := 0; i < s.nextSub; i++ {
		if fn, ok := s.subs[i]; ok {
			fns = append(fns, fn)
		}
	}
	s.subsMu.Unlock()

	for _, fn := range fns {
		fn(copyState(st))
	}
}

func (s *Store) message(msg string) {
	if s.messenger != nil {
		s.messenger(msg)
	}
}

func copyState(st State) State {
	if st.CurrentUser != nil {
		u := *st.CurrentUser
		if u.Department != nil {
			d := *u.Department
			u.Department = &d
		}
		st.CurrentUser = &u
	}
	return st
}
