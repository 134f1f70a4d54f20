// Package session tracks the signed-in user. The user id it yields
// partitions every favorites and reservations read and write.
package session

import (
	"context"
	"log"
	"os"
	"sync"

	"github.com/steveyegge/parkd/internal/db"
	"github.com/steveyegge/parkd/internal/errs"
	"github.com/steveyegge/parkd/internal/reachability"
	"github.com/steveyegge/parkd/internal/remote"
	"github.com/steveyegge/parkd/internal/schema"
)

// EventKind says how the session changed.
type EventKind string

const (
	// EventAcquired follows a successful login or registration.
	EventAcquired EventKind = "acquired"
	// EventRestored follows loading a cached session after restart.
	EventRestored EventKind = "restored"
	// EventCleared follows logout.
	EventCleared EventKind = "cleared"
)

// Event is published on every session change.
type Event struct {
	Kind    EventKind
	UserID  string
	Profile *schema.UserProfile
}

// Authenticator is the part of the backend client the manager drives.
// *remote.Client implements it.
type Authenticator interface {
	Register(ctx context.Context, in remote.RegisterInput) (*schema.UserProfile, error)
	Login(ctx context.Context, email, password string) (*schema.UserProfile, error)
	Logout(ctx context.Context) error
	SetSession(token, userID string)
	Session() (token, userID string)
}

// Manager owns the current profile and announces changes to it.
type Manager struct {
	store   db.Store
	auth    Authenticator
	network reachability.Observer
	tokens  TokenStore
	logger  *log.Logger

	mu      sync.Mutex
	profile *schema.UserProfile
	nextID  int
	subs    map[int]chan Event
}

// NewManager creates a manager. tokens may be nil to keep sessions in
// memory only.
func NewManager(store db.Store, auth Authenticator, network reachability.Observer, tokens TokenStore, logger *log.Logger) *Manager {
	if tokens == nil {
		tokens = &MemoryTokenStore{}
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[session] ", log.LstdFlags)
	}
	return &Manager{
		store:   store,
		auth:    auth,
		network: network,
		tokens:  tokens,
		logger:  logger,
		subs:    make(map[int]chan Event),
	}
}

// Current returns the signed-in profile, or nil.
func (m *Manager) Current() *schema.UserProfile {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.profile == nil {
		return nil
	}
	p := *m.profile
	return &p
}

// UserID returns the signed-in user id, or "".
func (m *Manager) UserID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.profile == nil {
		return ""
	}
	return m.profile.ID
}

// RequireUserID returns the signed-in user id or errs.ErrNotLoggedIn.
func (m *Manager) RequireUserID() (string, error) {
	if id := m.UserID(); id != "" {
		return id, nil
	}
	return "", errs.ErrNotLoggedIn
}

// Login signs in against the backend. It needs connectivity.
func (m *Manager) Login(ctx context.Context, email, password string) (*schema.UserProfile, error) {
	if err := m.requireOnline("log in"); err != nil {
		return nil, err
	}
	profile, err := m.auth.Login(ctx, email, password)
	if err != nil {
		return nil, errs.Wrap(err, "failed to log in")
	}
	m.acquire(ctx, profile)
	return profile, nil
}

// Register creates an account and signs in. It needs connectivity.
func (m *Manager) Register(ctx context.Context, in remote.RegisterInput) (*schema.UserProfile, error) {
	if err := m.requireOnline("register"); err != nil {
		return nil, err
	}
	profile, err := m.auth.Register(ctx, in)
	if err != nil {
		return nil, errs.Wrap(err, "failed to register")
	}
	m.acquire(ctx, profile)
	return profile, nil
}

// Logout ends the session locally and, best effort, on the backend.
// Cached favorites and reservations stay on disk.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	if m.profile == nil {
		m.mu.Unlock()
		return nil
	}
	userID := m.profile.ID
	m.profile = nil
	if err := m.tokens.Clear(); err != nil {
		m.logger.Printf("WARNING: %v", err)
	}
	m.mu.Unlock()

	if err := m.auth.Logout(ctx); err != nil {
		m.logger.Printf("Backend logout failed (session dropped locally): %v", err)
	}
	if err := m.store.ClearProfileContext(ctx); err != nil {
		m.logger.Printf("WARNING: failed to clear cached profile: %v", err)
	}

	m.logger.Printf("Logged out %s", userID)
	m.publish(Event{Kind: EventCleared, UserID: userID})
	return nil
}

// Restore loads the cached profile and token from a previous run. It
// returns nil when no one was signed in.
func (m *Manager) Restore(ctx context.Context) (*schema.UserProfile, error) {
	profile, err := m.store.LoadProfileContext(ctx)
	if err != nil {
		return nil, errs.Wrap(err, "failed to load cached profile")
	}
	if profile == nil {
		return nil, nil
	}

	m.mu.Lock()
	tok, err := m.tokens.Load()
	if err != nil {
		m.logger.Printf("WARNING: %v", err)
	}
	if tok != nil && tok.UserID == profile.ID {
		m.auth.SetSession(tok.Token, tok.UserID)
	}
	p := *profile
	m.profile = &p
	m.mu.Unlock()

	m.publish(Event{Kind: EventRestored, UserID: profile.ID, Profile: profile})
	return profile, nil
}

// Subscribe returns a channel of session events and a function that
// unsubscribes and closes it. Events are dropped for a subscriber whose
// buffer is full.
func (m *Manager) Subscribe() (<-chan Event, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	ch := make(chan Event, 8)
	m.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if c, ok := m.subs[id]; ok {
				delete(m.subs, id)
				close(c)
			}
		})
	}
}

func (m *Manager) acquire(ctx context.Context, profile *schema.UserProfile) {
	if err := m.store.SaveProfileContext(ctx, profile); err != nil {
		m.logger.Printf("WARNING: failed to cache profile: %v", err)
	}

	m.mu.Lock()
	token, userID := m.auth.Session()
	if token != "" {
		if err := m.tokens.Save(Token{Token: token, UserID: userID}); err != nil {
			m.logger.Printf("WARNING: %v", err)
		}
	}
	p := *profile
	m.profile = &p
	m.mu.Unlock()

	m.logger.Printf("Signed in as %s (%s)", profile.Email, profile.ID)
	m.publish(Event{Kind: EventAcquired, UserID: profile.ID, Profile: profile})
}

func (m *Manager) requireOnline(op string) error {
	if m.network.Current().Connected {
		return nil
	}
	return errs.E(errs.KindNetwork, op+" requires a network connection", nil)
}

func (m *Manager) publish(ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- ev:
		default:
			m.logger.Printf("WARNING: dropped %s event for a slow subscriber", ev.Kind)
		}
	}
}
