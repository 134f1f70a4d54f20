package session

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/steveyegge/parkd/internal/db"
	"github.com/steveyegge/parkd/internal/errs"
	"github.com/steveyegge/parkd/internal/reachability"
	"github.com/steveyegge/parkd/internal/remote"
	"github.com/steveyegge/parkd/internal/schema"
)

type fakeAuth struct {
	token, userID string
	logouts       int
	loginErr      error
}

var alice = &schema.UserProfile{ID: "u-alice", Email: "alice@example.com", Name: "Alice", PhoneNumber: "555-0100"}

func (f *fakeAuth) Register(ctx context.Context, in remote.RegisterInput) (*schema.UserProfile, error) {
	p := &schema.UserProfile{ID: "u-new", Email: in.Email, Name: in.Name, PhoneNumber: in.PhoneNumber}
	f.SetSession("tok-new", p.ID)
	return p, nil
}

func (f *fakeAuth) Login(ctx context.Context, email, password string) (*schema.UserProfile, error) {
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	p := *alice
	f.SetSession("tok-alice", p.ID)
	return &p, nil
}

func (f *fakeAuth) Logout(ctx context.Context) error {
	f.logouts++
	f.SetSession("", "")
	return errs.E(errs.KindNetwork, "unreachable", nil)
}

func (f *fakeAuth) SetSession(token, userID string) { f.token, f.userID = token, userID }

func (f *fakeAuth) Session() (string, string) { return f.token, f.userID }

func newManager(t *testing.T, network reachability.Observer) (*Manager, *fakeAuth, *db.DB, FileTokenStore) {
	t.Helper()
	dir := t.TempDir()
	quiet := log.New(io.Discard, "", 0)
	cache, err := db.Open(filepath.Join(dir, "cache.db"), db.WithLogger(quiet))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { cache.Close() })
	if err := cache.InitSchema(); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}

	auth := &fakeAuth{}
	tokens := FileTokenStore{Path: filepath.Join(dir, "session")}
	return NewManager(cache, auth, network, tokens, quiet), auth, cache, tokens
}

func TestLogin_PersistsAndPublishes(t *testing.T) {
	m, _, cache, tokens := newManager(t, reachability.Online())
	events, cancel := m.Subscribe()
	defer cancel()

	if _, err := m.Login(context.Background(), "alice@example.com", "pw"); err != nil {
		t.Fatalf("Login() failed: %v", err)
	}

	if m.UserID() != alice.ID {
		t.Errorf("UserID() = %q, want %q", m.UserID(), alice.ID)
	}
	ev := <-events
	if ev.Kind != EventAcquired || ev.UserID != alice.ID {
		t.Errorf("event = %+v, want acquired for %s", ev, alice.ID)
	}

	cached, err := cache.LoadProfile()
	if err != nil {
		t.Fatalf("LoadProfile() failed: %v", err)
	}
	if diff := cmp.Diff(alice, cached); diff != "" {
		t.Errorf("cached profile mismatch (-want +got):\n%s", diff)
	}

	tok, err := tokens.Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if diff := cmp.Diff(&Token{Token: "tok-alice", UserID: alice.ID}, tok); diff != "" {
		t.Errorf("token mismatch (-want +got):\n%s", diff)
	}

	info, err := os.Stat(tokens.Path)
	if err != nil {
		t.Fatalf("Stat() failed: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("token file mode = %o, want 600", perm)
	}
}

func TestLogin_RequiresNetwork(t *testing.T) {
	m, _, _, _ := newManager(t, reachability.Offline())

	_, err := m.Login(context.Background(), "alice@example.com", "pw")
	if !errs.IsKind(err, errs.KindNetwork) {
		t.Fatalf("Login() error = %v, want network kind", err)
	}
	_, err = m.Register(context.Background(), remote.RegisterInput{Email: "bob@example.com"})
	if !errs.IsKind(err, errs.KindNetwork) {
		t.Fatalf("Register() error = %v, want network kind", err)
	}
	if m.Current() != nil {
		t.Error("Current() set after failed login")
	}
}

func TestLogin_BadCredentials(t *testing.T) {
	m, auth, _, _ := newManager(t, reachability.Online())
	auth.loginErr = errs.ErrInvalidCredentials

	_, err := m.Login(context.Background(), "alice@example.com", "wrong")
	if !errs.Is(err, errs.ErrInvalidCredentials) {
		t.Fatalf("Login() error = %v, want ErrInvalidCredentials", err)
	}
	if _, err := m.RequireUserID(); !errs.Is(err, errs.ErrNotLoggedIn) {
		t.Errorf("RequireUserID() error = %v, want ErrNotLoggedIn", err)
	}
}

func TestRestore(t *testing.T) {
	network := reachability.Online()
	m, _, cache, tokens := newManager(t, network)
	if _, err := m.Login(context.Background(), "alice@example.com", "pw"); err != nil {
		t.Fatalf("Login() failed: %v", err)
	}

	// Simulate a restart while offline.
	network.SetConnected(false)
	auth := &fakeAuth{}
	restarted := NewManager(cache, auth, network, tokens, log.New(io.Discard, "", 0))
	events, cancel := restarted.Subscribe()
	defer cancel()

	p, err := restarted.Restore(context.Background())
	if err != nil {
		t.Fatalf("Restore() failed: %v", err)
	}
	if p == nil || p.ID != alice.ID {
		t.Fatalf("Restore() = %+v, want %s", p, alice.ID)
	}
	if ev := <-events; ev.Kind != EventRestored {
		t.Errorf("event kind = %q, want restored", ev.Kind)
	}
	if token, user := auth.Session(); token != "tok-alice" || user != alice.ID {
		t.Errorf("Session() = (%q, %q), want restored token", token, user)
	}
}

func TestRestore_NoProfile(t *testing.T) {
	m, _, _, _ := newManager(t, reachability.Online())
	p, err := m.Restore(context.Background())
	if err != nil {
		t.Fatalf("Restore() failed: %v", err)
	}
	if p != nil {
		t.Errorf("Restore() = %+v, want nil", p)
	}
}

func TestLogout(t *testing.T) {
	m, auth, cache, tokens := newManager(t, reachability.Online())
	if _, err := m.Login(context.Background(), "alice@example.com", "pw"); err != nil {
		t.Fatalf("Login() failed: %v", err)
	}
	events, cancel := m.Subscribe()
	defer cancel()

	// A backend failure does not keep the user signed in.
	if err := m.Logout(context.Background()); err != nil {
		t.Fatalf("Logout() failed: %v", err)
	}
	if auth.logouts != 1 {
		t.Errorf("backend logout called %d times, want 1", auth.logouts)
	}
	if ev := <-events; ev.Kind != EventCleared || ev.UserID != alice.ID {
		t.Errorf("event = %+v, want cleared for %s", ev, alice.ID)
	}
	if m.Current() != nil {
		t.Error("Current() still set")
	}
	if p, _ := cache.LoadProfile(); p != nil {
		t.Errorf("cached profile = %+v, want nil", p)
	}
	if tok, _ := tokens.Load(); tok != nil {
		t.Errorf("token = %+v, want nil", tok)
	}

	// Second logout is a no-op.
	if err := m.Logout(context.Background()); err != nil {
		t.Fatalf("second Logout() failed: %v", err)
	}
	if auth.logouts != 1 {
		t.Errorf("backend logout called again")
	}
}

func TestRegister(t *testing.T) {
	m, _, _, _ := newManager(t, reachability.Online())
	p, err := m.Register(context.Background(), remote.RegisterInput{
		Email: "bob@example.com", Password: "secret1", Name: "Bob", PhoneNumber: "555-0101",
	})
	if err != nil {
		t.Fatalf("Register() failed: %v", err)
	}
	if m.UserID() != p.ID {
		t.Errorf("UserID() = %q, want %q", m.UserID(), p.ID)
	}
}

func TestFileTokenStore_Missing(t *testing.T) {
	s := FileTokenStore{Path: filepath.Join(t.TempDir(), "none")}
	tok, err := s.Load()
	if err != nil || tok != nil {
		t.Errorf("Load() = (%v, %v), want (nil, nil)", tok, err)
	}
	if err := s.Clear(); err != nil {
		t.Errorf("Clear() failed: %v", err)
	}
}
