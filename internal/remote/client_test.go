package remote

import (
	"context"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"golang.org/x/crypto/bcrypt"

	"github.com/steveyegge/parkd/internal/clock"
	"github.com/steveyegge/parkd/internal/errs"
	"github.com/steveyegge/parkd/internal/facilities"
	"github.com/steveyegge/parkd/internal/schema"
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// openTestClient runs the backend schema on a local sqlite file.
func openTestClient(t *testing.T, lots LotSource) (*Client, *clock.MockClock) {
	t.Helper()
	clk := clock.NewMockClock(testNow)
	cfg := Config{
		URL:        "file:" + filepath.Join(t.TempDir(), "remote.db"),
		Driver:     "sqlite3",
		Timeout:    2 * time.Second,
		SessionTTL: time.Hour,
		BcryptCost: bcrypt.MinCost,
	}
	c, err := Open(cfg, lots, WithClock(clk), WithLogger(log.New(io.Discard, "", 0)))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { c.Close() })

	if err := c.InitSchema(context.Background()); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}
	return c, clk
}

func register(t *testing.T, c *Client, email string) *schema.UserProfile {
	t.Helper()
	p, err := c.Register(context.Background(), RegisterInput{
		Email:       email,
		Password:    "secret123",
		Name:        "Amy",
		PhoneNumber: "+852 5555 0000",
	})
	if err != nil {
		t.Fatalf("Register() failed: %v", err)
	}
	return p
}

func TestDSN(t *testing.T) {
	tests := []struct {
		cfg  Config
		want string
	}{
		{Config{URL: "libsql://db.turso.io"}, "libsql://db.turso.io"},
		{Config{URL: "libsql://db.turso.io", AuthToken: "tok"}, "libsql://db.turso.io?authToken=tok"},
		{Config{URL: "https://db.turso.io?tls=1", AuthToken: "tok"}, "https://db.turso.io?tls=1&authToken=tok"},
		{Config{URL: "file:/tmp/x.db", AuthToken: "tok"}, "file:/tmp/x.db"},
	}
	for _, tt := range tests {
		if got := dsn(tt.cfg); got != tt.want {
			t.Errorf("dsn(%+v) = %q, want %q", tt.cfg, got, tt.want)
		}
	}
}

func TestRegisterAndLogin(t *testing.T) {
	c, _ := openTestClient(t, nil)
	ctx := context.Background()

	p := register(t, c, "Amy@Example.com")
	if p.ID == "" || p.Email != "amy@example.com" {
		t.Fatalf("Register() = %+v", p)
	}
	if token, uid := c.Session(); token == "" || uid != p.ID {
		t.Errorf("Session() after register = (%q, %q)", token, uid)
	}

	if _, err := c.Register(ctx, RegisterInput{Email: "amy@example.com", Password: "secret123", Name: "Amy"}); errs.StatusOf(err) != http.StatusConflict {
		t.Errorf("duplicate Register() error = %v, want 409", err)
	}

	if err := c.Logout(ctx); err != nil {
		t.Fatalf("Logout() failed: %v", err)
	}

	got, err := c.Login(ctx, "amy@example.com", "secret123")
	if err != nil {
		t.Fatalf("Login() failed: %v", err)
	}
	if diff := cmp.Diff(p, got); diff != "" {
		t.Errorf("Login() profile mismatch (-want +got):\n%s", diff)
	}

	fetched, err := c.FetchProfile(ctx, p.ID)
	if err != nil {
		t.Fatalf("FetchProfile() failed: %v", err)
	}
	if fetched.Email != p.Email {
		t.Errorf("FetchProfile() email = %q", fetched.Email)
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	c, _ := openTestClient(t, nil)
	register(t, c, "amy@example.com")

	tests := []struct {
		name, email, password string
	}{
		{"wrong password", "amy@example.com", "nope"},
		{"unknown email", "bob@example.com", "secret123"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Login(context.Background(), tt.email, tt.password)
			if !errs.Is(err, errs.ErrInvalidCredentials) {
				t.Errorf("Login() error = %v, want ErrInvalidCredentials", err)
			}
			if !errs.IsKind(err, errs.KindUnauthorized) {
				t.Errorf("Login() kind = %q, want unauthorized", errs.KindOf(err))
			}
		})
	}
}

func TestRegister_Validation(t *testing.T) {
	c, _ := openTestClient(t, nil)
	tests := []RegisterInput{
		{Email: "not-an-email", Password: "secret123", Name: "x"},
		{Email: "a@b.c", Password: "123", Name: "x"},
		{Email: "a@b.c", Password: "secret123", Name: " "},
	}
	for _, in := range tests {
		if _, err := c.Register(context.Background(), in); err == nil {
			t.Errorf("Register(%+v) succeeded", in)
		}
	}
}

func TestSessionRequired(t *testing.T) {
	c, clk := openTestClient(t, nil)
	ctx := context.Background()
	p := register(t, c, "amy@example.com")

	if _, err := c.FetchFavorites(ctx, "someone-else"); !errs.IsKind(err, errs.KindUnauthorized) {
		t.Errorf("FetchFavorites(other user) kind = %q, want unauthorized", errs.KindOf(err))
	}

	clk.Add(2 * time.Hour)
	if _, err := c.FetchFavorites(ctx, p.ID); !errs.IsKind(err, errs.KindUnauthorized) {
		t.Errorf("FetchFavorites() after expiry kind = %q, want unauthorized", errs.KindOf(err))
	}

	c.SetSession("", "")
	if err := c.SyncFavorites(ctx, p.ID, nil); !errs.Is(err, errs.ErrNotLoggedIn) {
		t.Errorf("SyncFavorites() without session = %v, want ErrNotLoggedIn", err)
	}
}

func TestFavorites(t *testing.T) {
	c, _ := openTestClient(t, nil)
	ctx := context.Background()
	p := register(t, c, "amy@example.com")

	if err := c.SyncFavorites(ctx, p.ID, []string{"1", "2", "3"}); err != nil {
		t.Fatalf("SyncFavorites() failed: %v", err)
	}
	if err := c.SyncFavorites(ctx, p.ID, []string{"3", "4"}); err != nil {
		t.Fatalf("SyncFavorites() overwrite failed: %v", err)
	}

	got, err := c.FetchFavorites(ctx, p.ID)
	if err != nil {
		t.Fatalf("FetchFavorites() failed: %v", err)
	}
	if diff := cmp.Diff([]string{"3", "4"}, got); diff != "" {
		t.Errorf("FetchFavorites() mismatch (-want +got):\n%s", diff)
	}

	if err := c.AddFavorite(ctx, p.ID, "9"); err != nil {
		t.Fatalf("AddFavorite() failed: %v", err)
	}
	if err := c.RemoveFavorite(ctx, p.ID, "3"); err != nil {
		t.Fatalf("RemoveFavorite() failed: %v", err)
	}
	if err := c.RemoveFavorite(ctx, p.ID, "missing"); err != nil {
		t.Errorf("RemoveFavorite(missing) failed: %v", err)
	}

	got, _ = c.FetchFavorites(ctx, p.ID)
	if diff := cmp.Diff([]string{"4", "9"}, got); diff != "" {
		t.Errorf("after add/remove mismatch (-want +got):\n%s", diff)
	}
}

func TestReservations(t *testing.T) {
	c, _ := openTestClient(t, nil)
	ctx := context.Background()
	p := register(t, c, "amy@example.com")

	mk := func(id string) *schema.Reservation {
		return &schema.Reservation{
			ID: id, UserID: p.ID, SpotID: "A-101", StartTime: testNow,
			Status: schema.StatusActive, PaymentStatus: schema.PaymentPending,
			TotalCost: 30, UpdatedAt: testNow,
		}
	}

	if err := c.SyncReservations(ctx, p.ID, []*schema.Reservation{mk("b"), mk("a")}); err != nil {
		t.Fatalf("SyncReservations() failed: %v", err)
	}

	replacement := []*schema.Reservation{mk("c"), mk("a")}
	replacement[1].Status = schema.StatusCompleted
	if err := c.SyncReservations(ctx, p.ID, replacement); err != nil {
		t.Fatalf("SyncReservations() overwrite failed: %v", err)
	}

	got, err := c.FetchReservations(ctx, p.ID)
	if err != nil {
		t.Fatalf("FetchReservations() failed: %v", err)
	}
	if diff := cmp.Diff(replacement, got); diff != "" {
		t.Errorf("FetchReservations() mismatch (-want +got):\n%s", diff)
	}
}

type stubLots struct {
	lots []*schema.Lot
	lang facilities.Lang
}

func (s *stubLots) Fetch(ctx context.Context, lang facilities.Lang) ([]*schema.Lot, error) {
	s.lang = lang
	return s.lots, nil
}

func TestFetchLots(t *testing.T) {
	stub := &stubLots{lots: facilities.Seed()}
	c, _ := openTestClient(t, stub)

	lots, err := c.FetchLots(context.Background(), facilities.LangSimplifiedChinese)
	if err != nil {
		t.Fatalf("FetchLots() failed: %v", err)
	}
	if len(lots) != 5 || stub.lang != facilities.LangSimplifiedChinese {
		t.Errorf("FetchLots() = %d lots, lang %q", len(lots), stub.lang)
	}

	bare, _ := openTestClient(t, nil)
	if _, err := bare.FetchLots(context.Background(), facilities.LangEnglish); err == nil {
		t.Error("FetchLots() without source succeeded")
	}
}

func TestClassify(t *testing.T) {
	ctx := context.Background()
	canceled, cancel := context.WithCancel(ctx)
	cancel()

	tests := []struct {
		name string
		ctx  context.Context
		err  error
		want errs.Kind
	}{
		{"typed passes through", ctx, errs.ErrInvalidCredentials, errs.KindUnauthorized},
		{"deadline", ctx, context.DeadlineExceeded, errs.KindNetwork},
		{"canceled ctx", canceled, errs.New("boom"), errs.KindNetwork},
		{"refused", ctx, errs.New("dial tcp 1.2.3.4:443: connect: connection refused"), errs.KindNetwork},
		{"other", ctx, errs.New("SQLITE_CONSTRAINT"), errs.KindTransport},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errs.KindOf(classify(tt.ctx, "op", tt.err)); got != tt.want {
				t.Errorf("classify() kind = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClosedBackendIsTyped(t *testing.T) {
	c, _ := openTestClient(t, nil)
	p := register(t, c, "amy@example.com")
	c.conn.Close()

	_, err := c.FetchFavorites(context.Background(), p.ID)
	if errs.KindOf(err) == "" {
		t.Errorf("FetchFavorites() on closed backend returned untyped error %v", err)
	}
}
