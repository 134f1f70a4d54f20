package remote

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/steveyegge/parkd/internal/clock"
	"github.com/steveyegge/parkd/internal/errs"
	"github.com/steveyegge/parkd/internal/facilities"
	"github.com/steveyegge/parkd/internal/schema"
)

// DriverLibSQL is the database/sql driver registered by go-libsql. It is
// only available in cgo builds.
const DriverLibSQL = "libsql"

// Config configures the backend connection.
type Config struct {
	// URL is a libsql://, https:// or file: URL.
	URL string
	// AuthToken is appended to remote URLs as authToken.
	AuthToken string
	// Driver overrides the database/sql driver name. Defaults to libsql.
	Driver string
	// Timeout bounds each call. Defaults to 5s.
	Timeout time.Duration
	// SessionTTL is the lifetime of issued session tokens. Defaults to 30 days.
	SessionTTL time.Duration
	// BcryptCost is the password hashing cost. Defaults to bcrypt.DefaultCost.
	BcryptCost int
}

// LotSource fetches public lot listings.
type LotSource interface {
	Fetch(ctx context.Context, lang facilities.Lang) ([]*schema.Lot, error)
}

// Client talks to the document backend.
type Client struct {
	conn   *sql.DB
	cfg    Config
	lots   LotSource
	clock  clock.Clock
	logger *log.Logger

	mu     sync.RWMutex
	token  string
	userID string
}

// Option configures a Client.
type Option func(*Client)

// WithClock sets the clock used for session expiry.
func WithClock(c clock.Clock) Option {
	return func(cl *Client) { cl.clock = c }
}

// WithLogger sets the client logger.
func WithLogger(l *log.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

// Open connects to the backend. lots may be nil when FetchLots is not used.
func Open(cfg Config, lots LotSource, opts ...Option) (*Client, error) {
	if cfg.Driver == "" {
		cfg.Driver = DriverLibSQL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 30 * 24 * time.Hour
	}

	conn, err := sql.Open(cfg.Driver, dsn(cfg))
	if err != nil {
		return nil, errs.E(errs.KindNetwork, "failed to open backend connection", err)
	}
	conn.SetMaxOpenConns(4)
	conn.SetConnMaxIdleTime(time.Minute)

	c := &Client{
		conn:   conn,
		cfg:    cfg,
		lots:   lots,
		clock:  clock.NewRealClock(),
		logger: log.New(os.Stderr, "[remote] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func dsn(cfg Config) string {
	if cfg.AuthToken == "" || strings.HasPrefix(cfg.URL, "file:") {
		return cfg.URL
	}
	sep := "?"
	if strings.Contains(cfg.URL, "?") {
		sep = "&"
	}
	return cfg.URL + sep + "authToken=" + cfg.AuthToken
}

// Close releases the connection pool.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// InitSchema creates the backend tables. It is idempotent.
func (c *Client) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		email TEXT PRIMARY KEY,
		user_id TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sessions (
		token TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		expires_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS documents (
		user_id TEXT NOT NULL,
		collection TEXT NOT NULL,
		doc_id TEXT NOT NULL,
		body TEXT NOT NULL,
		position INTEGER NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (user_id, collection, doc_id)
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id);
	CREATE INDEX IF NOT EXISTS idx_documents_order ON documents(user_id, collection, position);
	`
	return c.call(ctx, "init schema", func(ctx context.Context) error {
		_, err := c.conn.ExecContext(ctx, schema)
		return err
	})
}

// SetSession installs a previously issued token, for example after restart.
func (c *Client) SetSession(token, userID string) {
	c.mu.Lock()
	c.token = token
	c.userID = userID
	c.mu.Unlock()
}

// Session returns the current token and user id.
func (c *Client) Session() (token, userID string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token, c.userID
}

// FetchLots returns the public listing in the given language.
func (c *Client) FetchLots(ctx context.Context, lang facilities.Lang) ([]*schema.Lot, error) {
	if c.lots == nil {
		return nil, errs.New("no lot source configured")
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	return c.lots.Fetch(ctx, lang)
}

// call runs fn under the per-call timeout and types its error.
func (c *Client) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	err := fn(ctx)
	if err == nil {
		return nil
	}
	return classify(ctx, op, err)
}

func classify(ctx context.Context, op string, err error) error {
	if errs.KindOf(err) != "" {
		return err
	}

	msg := fmt.Sprintf("failed to %s", op)
	var netErr net.Error
	switch {
	case ctx.Err() != nil,
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled),
		errors.As(err, &netErr):
		return errs.E(errs.KindNetwork, msg, err)
	case isConnectionFailure(err):
		return errs.E(errs.KindNetwork, msg, err)
	}
	return errs.E(errs.KindTransport, msg, err)
}

// isConnectionFailure matches driver errors that only carry text.
func isConnectionFailure(err error) bool {
	s := strings.ToLower(err.Error())
	for _, marker := range []string{
		"connection refused",
		"no such host",
		"network is unreachable",
		"i/o timeout",
		"connection reset",
		"tls handshake",
	} {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}

const timeFormat = time.RFC3339

func (c *Client) now() time.Time {
	return c.clock.Now().UTC()
}
