// Package db is the on-device cache for lots, favorites, reservations and the
// signed-in profile.
//
// The cache is an embedded SQLite file (ncruces/go-sqlite3) in WAL mode with
// synchronous=FULL, so a write that returns nil survives process death.
// Readers never block on writers. Writes are serialized per record kind:
// a lots refresh does not wait for a favorite toggle.
//
// Every SQL failure is returned as an errs.KindStorage error. When the file
// cannot be opened at all, callers substitute Unavailable, which keeps the
// lot listing usable from the network while user data operations fail with
// errs.ErrStorageUnavailable.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/steveyegge/parkd/internal/clock"
	"github.com/steveyegge/parkd/internal/errs"
)

// timeFormat is fixed-width UTC so stored timestamps sort lexically.
const timeFormat = "2006-01-02T15:04:05Z"

// DB wraps the SQLite connection pool.
type DB struct {
	conn   *sql.DB
	path   string
	clock  clock.Clock
	logger *log.Logger

	lotsMu         sync.Mutex
	favoritesMu    sync.Mutex
	reservationsMu sync.Mutex
	profileMu      sync.Mutex
}

// Option configures Open.
type Option func(*DB)

// WithClock sets the clock used to stamp cached_at.
func WithClock(c clock.Clock) Option {
	return func(db *DB) { db.clock = c }
}

// WithLogger sets the logger used for storage failures.
func WithLogger(l *log.Logger) Option {
	return func(db *DB) { db.logger = l }
}

// Open opens (creating if needed) the cache database at path.
//
// The caller MUST call Close() when done.
//
// Example:
//
//	cache, err := db.Open("~/.parkd/cache.db")
//	if err != nil {
//	    return err
//	}
//	defer cache.Close()
//	if err := cache.InitSchema(); err != nil {
//	    return err
//	}
func Open(path string, opts ...Option) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errs.E(errs.KindStorage, "failed to create database directory", err)
	}

	connStr := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=synchronous(full)&_pragma=foreign_keys(on)", path)
	conn, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, errs.E(errs.KindStorage, "failed to open database", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, errs.E(errs.KindStorage, "failed to ping database", err)
	}

	conn.SetMaxOpenConns(8)
	conn.SetMaxIdleConns(4)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{
		conn:   conn,
		path:   path,
		clock:  clock.NewRealClock(),
		logger: log.New(os.Stderr, "[cache] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(db)
	}

	if _, err := db.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, errs.E(errs.KindStorage, "failed to enable WAL mode", err)
	}

	return db, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Close checkpoints the WAL and closes the pool.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		db.logger.Printf("Warning: failed to checkpoint WAL: %v", err)
	}

	if err := db.conn.Close(); err != nil {
		return errs.E(errs.KindStorage, "failed to close database", err)
	}

	db.conn = nil
	return nil
}

// InitSchema creates the cache tables. It is idempotent.
func (db *DB) InitSchema() error {
	return db.InitSchemaContext(context.Background())
}

// InitSchemaContext creates the cache tables with context support.
func (db *DB) InitSchemaContext(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS lots (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		address TEXT NOT NULL DEFAULT '',
		latitude REAL NOT NULL,
		longitude REAL NOT NULL,
		total_spaces INTEGER,      -- NULL = unknown
		available_spaces INTEGER,  -- NULL = unknown
		opening_hours TEXT NOT NULL DEFAULT '',
		price_rules TEXT NOT NULL DEFAULT '',
		hourly_price REAL,
		facilities TEXT,           -- JSON object
		last_updated TEXT,
		cached_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS favorites (
		user_id TEXT NOT NULL,
		lot_id TEXT NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (user_id, lot_id)
	);

	-- Outlives the edge so removals advance the counter too.
	CREATE TABLE IF NOT EXISTS favorite_versions (
		user_id TEXT NOT NULL,
		lot_id TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (user_id, lot_id)
	);

	CREATE TABLE IF NOT EXISTS reservations (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		spot_id TEXT NOT NULL,
		start_time TEXT NOT NULL,
		end_time TEXT,
		status TEXT NOT NULL,
		total_cost REAL NOT NULL DEFAULT 0,
		payment_status TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		position INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS profile (
		slot INTEGER PRIMARY KEY CHECK (slot = 1),
		id TEXT NOT NULL,
		email TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		phone_number TEXT NOT NULL DEFAULT '',
		license_plate TEXT,
		saved_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_lots_cached_at ON lots(cached_at);
	CREATE INDEX IF NOT EXISTS idx_lots_name ON lots(name);
	CREATE INDEX IF NOT EXISTS idx_reservations_user ON reservations(user_id, position);
	CREATE INDEX IF NOT EXISTS idx_reservations_spot_status ON reservations(spot_id, status);
	`

	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return errs.E(errs.KindStorage, "failed to initialize schema", err)
	}
	return nil
}

// Counts summarizes what the cache holds.
type Counts struct {
	Lots         int `json:"lots"`
	Favorites    int `json:"favorites"`
	Reservations int `json:"reservations"`
}

// Counts returns row counts for status reporting.
func (db *DB) Counts() (Counts, error) {
	return db.CountsContext(context.Background())
}

// CountsContext returns row counts with context support.
func (db *DB) CountsContext(ctx context.Context) (Counts, error) {
	var c Counts
	err := db.conn.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM lots),
			(SELECT COUNT(*) FROM favorites),
			(SELECT COUNT(*) FROM reservations)
	`).Scan(&c.Lots, &c.Favorites, &c.Reservations)
	if err != nil {
		return Counts{}, db.storageErr("failed to count rows", err)
	}
	return c, nil
}

// storageErr tags err as a storage failure and logs it at this boundary.
func (db *DB) storageErr(msg string, err error) error {
	db.logger.Printf("%s: %v", msg, err)
	return errs.E(errs.KindStorage, msg, err)
}

func (db *DB) now() time.Time {
	return db.clock.Now().UTC().Truncate(time.Second)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeFormat, s)
}

func timeToNullString(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func nullStringToTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func intToNull(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullToInt(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func floatToNull(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullToFloat(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}
