package db

import (
	"context"
	"database/sql"

	"github.com/steveyegge/parkd/internal/schema"
)

// SaveProfile stores the signed-in profile, replacing any previous one.
func (db *DB) SaveProfile(p *schema.UserProfile) error {
	return db.SaveProfileContext(context.Background(), p)
}

// SaveProfileContext stores the profile with context support.
func (db *DB) SaveProfileContext(ctx context.Context, p *schema.UserProfile) error {
	if err := p.Validate(); err != nil {
		return err
	}

	db.profileMu.Lock()
	defer db.profileMu.Unlock()

	var plate sql.NullString
	if p.LicensePlate != nil {
		plate = sql.NullString{String: *p.LicensePlate, Valid: true}
	}

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO profile (slot, id, email, name, phone_number, license_plate, saved_at)
		VALUES (1, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(slot) DO UPDATE SET
			id = excluded.id,
			email = excluded.email,
			name = excluded.name,
			phone_number = excluded.phone_number,
			license_plate = excluded.license_plate,
			saved_at = excluded.saved_at
	`, p.ID, p.Email, p.Name, p.PhoneNumber, plate, formatTime(db.now()))
	if err != nil {
		return db.storageErr("failed to save profile", err)
	}
	return nil
}

// LoadProfile returns the cached profile, or nil when nobody is signed in.
func (db *DB) LoadProfile() (*schema.UserProfile, error) {
	return db.LoadProfileContext(context.Background())
}

// LoadProfileContext returns the cached profile with context support.
func (db *DB) LoadProfileContext(ctx context.Context) (*schema.UserProfile, error) {
	var p schema.UserProfile
	var plate sql.NullString

	err := db.conn.QueryRowContext(ctx,
		"SELECT id, email, name, phone_number, license_plate FROM profile WHERE slot = 1",
	).Scan(&p.ID, &p.Email, &p.Name, &p.PhoneNumber, &plate)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, db.storageErr("failed to load profile", err)
	}

	if plate.Valid {
		v := plate.String
		p.LicensePlate = &v
	}
	return &p, nil
}

// ClearProfile forgets the cached profile. Favorites and reservations stay
// partitioned under their user id.
func (db *DB) ClearProfile() error {
	return db.ClearProfileContext(context.Background())
}

// ClearProfileContext forgets the profile with context support.
func (db *DB) ClearProfileContext(ctx context.Context) error {
	db.profileMu.Lock()
	defer db.profileMu.Unlock()

	if _, err := db.conn.ExecContext(ctx, "DELETE FROM profile"); err != nil {
		return db.storageErr("failed to clear profile", err)
	}
	return nil
}
