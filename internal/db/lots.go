package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/steveyegge/parkd/internal/schema"
)

// UpsertLots writes lots by id, replacing every column of an existing row.
// CachedAt is stamped on each lot with the current time.
func (db *DB) UpsertLots(lots []*schema.Lot) error {
	return db.UpsertLotsContext(context.Background(), lots)
}

// UpsertLotsContext writes lots with context support.
func (db *DB) UpsertLotsContext(ctx context.Context, lots []*schema.Lot) error {
	for _, lot := range lots {
		if err := lot.Validate(); err != nil {
			return fmt.Errorf("invalid lot %q: %w", lot.ID, err)
		}
	}

	db.lotsMu.Lock()
	defer db.lotsMu.Unlock()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return db.storageErr("failed to begin transaction", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO lots (
		id, name, address, latitude, longitude,
		total_spaces, available_spaces, opening_hours, price_rules,
		hourly_price, facilities, last_updated, cached_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name,
		address = excluded.address,
		latitude = excluded.latitude,
		longitude = excluded.longitude,
		total_spaces = excluded.total_spaces,
		available_spaces = excluded.available_spaces,
		opening_hours = excluded.opening_hours,
		price_rules = excluded.price_rules,
		hourly_price = excluded.hourly_price,
		facilities = excluded.facilities,
		last_updated = excluded.last_updated,
		cached_at = excluded.cached_at
	`)
	if err != nil {
		return db.storageErr("failed to prepare lot upsert", err)
	}
	defer stmt.Close()

	now := db.now()
	for _, lot := range lots {
		facilities, err := marshalFacilities(lot.Facilities)
		if err != nil {
			return fmt.Errorf("failed to marshal facilities for lot %s: %w", lot.ID, err)
		}

		_, err = stmt.ExecContext(ctx,
			lot.ID,
			lot.Name,
			lot.Address,
			lot.Latitude,
			lot.Longitude,
			intToNull(lot.TotalSpaces),
			intToNull(lot.AvailableSpaces),
			lot.OpeningHours,
			lot.PriceRules,
			floatToNull(lot.HourlyPrice),
			facilities,
			timeToNullString(lot.LastUpdated),
			formatTime(now),
		)
		if err != nil {
			return db.storageErr(fmt.Sprintf("failed to upsert lot %s", lot.ID), err)
		}
		lot.CachedAt = now
	}

	if err := tx.Commit(); err != nil {
		return db.storageErr("failed to commit lots", err)
	}
	return nil
}

// LoadLots returns every cached lot ordered by name.
func (db *DB) LoadLots() ([]*schema.Lot, error) {
	return db.LoadLotsContext(context.Background())
}

// LoadLotsContext returns every cached lot with context support.
func (db *DB) LoadLotsContext(ctx context.Context) ([]*schema.Lot, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, name, address, latitude, longitude,
		       total_spaces, available_spaces, opening_hours, price_rules,
		       hourly_price, facilities, last_updated, cached_at
		FROM lots
		ORDER BY name ASC, id ASC
	`)
	if err != nil {
		return nil, db.storageErr("failed to query lots", err)
	}
	defer rows.Close()

	lots, err := scanLots(rows)
	if err != nil {
		return nil, db.storageErr("failed to scan lots", err)
	}
	return lots, nil
}

// GetCacheTimestamp returns the newest cached_at, or nil for an empty cache.
func (db *DB) GetCacheTimestamp() (*time.Time, error) {
	return db.GetCacheTimestampContext(context.Background())
}

// GetCacheTimestampContext returns the newest cached_at with context support.
func (db *DB) GetCacheTimestampContext(ctx context.Context) (*time.Time, error) {
	var ts sql.NullString
	if err := db.conn.QueryRowContext(ctx, "SELECT MAX(cached_at) FROM lots").Scan(&ts); err != nil {
		return nil, db.storageErr("failed to read cache timestamp", err)
	}
	t, err := nullStringToTime(ts)
	if err != nil {
		return nil, db.storageErr("failed to parse cache timestamp", err)
	}
	return t, nil
}

func marshalFacilities(f *schema.Facilities) (sql.NullString, error) {
	if f == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(f)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func scanLots(rows *sql.Rows) ([]*schema.Lot, error) {
	var lots []*schema.Lot

	for rows.Next() {
		var lot schema.Lot
		var total, available sql.NullInt64
		var price sql.NullFloat64
		var facilities, lastUpdated sql.NullString
		var cachedAt string

		err := rows.Scan(
			&lot.ID,
			&lot.Name,
			&lot.Address,
			&lot.Latitude,
			&lot.Longitude,
			&total,
			&available,
			&lot.OpeningHours,
			&lot.PriceRules,
			&price,
			&facilities,
			&lastUpdated,
			&cachedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan lot: %w", err)
		}

		lot.TotalSpaces = nullToInt(total)
		lot.AvailableSpaces = nullToInt(available)
		lot.HourlyPrice = nullToFloat(price)

		if facilities.Valid {
			var f schema.Facilities
			if err := json.Unmarshal([]byte(facilities.String), &f); err != nil {
				return nil, fmt.Errorf("failed to unmarshal facilities for lot %s: %w", lot.ID, err)
			}
			lot.Facilities = &f
		}

		if lot.LastUpdated, err = nullStringToTime(lastUpdated); err != nil {
			return nil, fmt.Errorf("failed to parse last_updated for lot %s: %w", lot.ID, err)
		}
		if lot.CachedAt, err = parseTime(cachedAt); err != nil {
			return nil, fmt.Errorf("failed to parse cached_at for lot %s: %w", lot.ID, err)
		}

		lots = append(lots, &lot)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating lots: %w", err)
	}
	return lots, nil
}
