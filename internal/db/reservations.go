package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/steveyegge/parkd/internal/schema"
)

const reservationColumns = `id, user_id, spot_id, start_time, end_time, status,
	total_cost, payment_status, updated_at`

const upsertReservationSQL = `
	INSERT INTO reservations (
		id, user_id, spot_id, start_time, end_time, status,
		total_cost, payment_status, updated_at, position
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?,
		COALESCE((SELECT MAX(position) + 1 FROM reservations WHERE user_id = ?), 0))
	ON CONFLICT(id) DO UPDATE SET
		user_id = excluded.user_id,
		spot_id = excluded.spot_id,
		start_time = excluded.start_time,
		end_time = excluded.end_time,
		status = excluded.status,
		total_cost = excluded.total_cost,
		payment_status = excluded.payment_status,
		updated_at = excluded.updated_at
`

// UpsertReservation inserts or updates one reservation. New reservations
// are appended after the user's existing ones; updates keep their position.
func (db *DB) UpsertReservation(r *schema.Reservation) error {
	return db.UpsertReservationContext(context.Background(), r)
}

// UpsertReservationContext upserts one reservation with context support.
func (db *DB) UpsertReservationContext(ctx context.Context, r *schema.Reservation) error {
	return db.UpsertReservationsContext(ctx, []*schema.Reservation{r})
}

// UpsertReservations upserts a batch in one transaction.
func (db *DB) UpsertReservations(rs []*schema.Reservation) error {
	return db.UpsertReservationsContext(context.Background(), rs)
}

// UpsertReservationsContext upserts a batch with context support.
func (db *DB) UpsertReservationsContext(ctx context.Context, rs []*schema.Reservation) error {
	for _, r := range rs {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("invalid reservation %q: %w", r.ID, err)
		}
	}

	db.reservationsMu.Lock()
	defer db.reservationsMu.Unlock()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return db.storageErr("failed to begin transaction", err)
	}
	defer tx.Rollback()

	for _, r := range rs {
		if err := db.execUpsertReservation(ctx, tx, r); err != nil {
			return db.storageErr(fmt.Sprintf("failed to upsert reservation %s", r.ID), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return db.storageErr("failed to commit reservations", err)
	}
	return nil
}

// ReplaceReservations makes rs the user's complete reservation list, in
// the given order. Rows of other users are untouched.
func (db *DB) ReplaceReservations(userID string, rs []*schema.Reservation) error {
	return db.ReplaceReservationsContext(context.Background(), userID, rs)
}

// ReplaceReservationsContext replaces a user's reservations with context support.
func (db *DB) ReplaceReservationsContext(ctx context.Context, userID string, rs []*schema.Reservation) error {
	for _, r := range rs {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("invalid reservation %q: %w", r.ID, err)
		}
		if r.UserID != userID {
			return fmt.Errorf("reservation %s belongs to user %s, not %s", r.ID, r.UserID, userID)
		}
	}

	db.reservationsMu.Lock()
	defer db.reservationsMu.Unlock()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return db.storageErr("failed to begin transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM reservations WHERE user_id = ?", userID); err != nil {
		return db.storageErr("failed to clear reservations", err)
	}

	for _, r := range rs {
		if err := db.execUpsertReservation(ctx, tx, r); err != nil {
			return db.storageErr(fmt.Sprintf("failed to write reservation %s", r.ID), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return db.storageErr("failed to commit reservations", err)
	}
	return nil
}

func (db *DB) execUpsertReservation(ctx context.Context, tx *sql.Tx, r *schema.Reservation) error {
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = db.now()
	}
	_, err := tx.ExecContext(ctx, upsertReservationSQL,
		r.ID,
		r.UserID,
		r.SpotID,
		formatTime(r.StartTime),
		timeToNullString(r.EndTime),
		string(r.Status),
		r.TotalCost,
		string(r.PaymentStatus),
		formatTime(r.UpdatedAt),
		r.UserID,
	)
	return err
}

// ListReservations returns the user's reservations in list order.
func (db *DB) ListReservations(userID string) ([]*schema.Reservation, error) {
	return db.ListReservationsContext(context.Background(), userID)
}

// ListReservationsContext lists reservations with context support.
func (db *DB) ListReservationsContext(ctx context.Context, userID string) ([]*schema.Reservation, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT "+reservationColumns+" FROM reservations WHERE user_id = ? ORDER BY position ASC, rowid ASC",
		userID,
	)
	if err != nil {
		return nil, db.storageErr("failed to query reservations", err)
	}
	defer rows.Close()

	rs, err := scanReservations(rows)
	if err != nil {
		return nil, db.storageErr("failed to scan reservations", err)
	}
	return rs, nil
}

// GetReservation returns one reservation, or nil if it does not exist.
func (db *DB) GetReservation(id string) (*schema.Reservation, error) {
	return db.GetReservationContext(context.Background(), id)
}

// GetReservationContext returns one reservation with context support.
func (db *DB) GetReservationContext(ctx context.Context, id string) (*schema.Reservation, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT "+reservationColumns+" FROM reservations WHERE id = ?", id,
	)
	if err != nil {
		return nil, db.storageErr("failed to query reservation", err)
	}
	defer rows.Close()

	rs, err := scanReservations(rows)
	if err != nil {
		return nil, db.storageErr("failed to scan reservation", err)
	}
	if len(rs) == 0 {
		return nil, nil
	}
	return rs[0], nil
}

// ActiveReservationForSpot returns the active reservation holding spotID,
// or nil when the spot is free.
func (db *DB) ActiveReservationForSpot(spotID string) (*schema.Reservation, error) {
	return db.ActiveReservationForSpotContext(context.Background(), spotID)
}

// ActiveReservationForSpotContext looks up a spot's holder with context support.
func (db *DB) ActiveReservationForSpotContext(ctx context.Context, spotID string) (*schema.Reservation, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT "+reservationColumns+" FROM reservations WHERE spot_id = ? AND status = ? LIMIT 1",
		spotID, string(schema.StatusActive),
	)
	if err != nil {
		return nil, db.storageErr("failed to query spot reservation", err)
	}
	defer rows.Close()

	rs, err := scanReservations(rows)
	if err != nil {
		return nil, db.storageErr("failed to scan spot reservation", err)
	}
	if len(rs) == 0 {
		return nil, nil
	}
	return rs[0], nil
}

// DeleteReservation removes a reservation. Missing ids are not an error.
func (db *DB) DeleteReservation(id string) error {
	return db.DeleteReservationContext(context.Background(), id)
}

// DeleteReservationContext removes a reservation with context support.
func (db *DB) DeleteReservationContext(ctx context.Context, id string) error {
	db.reservationsMu.Lock()
	defer db.reservationsMu.Unlock()

	if _, err := db.conn.ExecContext(ctx, "DELETE FROM reservations WHERE id = ?", id); err != nil {
		return db.storageErr(fmt.Sprintf("failed to delete reservation %s", id), err)
	}
	return nil
}

func scanReservations(rows *sql.Rows) ([]*schema.Reservation, error) {
	var rs []*schema.Reservation

	for rows.Next() {
		var r schema.Reservation
		var status, payment, start, updated string
		var end sql.NullString

		err := rows.Scan(
			&r.ID,
			&r.UserID,
			&r.SpotID,
			&start,
			&end,
			&status,
			&r.TotalCost,
			&payment,
			&updated,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}

		r.Status = schema.ReservationStatus(status)
		r.PaymentStatus = schema.PaymentStatus(payment)

		if r.StartTime, err = parseTime(start); err != nil {
			return nil, fmt.Errorf("failed to parse start_time for %s: %w", r.ID, err)
		}
		if r.EndTime, err = nullStringToTime(end); err != nil {
			return nil, fmt.Errorf("failed to parse end_time for %s: %w", r.ID, err)
		}
		if r.UpdatedAt, err = parseTime(updated); err != nil {
			return nil, fmt.Errorf("failed to parse updated_at for %s: %w", r.ID, err)
		}

		rs = append(rs, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reservations: %w", err)
	}
	return rs, nil
}
