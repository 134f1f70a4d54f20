package db

import (
	"context"
	"database/sql"

	"github.com/steveyegge/parkd/internal/schema"
)

// ToggleFavorite flips the (userID, lotID) edge and returns the new state
// and the edge's version after the flip.
func (db *DB) ToggleFavorite(userID, lotID string) (bool, int64, error) {
	return db.ToggleFavoriteContext(context.Background(), userID, lotID)
}

// ToggleFavoriteContext flips an edge with context support.
func (db *DB) ToggleFavoriteContext(ctx context.Context, userID, lotID string) (bool, int64, error) {
	edge := schema.FavoriteEdge{UserID: userID, LotID: lotID}
	if err := edge.Validate(); err != nil {
		return false, 0, err
	}

	db.favoritesMu.Lock()
	defer db.favoritesMu.Unlock()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return false, 0, db.storageErr("failed to begin transaction", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM favorites WHERE user_id = ? AND lot_id = ?",
		userID, lotID,
	).Scan(&exists)
	if err != nil {
		return false, 0, db.storageErr("failed to read favorite", err)
	}

	favorited := exists == 0
	if favorited {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO favorites (user_id, lot_id, created_at) VALUES (?, ?, ?)",
			userID, lotID, formatTime(db.now()),
		)
	} else {
		_, err = tx.ExecContext(ctx,
			"DELETE FROM favorites WHERE user_id = ? AND lot_id = ?",
			userID, lotID,
		)
	}
	if err != nil {
		return false, 0, db.storageErr("failed to toggle favorite", err)
	}

	version, err := bumpVersion(ctx, tx, userID, lotID)
	if err != nil {
		return false, 0, db.storageErr("failed to bump favorite version", err)
	}

	if err := tx.Commit(); err != nil {
		return false, 0, db.storageErr("failed to commit favorite toggle", err)
	}
	return favorited, version, nil
}

// AddFavorite creates the edge if it is missing. Existing edges are left
// untouched, including their version.
func (db *DB) AddFavorite(userID, lotID string) error {
	return db.AddFavoriteContext(context.Background(), userID, lotID)
}

// AddFavoriteContext creates an edge with context support.
func (db *DB) AddFavoriteContext(ctx context.Context, userID, lotID string) error {
	edge := schema.FavoriteEdge{UserID: userID, LotID: lotID}
	if err := edge.Validate(); err != nil {
		return err
	}

	db.favoritesMu.Lock()
	defer db.favoritesMu.Unlock()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return db.storageErr("failed to begin transaction", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO favorites (user_id, lot_id, created_at) VALUES (?, ?, ?)
		ON CONFLICT(user_id, lot_id) DO NOTHING
	`, userID, lotID, formatTime(db.now()))
	if err != nil {
		return db.storageErr("failed to add favorite", err)
	}

	if n, _ := res.RowsAffected(); n > 0 {
		if _, err := bumpVersion(ctx, tx, userID, lotID); err != nil {
			return db.storageErr("failed to bump favorite version", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return db.storageErr("failed to commit favorite", err)
	}
	return nil
}

// IsFavorite reports whether the edge exists.
func (db *DB) IsFavorite(userID, lotID string) (bool, error) {
	return db.IsFavoriteContext(context.Background(), userID, lotID)
}

// IsFavoriteContext reports edge presence with context support.
func (db *DB) IsFavoriteContext(ctx context.Context, userID, lotID string) (bool, error) {
	var n int
	err := db.conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM favorites WHERE user_id = ? AND lot_id = ?",
		userID, lotID,
	).Scan(&n)
	if err != nil {
		return false, db.storageErr("failed to read favorite", err)
	}
	return n > 0, nil
}

// ListFavorites returns the user's favorited lot ids in creation order.
func (db *DB) ListFavorites(userID string) ([]string, error) {
	return db.ListFavoritesContext(context.Background(), userID)
}

// ListFavoritesContext lists favorites with context support.
func (db *DB) ListFavoritesContext(ctx context.Context, userID string) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT lot_id FROM favorites WHERE user_id = ? ORDER BY created_at ASC, rowid ASC",
		userID,
	)
	if err != nil {
		return nil, db.storageErr("failed to query favorites", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, db.storageErr("failed to scan favorite", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, db.storageErr("error iterating favorites", err)
	}
	return ids, nil
}

// FavoriteVersion returns the toggle counter of an edge, 0 if never touched.
func (db *DB) FavoriteVersion(userID, lotID string) (int64, error) {
	return db.FavoriteVersionContext(context.Background(), userID, lotID)
}

// FavoriteVersionContext reads the toggle counter with context support.
func (db *DB) FavoriteVersionContext(ctx context.Context, userID, lotID string) (int64, error) {
	var v int64
	err := db.conn.QueryRowContext(ctx,
		"SELECT version FROM favorite_versions WHERE user_id = ? AND lot_id = ?",
		userID, lotID,
	).Scan(&v)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, db.storageErr("failed to read favorite version", err)
	}
	return v, nil
}

func bumpVersion(ctx context.Context, tx *sql.Tx, userID, lotID string) (int64, error) {
	var v int64
	err := tx.QueryRowContext(ctx, `
		INSERT INTO favorite_versions (user_id, lot_id, version) VALUES (?, ?, 1)
		ON CONFLICT(user_id, lot_id) DO UPDATE SET version = version + 1
		RETURNING version
	`, userID, lotID).Scan(&v)
	return v, err
}
