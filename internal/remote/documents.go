package remote

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/steveyegge/parkd/internal/errs"
	"github.com/steveyegge/parkd/internal/schema"
)

const (
	collectionFavorites    = "favorites"
	collectionReservations = "reservations"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type favoriteDoc struct {
	LotID     string    `json:"lot_id"`
	CreatedAt time.Time `json:"created_at"`
}

// FetchFavorites returns the favorited lot ids stored for userID.
func (c *Client) FetchFavorites(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := c.call(ctx, "fetch favorites", func(ctx context.Context) error {
		if err := c.requireSession(ctx, userID); err != nil {
			return err
		}
		docs, err := listDocuments(ctx, c.conn, userID, collectionFavorites)
		if err != nil {
			return err
		}
		ids = make([]string, 0, len(docs))
		for _, d := range docs {
			ids = append(ids, d.id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// SyncFavorites overwrites the stored favorites with ids.
func (c *Client) SyncFavorites(ctx context.Context, userID string, ids []string) error {
	return c.call(ctx, "sync favorites", func(ctx context.Context) error {
		if err := c.requireSession(ctx, userID); err != nil {
			return err
		}

		tx, err := c.conn.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		keep := make(map[string]struct{}, len(ids))
		for _, id := range ids {
			keep[id] = struct{}{}
		}
		if err := pruneDocuments(ctx, tx, userID, collectionFavorites, keep); err != nil {
			return err
		}

		now := c.now()
		for i, id := range ids {
			if err := putFavorite(ctx, tx, userID, id, i, now); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
}

// AddFavorite stores a single favorite.
func (c *Client) AddFavorite(ctx context.Context, userID, lotID string) error {
	return c.call(ctx, "add favorite", func(ctx context.Context) error {
		if err := c.requireSession(ctx, userID); err != nil {
			return err
		}
		var next int
		if err := c.conn.QueryRowContext(ctx,
			"SELECT COALESCE(MAX(position) + 1, 0) FROM documents WHERE user_id = ? AND collection = ?",
			userID, collectionFavorites,
		).Scan(&next); err != nil {
			return err
		}
		return putFavorite(ctx, c.conn, userID, lotID, next, c.now())
	})
}

// RemoveFavorite deletes a single favorite. Missing ids are not an error.
func (c *Client) RemoveFavorite(ctx context.Context, userID, lotID string) error {
	return c.call(ctx, "remove favorite", func(ctx context.Context) error {
		if err := c.requireSession(ctx, userID); err != nil {
			return err
		}
		_, err := c.conn.ExecContext(ctx,
			"DELETE FROM documents WHERE user_id = ? AND collection = ? AND doc_id = ?",
			userID, collectionFavorites, lotID,
		)
		return err
	})
}

func putFavorite(ctx context.Context, q querier, userID, lotID string, position int, now time.Time) error {
	body, err := json.Marshal(favoriteDoc{LotID: lotID, CreatedAt: now})
	if err != nil {
		return err
	}
	return putDocument(ctx, q, userID, collectionFavorites, lotID, body, position, now)
}

// FetchReservations returns the stored reservations in backend order.
func (c *Client) FetchReservations(ctx context.Context, userID string) ([]*schema.Reservation, error) {
	var rs []*schema.Reservation
	err := c.call(ctx, "fetch reservations", func(ctx context.Context) error {
		if err := c.requireSession(ctx, userID); err != nil {
			return err
		}
		docs, err := listDocuments(ctx, c.conn, userID, collectionReservations)
		if err != nil {
			return err
		}
		rs = make([]*schema.Reservation, 0, len(docs))
		for _, d := range docs {
			var r schema.Reservation
			if err := json.Unmarshal(d.body, &r); err != nil {
				return errs.E(errs.KindMalformed, "reservation document "+d.id+" is not valid JSON", err)
			}
			if err := r.Validate(); err != nil {
				return errs.E(errs.KindMalformed, "reservation document "+d.id+" is invalid", err)
			}
			rs = append(rs, &r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rs, nil
}

// SyncReservations makes rs the stored reservation list: ids not in rs are
// deleted and the rest are upserted in order, in one transaction.
func (c *Client) SyncReservations(ctx context.Context, userID string, rs []*schema.Reservation) error {
	return c.call(ctx, "sync reservations", func(ctx context.Context) error {
		if err := c.requireSession(ctx, userID); err != nil {
			return err
		}

		tx, err := c.conn.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		if err := pruneDocuments(ctx, tx, userID, collectionReservations, schema.ReservationIDs(rs)); err != nil {
			return err
		}

		now := c.now()
		for i, r := range rs {
			body, err := json.Marshal(r)
			if err != nil {
				return err
			}
			if err := putDocument(ctx, tx, userID, collectionReservations, r.ID, body, i, now); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
}

type document struct {
	id   string
	body []byte
}

func putDocument(ctx context.Context, q querier, userID, collection, docID string, body []byte, position int, now time.Time) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO documents (user_id, collection, doc_id, body, position, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, collection, doc_id) DO UPDATE SET
			body = excluded.body,
			position = excluded.position,
			updated_at = excluded.updated_at
	`, userID, collection, docID, string(body), position, now.Format(timeFormat))
	return err
}

func getDocument(ctx context.Context, q querier, userID, collection, docID string) ([]byte, error) {
	var body string
	err := q.QueryRowContext(ctx,
		"SELECT body FROM documents WHERE user_id = ? AND collection = ? AND doc_id = ?",
		userID, collection, docID,
	).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.E(errs.KindNotFound, collection+" document "+docID+" not found", nil)
	}
	if err != nil {
		return nil, err
	}
	return []byte(body), nil
}

func listDocuments(ctx context.Context, q querier, userID, collection string) ([]document, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT doc_id, body FROM documents
		WHERE user_id = ? AND collection = ?
		ORDER BY position ASC, doc_id ASC
	`, userID, collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []document
	for rows.Next() {
		var d document
		var body string
		if err := rows.Scan(&d.id, &body); err != nil {
			return nil, err
		}
		d.body = []byte(body)
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// pruneDocuments deletes documents of a collection whose id is not in keep.
func pruneDocuments(ctx context.Context, tx *sql.Tx, userID, collection string, keep map[string]struct{}) error {
	docs, err := listDocuments(ctx, tx, userID, collection)
	if err != nil {
		return err
	}
	for _, d := range docs {
		if _, ok := keep[d.id]; ok {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM documents WHERE user_id = ? AND collection = ? AND doc_id = ?",
			userID, collection, d.id,
		); err != nil {
			return err
		}
	}
	return nil
}
