package schema

import (
	"fmt"
	"time"
)

// FavoriteEdge marks lot LotID as a favorite of UserID.
type FavoriteEdge struct {
	UserID    string    `json:"user_id"`
	LotID     string    `json:"lot_id"`
	CreatedAt time.Time `json:"created_at"`

	// Version is bumped on every toggle of this (user, lot) pair, including
	// removals, so a stale compensating toggle can detect newer user input.
	Version int64 `json:"version"`
}

// Validate checks that both ends of the edge are set.
func (f *FavoriteEdge) Validate() error {
	if f.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if f.LotID == "" {
		return fmt.Errorf("lot_id is required")
	}
	return nil
}
