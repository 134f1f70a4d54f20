package db

import (
	"context"
	"time"

	"github.com/steveyegge/parkd/internal/errs"
	"github.com/steveyegge/parkd/internal/schema"
)

// Store is the cache surface used by the orchestrator, reconciler and
// session manager. *DB and Unavailable implement it.
type Store interface {
	UpsertLotsContext(ctx context.Context, lots []*schema.Lot) error
	LoadLotsContext(ctx context.Context) ([]*schema.Lot, error)
	GetCacheTimestampContext(ctx context.Context) (*time.Time, error)

	ToggleFavoriteContext(ctx context.Context, userID, lotID string) (bool, int64, error)
	AddFavoriteContext(ctx context.Context, userID, lotID string) error
	IsFavoriteContext(ctx context.Context, userID, lotID string) (bool, error)
	ListFavoritesContext(ctx context.Context, userID string) ([]string, error)
	FavoriteVersionContext(ctx context.Context, userID, lotID string) (int64, error)

	UpsertReservationContext(ctx context.Context, r *schema.Reservation) error
	ReplaceReservationsContext(ctx context.Context, userID string, rs []*schema.Reservation) error
	ListReservationsContext(ctx context.Context, userID string) ([]*schema.Reservation, error)
	GetReservationContext(ctx context.Context, id string) (*schema.Reservation, error)
	ActiveReservationForSpotContext(ctx context.Context, spotID string) (*schema.Reservation, error)

	SaveProfileContext(ctx context.Context, p *schema.UserProfile) error
	LoadProfileContext(ctx context.Context) (*schema.UserProfile, error)
	ClearProfileContext(ctx context.Context) error

	CountsContext(ctx context.Context) (Counts, error)
	Close() error
}

var (
	_ Store = (*DB)(nil)
	_ Store = Unavailable{}
)

// Unavailable stands in for a cache that failed to open. Lot reads come back
// empty and lot writes are dropped, so listings still flow from the network.
// Everything user-scoped fails with errs.ErrStorageUnavailable.
type Unavailable struct{}

func (Unavailable) UpsertLotsContext(context.Context, []*schema.Lot) error {
	return errs.ErrStorageUnavailable
}

func (Unavailable) LoadLotsContext(context.Context) ([]*schema.Lot, error) {
	return nil, nil
}

func (Unavailable) GetCacheTimestampContext(context.Context) (*time.Time, error) {
	return nil, nil
}

func (Unavailable) ToggleFavoriteContext(context.Context, string, string) (bool, int64, error) {
	return false, 0, errs.ErrStorageUnavailable
}

func (Unavailable) AddFavoriteContext(context.Context, string, string) error {
	return errs.ErrStorageUnavailable
}

func (Unavailable) IsFavoriteContext(context.Context, string, string) (bool, error) {
	return false, errs.ErrStorageUnavailable
}

func (Unavailable) ListFavoritesContext(context.Context, string) ([]string, error) {
	return nil, errs.ErrStorageUnavailable
}

func (Unavailable) FavoriteVersionContext(context.Context, string, string) (int64, error) {
	return 0, errs.ErrStorageUnavailable
}

func (Unavailable) UpsertReservationContext(context.Context, *schema.Reservation) error {
	return errs.ErrStorageUnavailable
}

func (Unavailable) ReplaceReservationsContext(context.Context, string, []*schema.Reservation) error {
	return errs.ErrStorageUnavailable
}

func (Unavailable) ListReservationsContext(context.Context, string) ([]*schema.Reservation, error) {
	return nil, errs.ErrStorageUnavailable
}

func (Unavailable) GetReservationContext(context.Context, string) (*schema.Reservation, error) {
	return nil, errs.ErrStorageUnavailable
}

func (Unavailable) ActiveReservationForSpotContext(context.Context, string) (*schema.Reservation, error) {
	return nil, errs.ErrStorageUnavailable
}

func (Unavailable) SaveProfileContext(context.Context, *schema.UserProfile) error {
	return errs.ErrStorageUnavailable
}

func (Unavailable) LoadProfileContext(context.Context) (*schema.UserProfile, error) {
	return nil, nil
}

func (Unavailable) ClearProfileContext(context.Context) error {
	return nil
}

func (Unavailable) CountsContext(context.Context) (Counts, error) {
	return Counts{}, errs.ErrStorageUnavailable
}

func (Unavailable) Close() error {
	return nil
}
