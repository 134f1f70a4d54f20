package reconcile

import (
	"context"
	"time"

	"github.com/steveyegge/parkd/internal/schema"
	"github.com/steveyegge/parkd/internal/session"
)

// Reconciler applies user mutations locally first and converges the cache
// with the backend.
type Reconciler interface {
	// ToggleFavorite flips the favorite edge for (userID, lotID) and returns
	// the resulting membership.
	//
	// The local toggle is durable before anything else happens. Offline,
	// that is all. Online, the full local set is pushed; if the push fails
	// the toggle is undone, but only when no newer toggle of the same edge
	// has happened since, and a typed error is returned.
	ToggleFavorite(ctx context.Context, userID, lotID string) (bool, error)

	// SyncFavorites unions local and remote favorites, adds remote-only ids
	// to the cache and overwrites the remote set with the union.
	SyncFavorites(ctx context.Context, userID string) error

	// SyncReservations merges remote reservations into the cache with
	// remote-wins semantics. Nothing is pushed.
	SyncReservations(ctx context.Context, userID string) error

	// CreateReservation books spotID from start for duration.
	//
	// Fails with errs.ErrSpotTaken when the cache already holds an active
	// reservation for the spot. The cost is the spot's hourly price times
	// the booked hours. The reservation is saved locally and, when online,
	// the full local list is pushed. A failed push is logged, not returned.
	CreateReservation(ctx context.Context, userID, spotID string, start time.Time, duration time.Duration) (*schema.Reservation, error)

	// CancelReservation marks an active reservation cancelled.
	CancelReservation(ctx context.Context, userID, reservationID string) (*schema.Reservation, error)

	// CompleteReservation marks an active reservation completed and sets
	// its end time to now.
	CompleteReservation(ctx context.Context, userID, reservationID string) (*schema.Reservation, error)

	// ReconcileUser runs SyncFavorites then SyncReservations, logging and
	// swallowing failures. It does nothing offline.
	ReconcileUser(ctx context.Context, userID string)

	// Run reconciles on connectivity and session changes until ctx is done.
	Run(ctx context.Context) error
}

// Remote is the backend surface the reconciler needs. *remote.Client
// implements it.
type Remote interface {
	FetchFavorites(ctx context.Context, userID string) ([]string, error)
	SyncFavorites(ctx context.Context, userID string, ids []string) error
	FetchReservations(ctx context.Context, userID string) ([]*schema.Reservation, error)
	SyncReservations(ctx context.Context, userID string, rs []*schema.Reservation) error
}

// Sessions is the session surface Run listens to. *session.Manager
// implements it.
type Sessions interface {
	UserID() string
	Subscribe() (<-chan session.Event, func())
}

// Notifier receives change notifications for the UI feed.
type Notifier interface {
	Publish(msgType string, data interface{})
}

// Notification types sent to a Notifier.
const (
	MsgFavoritesChanged    = "favorites_changed"
	MsgReservationsChanged = "reservations_changed"
	MsgSyncComplete        = "sync_complete"
)
