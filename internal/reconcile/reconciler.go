package reconcile

import (
	"context"
	"log"
	"os"
	"sync"

	"github.com/steveyegge/parkd/internal/clock"
	"github.com/steveyegge/parkd/internal/db"
	"github.com/steveyegge/parkd/internal/errs"
	"github.com/steveyegge/parkd/internal/reachability"
)

// reconciler implements the Reconciler interface.
type reconciler struct {
	store    db.Store
	remote   Remote
	network  reachability.Observer
	sessions Sessions
	notifier Notifier
	clock    clock.Clock
	logger   *log.Logger

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// Option configures a Reconciler.
type Option func(*reconciler)

// WithClock sets the clock used for reservation timestamps.
func WithClock(c clock.Clock) Option {
	return func(r *reconciler) { r.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(r *reconciler) { r.logger = l }
}

// WithNotifier sends change notifications to n.
func WithNotifier(n Notifier) Option {
	return func(r *reconciler) { r.notifier = n }
}

// WithSessions enables session-triggered reconciliation in Run.
func WithSessions(s Sessions) Option {
	return func(r *reconciler) { r.sessions = s }
}

// New creates a Reconciler.
//
// The store must have its schema initialized.
//
// Example:
//
//	rec := reconcile.New(cache, client, monitor, reconcile.WithSessions(sessions))
//	go rec.Run(ctx)
//	on, err := rec.ToggleFavorite(ctx, userID, "tdc-1")
func New(store db.Store, remote Remote, network reachability.Observer, opts ...Option) Reconciler {
	r := &reconciler{
		store:   store,
		remote:  remote,
		network: network,
		clock:   clock.NewRealClock(),
		logger:  log.New(os.Stderr, "[reconcile] ", log.LstdFlags),
		locks:   make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ToggleFavorite implements Reconciler.ToggleFavorite.
func (r *reconciler) ToggleFavorite(ctx context.Context, userID, lotID string) (bool, error) {
	if userID == "" {
		return false, errs.ErrNotLoggedIn
	}

	unlock := r.lock("fav:" + userID + "/" + lotID)
	on, version, err := r.store.ToggleFavoriteContext(ctx, userID, lotID)
	unlock()
	if err != nil {
		return false, errs.Wrapf(err, "failed to toggle favorite %s", lotID)
	}
	r.notify(MsgFavoritesChanged, favoriteChange{UserID: userID, LotID: lotID, Favorite: on})

	if !r.online() {
		r.logger.Printf("Offline: favorite %s saved locally", lotID)
		return on, nil
	}

	pushErr := r.pushFavorites(ctx, userID)
	if pushErr == nil {
		return on, nil
	}

	current := r.rollbackToggle(ctx, userID, lotID, version)
	return current, errs.Wrapf(pushErr, "failed to sync favorite %s", lotID)
}

// rollbackToggle undoes the toggle that produced version, unless the edge
// has been toggled again since. It returns the resulting membership.
func (r *reconciler) rollbackToggle(ctx context.Context, userID, lotID string, version int64) bool {
	unlock := r.lock("fav:" + userID + "/" + lotID)
	defer unlock()

	// Rollback uses a fresh context: the caller's may be what failed.
	ctx = context.WithoutCancel(ctx)

	latest, err := r.store.FavoriteVersionContext(ctx, userID, lotID)
	if err != nil {
		r.logger.Printf("WARNING: cannot read favorite version for rollback: %v", err)
		on, _ := r.store.IsFavoriteContext(ctx, userID, lotID)
		return on
	}
	if latest != version {
		r.logger.Printf("Favorite %s toggled again (v%d > v%d), keeping newer state", lotID, latest, version)
		on, _ := r.store.IsFavoriteContext(ctx, userID, lotID)
		return on
	}

	on, _, err := r.store.ToggleFavoriteContext(ctx, userID, lotID)
	if err != nil {
		r.logger.Printf("WARNING: failed to roll back favorite %s: %v", lotID, err)
		on, _ = r.store.IsFavoriteContext(ctx, userID, lotID)
		return on
	}
	r.logger.Printf("Rolled back favorite %s after failed push", lotID)
	r.notify(MsgFavoritesChanged, favoriteChange{UserID: userID, LotID: lotID, Favorite: on})
	return on
}

func (r *reconciler) pushFavorites(ctx context.Context, userID string) error {
	ids, err := r.store.ListFavoritesContext(ctx, userID)
	if err != nil {
		return err
	}
	return r.remote.SyncFavorites(ctx, userID, ids)
}

// SyncFavorites implements Reconciler.SyncFavorites.
func (r *reconciler) SyncFavorites(ctx context.Context, userID string) error {
	local, err := r.store.ListFavoritesContext(ctx, userID)
	if err != nil {
		return errs.Wrap(err, "failed to read local favorites")
	}
	remote, err := r.remote.FetchFavorites(ctx, userID)
	if err != nil {
		return errs.Wrap(err, "failed to fetch remote favorites")
	}

	missing, union := MergeFavorites(local, remote)
	for _, id := range missing {
		if err := r.store.AddFavoriteContext(ctx, userID, id); err != nil {
			return errs.Wrapf(err, "failed to add favorite %s locally", id)
		}
	}

	if err := r.remote.SyncFavorites(ctx, userID, union); err != nil {
		return errs.Wrap(err, "failed to push merged favorites")
	}

	r.logger.Printf("Synced favorites for %s: %d local, %d remote, %d merged", userID, len(local), len(remote), len(union))
	if len(missing) > 0 {
		r.notify(MsgFavoritesChanged, map[string]interface{}{"user_id": userID, "added": missing})
	}
	return nil
}

// SyncReservations implements Reconciler.SyncReservations.
func (r *reconciler) SyncReservations(ctx context.Context, userID string) error {
	local, err := r.store.ListReservationsContext(ctx, userID)
	if err != nil {
		return errs.Wrap(err, "failed to read local reservations")
	}
	remote, err := r.remote.FetchReservations(ctx, userID)
	if err != nil {
		return errs.Wrap(err, "failed to fetch remote reservations")
	}

	merged := MergeReservations(local, remote)
	if err := r.store.ReplaceReservationsContext(ctx, userID, merged); err != nil {
		return errs.Wrap(err, "failed to store merged reservations")
	}

	r.logger.Printf("Synced reservations for %s: %d local, %d remote, %d merged", userID, len(local), len(remote), len(merged))
	r.notify(MsgReservationsChanged, map[string]interface{}{"user_id": userID, "count": len(merged)})
	return nil
}

// ReconcileUser implements Reconciler.ReconcileUser.
func (r *reconciler) ReconcileUser(ctx context.Context, userID string) {
	if userID == "" || !r.online() {
		return
	}

	failed := 0
	if err := r.SyncFavorites(ctx, userID); err != nil {
		r.logger.Printf("WARNING: favorites reconciliation failed: %v", err)
		failed++
	}
	if err := r.SyncReservations(ctx, userID); err != nil {
		r.logger.Printf("WARNING: reservations reconciliation failed: %v", err)
		failed++
	}
	r.notify(MsgSyncComplete, map[string]interface{}{"user_id": userID, "failed": failed})
}

func (r *reconciler) online() bool {
	return r.network.Current().Connected
}

// lock serializes work on one key and returns the unlock function.
func (r *reconciler) lock(key string) func() {
	r.locksMu.Lock()
	mu, ok := r.locks[key]
	if !ok {
		mu = &sync.Mutex{}
		r.locks[key] = mu
	}
	r.locksMu.Unlock()

	mu.Lock()
	return mu.Unlock
}

func (r *reconciler) notify(msgType string, data interface{}) {
	if r.notifier != nil {
		r.notifier.Publish(msgType, data)
	}
}

type favoriteChange struct {
	UserID   string `json:"user_id"`
	LotID    string `json:"lot_id"`
	Favorite bool   `json:"favorite"`
}
