package app

import (
	"context"
	"sync"
	"time"

	"github.com/steveyegge/parkd/internal/errs"
	"github.com/steveyegge/parkd/internal/feed"
	"github.com/steveyegge/parkd/internal/reachability"
)

// lotsCheckInterval is how often the daemon asks the orchestrator for
// lots. The orchestrator only fetches when the cache has expired.
const lotsCheckInterval = 15 * time.Minute

// Run keeps the App alive until ctx is cancelled:
//
//  1. starts the reachability monitor
//  2. serves the UI feed and attaches it as the notification sink
//  3. runs the reconciler on reconnects and sign-ins
//  4. loads lots at startup, on reconnect and periodically
//
// started, if non-nil, is called with the feed once it is listening.
func (a *App) Run(ctx context.Context, started func(*feed.Server)) error {
	a.logger.Println("Starting daemon")

	if a.monitor != nil {
		if err := a.monitor.Start(ctx); err != nil {
			return errs.Wrap(err, "failed to start reachability monitor")
		}
		defer a.monitor.Stop()
	}

	server := feed.NewServer(feed.Config{Addr: a.Config.Feed.Addr, Logger: a.Logs.For("feed")}, feed.Deps{
		Lots:       a.Lots,
		Store:      a.Store,
		Reconciler: a.Reconciler,
		Users:      a.Sessions,
		Searcher:   a.Searcher,
		Network:    a.Network,
	})
	if err := server.Start(); err != nil {
		return err
	}
	a.notifier.attach(server)
	defer a.notifier.attach(nil)
	if started != nil {
		started(server)
	}

	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := a.Reconciler.Run(ctx); err != nil && !errs.Is(err, context.Canceled) {
			a.logger.Printf("Reconciler stopped: %v", err)
		}
	}()
	go func() {
		defer wg.Done()
		a.watchLots(ctx)
	}()

	<-ctx.Done()
	a.logger.Println("Shutdown signal received")
	cancel()

	err := server.Stop()
	wg.Wait()
	a.logger.Println("Daemon stopped")
	return err
}

func (a *App) watchLots(ctx context.Context) {
	changes, unsubscribe := a.Network.Subscribe()
	defer unsubscribe()

	ticker := time.NewTicker(lotsCheckInterval)
	defer ticker.Stop()

	a.loadLots(ctx)
	wasConnected := a.Network.Current().Connected

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.loadLots(ctx)
		case st, ok := <-changes:
			if !ok {
				return
			}
			if st.Connected && !wasConnected {
				a.loadLots(ctx)
			}
			wasConnected = st.Connected
		}
	}
}

func (a *App) loadLots(ctx context.Context) {
	res, err := a.Lots.LoadLots(ctx)
	switch {
	case err != nil:
		a.logger.Printf("Lots unavailable: %v", err)
	case res.RefreshErr != nil:
		a.logger.Printf("Serving %d cached lots, refresh failed: %v", len(res.Lots), res.RefreshErr)
	default:
		a.logger.Printf("Serving %d lots from %s", len(res.Lots), res.Source)
	}
}

// Status summarizes the App for the status command.
type Status struct {
	Network      reachability.Status `json:"network" yaml:"network"`
	Degraded     bool                `json:"degraded" yaml:"degraded"`
	CachePath    string              `json:"cache_path" yaml:"cache_path"`
	Lots         int                 `json:"lots" yaml:"lots"`
	Favorites    int                 `json:"favorites" yaml:"favorites"`
	Reservations int                 `json:"reservations" yaml:"reservations"`
	CachedAt     *time.Time          `json:"cached_at,omitempty" yaml:"cached_at,omitempty"`
	Stale        bool                `json:"stale" yaml:"stale"`
	UserID       string              `json:"user_id,omitempty" yaml:"user_id,omitempty"`
}

// Status reports connectivity, cache contents and the signed-in user.
func (a *App) Status(ctx context.Context) (*Status, error) {
	st := &Status{
		Network:   a.Network.Current(),
		Degraded:  a.Degraded,
		CachePath: a.Config.Cache.Path,
		UserID:    a.Sessions.UserID(),
		Stale:     true,
	}
	if a.Degraded {
		return st, nil
	}
	counts, err := a.Store.CountsContext(ctx)
	if err != nil {
		return nil, err
	}
	st.Lots = counts.Lots
	st.Favorites = counts.Favorites
	st.Reservations = counts.Reservations
	if st.CachedAt, err = a.Store.GetCacheTimestampContext(ctx); err != nil {
		return nil, err
	}
	st.Stale = a.Lots.IsStale(ctx)
	return st, nil
}
