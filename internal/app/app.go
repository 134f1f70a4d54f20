// Package app wires the parkd components together.
//
// New builds every collaborator once and hands them to each other
// explicitly. One-shot commands use the App directly; Run keeps it alive
// as a daemon with the monitor, the reconciler and the UI feed running.
package app

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/steveyegge/parkd/internal/config"
	"github.com/steveyegge/parkd/internal/db"
	"github.com/steveyegge/parkd/internal/errs"
	"github.com/steveyegge/parkd/internal/facilities"
	"github.com/steveyegge/parkd/internal/feed"
	"github.com/steveyegge/parkd/internal/geocode"
	"github.com/steveyegge/parkd/internal/logging"
	"github.com/steveyegge/parkd/internal/orchestrator"
	"github.com/steveyegge/parkd/internal/query"
	"github.com/steveyegge/parkd/internal/reachability"
	"github.com/steveyegge/parkd/internal/reconcile"
	"github.com/steveyegge/parkd/internal/remote"
	"github.com/steveyegge/parkd/internal/session"
)

// Options adjust how New builds the App.
type Options struct {
	// Offline forces a static offline network regardless of config.
	Offline bool
	// Network replaces the sysfs monitor.
	Network reachability.Observer
	// Logs replaces the logs opened from config. The App does not close
	// logs it did not open.
	Logs *logging.Logs
}

// App holds the wired components.
type App struct {
	Config     *config.Config
	Logs       *logging.Logs
	Store      db.Store
	Degraded   bool
	Remote     *remote.Client
	Network    reachability.Observer
	Sessions   *session.Manager
	Reconciler reconcile.Reconciler
	Lots       *orchestrator.Orchestrator
	Searcher   *query.Searcher

	monitor  *reachability.Monitor
	notifier *relay
	ownsLogs bool
	logger   *log.Logger
}

// New builds the App. A cache that cannot be opened degrades to an
// unavailable store instead of failing; a backend that cannot be
// configured is an error.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	a := &App{Config: cfg, Logs: opts.Logs, notifier: &relay{}}
	if a.Logs == nil {
		logs, err := logging.Open(logging.Config{
			File:       cfg.Log.File,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAgeDays: cfg.Log.MaxAgeDays,
			Quiet:      cfg.Log.Quiet,
		})
		if err != nil {
			return nil, errs.Wrap(err, "failed to open log file")
		}
		a.Logs = logs
		a.ownsLogs = true
	}
	a.logger = a.Logs.For("app")

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		a.logger.Printf("WARNING: cannot create %s: %v", cfg.DataDir, err)
	}

	a.Store = a.openStore(ctx)
	a.Network = a.openNetwork(opts)

	src := facilities.NewSource(cfg.Facilities.URL, cfg.Facilities.Timeout)
	src.Logger = a.Logs.For("facilities")

	client, err := remote.Open(remote.Config{
		URL:       cfg.Remote.URL,
		AuthToken: cfg.Remote.AuthToken,
		Driver:    cfg.Remote.Driver,
		Timeout:   cfg.Remote.Timeout,
	}, src, remote.WithLogger(a.Logs.For("remote")))
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Remote = client
	if a.Network.Current().Connected {
		if err := client.InitSchema(ctx); err != nil {
			a.logger.Printf("WARNING: backend schema not initialized: %v", err)
		}
	}

	a.Sessions = session.NewManager(a.Store, client, a.Network,
		session.FileTokenStore{Path: cfg.Session.TokenPath}, a.Logs.For("session"))
	if _, err := a.Sessions.Restore(ctx); err != nil {
		a.logger.Printf("WARNING: session not restored: %v", err)
	}

	a.Reconciler = reconcile.New(a.Store, client, a.Network,
		reconcile.WithLogger(a.Logs.For("reconcile")),
		reconcile.WithNotifier(a.notifier),
		reconcile.WithSessions(a.Sessions))

	a.Lots = orchestrator.New(orchestrator.Config{Expiry: cfg.Cache.Expiry, Lang: cfg.Lang()},
		a.Store, client, a.Network,
		orchestrator.WithLogger(a.Logs.For("lots")),
		orchestrator.WithRefreshHook(func(r *orchestrator.Result) {
			a.notifier.Publish(string(feed.MessageTypeLotsRefreshed), map[string]interface{}{
				"source": r.Source,
				"count":  len(r.Lots),
			})
		}))

	a.Searcher = query.NewSearcher(a.geocoder())
	return a, nil
}

func (a *App) openStore(ctx context.Context) db.Store {
	path := a.Config.Cache.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		a.logger.Printf("WARNING: cache directory unavailable, running without a cache: %v", err)
		a.Degraded = true
		return db.Unavailable{}
	}
	store, err := db.Open(path, db.WithLogger(a.Logs.For("db")))
	if err != nil {
		a.logger.Printf("WARNING: cache unavailable, running without a cache: %v", err)
		a.Degraded = true
		return db.Unavailable{}
	}
	if err := store.InitSchemaContext(ctx); err != nil {
		a.logger.Printf("WARNING: cache schema failed, running without a cache: %v", err)
		_ = store.Close()
		a.Degraded = true
		return db.Unavailable{}
	}
	return store
}

func (a *App) openNetwork(opts Options) reachability.Observer {
	switch {
	case opts.Network != nil:
		return opts.Network
	case opts.Offline || a.Config.Offline:
		return reachability.Offline()
	}
	a.monitor = reachability.NewMonitor(reachability.Config{
		Root:            a.Config.Reachability.Root,
		RecheckInterval: a.Config.Reachability.RecheckInterval,
	}, a.Logs.For("reachability"))
	a.monitor.Refresh()
	return a.monitor
}

// geocoder returns the place resolver. The seed lots stand in for the
// network geocoder while offline or when it is disabled.
func (a *App) geocoder() geocode.Geocoder {
	local := &geocode.Static{}
	for _, lot := range facilities.Seed() {
		local.Places = append(local.Places, geocode.Candidate{
			Title:      lot.Name,
			Coordinate: geocode.Coordinate{Latitude: lot.Latitude, Longitude: lot.Longitude},
		})
	}
	if !a.Config.Geocoder.Enabled {
		return local
	}
	online := geocode.NewNominatim(a.Config.Geocoder.URL, a.Config.Geocoder.UserAgent, a.Config.Geocoder.Timeout)
	return &switchingGeocoder{online: online, offline: local, network: a.Network}
}

// Close releases the backend, the cache and any logs the App opened.
func (a *App) Close() error {
	var first error
	if a.Remote != nil {
		if err := a.Remote.Close(); err != nil && first == nil {
			first = err
		}
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil && first == nil {
			first = err
		}
	}
	if a.ownsLogs {
		if err := a.Logs.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// relay forwards reconciler and orchestrator notifications to the feed
// once the daemon attaches one. Without a sink they are dropped.
type relay struct {
	mu   sync.RWMutex
	sink reconcile.Notifier
}

func (r *relay) attach(n reconcile.Notifier) {
	r.mu.Lock()
	r.sink = n
	r.mu.Unlock()
}

// Publish implements reconcile.Notifier.
func (r *relay) Publish(msgType string, data interface{}) {
	r.mu.RLock()
	sink := r.sink
	r.mu.RUnlock()
	if sink != nil {
		sink.Publish(msgType, data)
	}
}

// switchingGeocoder routes to the network geocoder only while connected.
type switchingGeocoder struct {
	online  geocode.Geocoder
	offline geocode.Geocoder
	network reachability.Observer
}

func (g *switchingGeocoder) pick() geocode.Geocoder {
	if g.network.Current().Connected {
		return g.online
	}
	return g.offline
}

func (g *switchingGeocoder) Forward(ctx context.Context, text string) ([]geocode.Candidate, error) {
	return g.pick().Forward(ctx, text)
}

func (g *switchingGeocoder) Reverse(ctx context.Context, at geocode.Coordinate) (string, error) {
	return g.pick().Reverse(ctx, at)
}
