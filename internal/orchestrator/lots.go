// Package orchestrator decides where lot listings come from: the local
// cache, the public facilities feed, or the bundled seed dataset.
//
// The decision is driven by cache age and connectivity:
//
//  1. a non-empty cache younger than the expiry is served without network;
//  2. offline, the cache is served regardless of age (empty is an error);
//  3. otherwise the feed is fetched and upserted. An empty or malformed
//     feed falls back to the seed dataset; a failed fetch falls back to
//     step 2 unless there is nothing cached.
package orchestrator

import (
	"context"
	"log"
	"os"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/steveyegge/parkd/internal/clock"
	"github.com/steveyegge/parkd/internal/db"
	"github.com/steveyegge/parkd/internal/errs"
	"github.com/steveyegge/parkd/internal/facilities"
	"github.com/steveyegge/parkd/internal/reachability"
	"github.com/steveyegge/parkd/internal/schema"
)

// DefaultExpiry is how long cached lots are served without refetching.
const DefaultExpiry = 24 * time.Hour

// Source names where a Result's lots came from.
type Source string

const (
	SourceCache  Source = "cache"
	SourceRemote Source = "remote"
	SourceSeed   Source = "seed"
)

// Result is the outcome of a lot load.
type Result struct {
	Lots     []*schema.Lot `json:"lots"`
	Source   Source        `json:"source"`
	Offline  bool          `json:"offline"`
	CachedAt *time.Time    `json:"cached_at,omitempty"`

	// RefreshErr is set when a fetch was attempted, failed, and the cache
	// was served instead.
	RefreshErr error `json:"-"`
}

// LotFetcher fetches the current listing. *remote.Client implements it.
type LotFetcher interface {
	FetchLots(ctx context.Context, lang facilities.Lang) ([]*schema.Lot, error)
}

// FetcherFunc adapts a function to LotFetcher.
type FetcherFunc func(ctx context.Context, lang facilities.Lang) ([]*schema.Lot, error)

// FetchLots implements LotFetcher.
func (f FetcherFunc) FetchLots(ctx context.Context, lang facilities.Lang) ([]*schema.Lot, error) {
	return f(ctx, lang)
}

// Config holds orchestrator settings.
type Config struct {
	Expiry time.Duration
	Lang   facilities.Lang
}

// Orchestrator serves lot listings. It is safe for concurrent use;
// concurrent fetches are collapsed into one.
type Orchestrator struct {
	cfg     Config
	store   db.Store
	fetcher LotFetcher
	network reachability.Observer
	clock   clock.Clock
	logger  *log.Logger
	seed    func() []*schema.Lot
	onLoad  func(*Result)

	group singleflight.Group
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock sets the clock used for cache age.
func WithClock(c clock.Clock) Option {
	return func(o *Orchestrator) { o.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithSeed replaces the bundled fallback dataset.
func WithSeed(seed func() []*schema.Lot) Option {
	return func(o *Orchestrator) { o.seed = seed }
}

// WithRefreshHook registers fn to run after every fetch that wrote the
// cache (remote or seed).
func WithRefreshHook(fn func(*Result)) Option {
	return func(o *Orchestrator) { o.onLoad = fn }
}

// New creates an orchestrator.
func New(cfg Config, store db.Store, fetcher LotFetcher, network reachability.Observer, opts ...Option) *Orchestrator {
	if cfg.Expiry <= 0 {
		cfg.Expiry = DefaultExpiry
	}
	if cfg.Lang == "" {
		cfg.Lang = facilities.LangEnglish
	}
	o := &Orchestrator{
		cfg:     cfg,
		store:   store,
		fetcher: fetcher,
		network: network,
		clock:   clock.NewRealClock(),
		logger:  log.New(os.Stderr, "[lots] ", log.LstdFlags),
		seed:    facilities.Seed,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// LoadLots returns lots from the cheapest source that satisfies the cache
// policy.
func (o *Orchestrator) LoadLots(ctx context.Context) (*Result, error) {
	return o.load(ctx, false)
}

// Refresh skips the freshness check and fetches if online.
func (o *Orchestrator) Refresh(ctx context.Context) (*Result, error) {
	return o.load(ctx, true)
}

// IsStale reports whether the cache is empty or older than the expiry.
func (o *Orchestrator) IsStale(ctx context.Context) bool {
	lots, ts := o.readCache(ctx)
	return !o.fresh(lots, ts)
}

func (o *Orchestrator) load(ctx context.Context, force bool) (*Result, error) {
	lots, ts := o.readCache(ctx)

	if !force && o.fresh(lots, ts) {
		return &Result{Lots: lots, Source: SourceCache, CachedAt: ts}, nil
	}

	if !o.network.Current().Connected {
		return offlineResult(lots, ts)
	}

	key := "load"
	if force {
		key = "refresh"
	}
	v, err, _ := o.group.Do(key, func() (interface{}, error) {
		return o.fetch(ctx, force)
	})
	if err != nil {
		if len(lots) == 0 {
			return nil, errs.Wrap(err, "failed to load lots")
		}
		o.logger.Printf("WARNING: refresh failed, serving %d cached lots: %v", len(lots), err)
		return &Result{
			Lots:       lots,
			Source:     SourceCache,
			Offline:    errs.IsKind(err, errs.KindNetwork),
			CachedAt:   ts,
			RefreshErr: err,
		}, nil
	}
	return v.(*Result), nil
}

// fetch runs at most once at a time per key.
func (o *Orchestrator) fetch(ctx context.Context, force bool) (*Result, error) {
	if !force {
		// Another caller may have refreshed while this one waited.
		if lots, ts := o.readCache(ctx); o.fresh(lots, ts) {
			return &Result{Lots: lots, Source: SourceCache, CachedAt: ts}, nil
		}
	}

	source := SourceRemote
	lots, err := o.fetcher.FetchLots(ctx, o.cfg.Lang)
	switch {
	case err == nil && len(lots) == 0,
		errs.Is(err, facilities.ErrEmptyPayload),
		errs.IsKind(err, errs.KindMalformed):
		if err != nil {
			o.logger.Printf("Feed unusable (%v), using bundled lots", err)
		} else {
			o.logger.Printf("Feed returned no lots, using bundled lots")
		}
		lots = o.seed()
		source = SourceSeed
	case err != nil:
		return nil, err
	}

	result := &Result{Lots: lots, Source: source}
	if err := o.store.UpsertLotsContext(ctx, lots); err != nil {
		// The listing is still good; it just won't survive a restart.
		o.logger.Printf("WARNING: failed to cache %d lots: %v", len(lots), err)
	} else {
		// Rows from earlier fetches stay cached and are served too.
		cached, ts := o.readCache(ctx)
		if len(cached) > 0 {
			result.Lots = cached
		}
		result.CachedAt = ts
		o.logger.Printf("Cached %d lots from %s", len(lots), source)
	}

	if o.onLoad != nil {
		o.onLoad(result)
	}
	return result, nil
}

func (o *Orchestrator) readCache(ctx context.Context) ([]*schema.Lot, *time.Time) {
	lots, err := o.store.LoadLotsContext(ctx)
	if err != nil {
		o.logger.Printf("WARNING: failed to read lot cache: %v", err)
		return nil, nil
	}
	ts, err := o.store.GetCacheTimestampContext(ctx)
	if err != nil {
		o.logger.Printf("WARNING: failed to read cache timestamp: %v", err)
		return lots, nil
	}
	return lots, ts
}

func (o *Orchestrator) fresh(lots []*schema.Lot, ts *time.Time) bool {
	if len(lots) == 0 || ts == nil {
		return false
	}
	return o.clock.Now().Sub(*ts) < o.cfg.Expiry
}

func offlineResult(lots []*schema.Lot, ts *time.Time) (*Result, error) {
	if len(lots) == 0 {
		return nil, errs.ErrNoDataOffline
	}
	return &Result{Lots: lots, Source: SourceCache, Offline: true, CachedAt: ts}, nil
}
