package reachability

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/steveyegge/parkd/internal/clock"
)

// Config holds monitor settings.
type Config struct {
	// Root is the interface directory. Defaults to DefaultSysfsRoot.
	Root string
	// RecheckInterval bounds how stale the status can get. operstate flips
	// do not produce inotify events, so the monitor also polls.
	RecheckInterval time.Duration
}

// DefaultConfig returns the default monitor configuration.
func DefaultConfig() Config {
	return Config{
		Root:            DefaultSysfsRoot,
		RecheckInterval: 2 * time.Second,
	}
}

// Monitor watches the interface directory and publishes status changes.
type Monitor struct {
	cfg    Config
	clock  clock.Clock
	logger *log.Logger
	hub    hub

	mu      sync.Mutex
	current Status
	running bool
	cancel  context.CancelFunc
	watcher *fsnotify.Watcher
	wg      sync.WaitGroup
}

// NewMonitor creates a monitor. It must be started with Start.
func NewMonitor(cfg Config, logger *log.Logger) *Monitor {
	if cfg.Root == "" {
		cfg.Root = DefaultSysfsRoot
	}
	if cfg.RecheckInterval <= 0 {
		cfg.RecheckInterval = 2 * time.Second
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[reachability] ", log.LstdFlags)
	}
	return &Monitor{
		cfg:     cfg,
		clock:   clock.NewRealClock(),
		logger:  logger,
		current: Status{Transport: TransportUnknown},
	}
}

// SetClock replaces the clock used for ChangedAt. Call before Start.
func (m *Monitor) SetClock(c clock.Clock) {
	m.clock = c
}

// Start probes once and then keeps the status current until ctx is done
// or Stop is called.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("monitor already running")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := watcher.Add(m.cfg.Root); err != nil {
		// Polling still works without directory events.
		m.logger.Printf("WARNING: cannot watch %s: %v (polling only)", m.cfg.Root, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	m.watcher = watcher
	m.cancel = cancel
	m.running = true
	m.mu.Unlock()

	m.Refresh()

	m.wg.Add(1)
	go m.loop(ctx)

	return nil
}

// Stop ends monitoring and closes every subscription. It blocks until the
// background goroutine has exited.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	cancel := m.cancel
	watcher := m.watcher
	m.mu.Unlock()

	cancel()
	err := watcher.Close()
	m.wg.Wait()
	m.hub.closeAll()

	if err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}

// Current implements Observer.
func (m *Monitor) Current() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Subscribe implements Observer.
func (m *Monitor) Subscribe() (<-chan Status, func()) {
	return m.hub.subscribe()
}

// Refresh probes now, publishing if the status changed, and returns the
// resulting status.
func (m *Monitor) Refresh() Status {
	next, err := Probe(m.cfg.Root)
	if err != nil {
		m.logger.Printf("WARNING: %v", err)
	}

	m.mu.Lock()
	if m.current.sameState(next) {
		cur := m.current
		m.mu.Unlock()
		return cur
	}
	next.ChangedAt = m.clock.Now()
	prev := m.current
	m.current = next
	m.mu.Unlock()

	m.logger.Printf("Network %s -> %s", prev, next)
	m.hub.publish(next)
	return next
}

func (m *Monitor) loop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.RecheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			m.Refresh()

		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Write) {
				m.Refresh()
			}

		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			m.logger.Printf("WARNING: watcher error: %v", err)
		}
	}
}
