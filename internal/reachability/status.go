// Package reachability observes the host's network path and publishes
// connectivity changes to subscribers.
package reachability

import (
	"fmt"
	"sync"
	"time"
)

// Transport is a coarse classification of the active network path.
type Transport string

// Transport classes.
const (
	TransportUnknown         Transport = "unknown"
	TransportLocalArea       Transport = "local-area"
	TransportWideAreaMetered Transport = "wide-area-metered"
	TransportWired           Transport = "wired"
)

// Status is a snapshot of connectivity.
type Status struct {
	Connected bool      `json:"connected"`
	Transport Transport `json:"transport"`
	Interface string    `json:"interface,omitempty"`
	ChangedAt time.Time `json:"changed_at"`
}

func (s Status) String() string {
	if !s.Connected {
		return "offline"
	}
	if s.Interface == "" {
		return fmt.Sprintf("online (%s)", s.Transport)
	}
	return fmt.Sprintf("online (%s via %s)", s.Transport, s.Interface)
}

// sameState ignores ChangedAt.
func (s Status) sameState(o Status) bool {
	return s.Connected == o.Connected && s.Transport == o.Transport && s.Interface == o.Interface
}

// Observer is what consumers need from a monitor.
type Observer interface {
	// Current returns the latest status.
	Current() Status
	// Subscribe returns a channel of status changes and a function that
	// unsubscribes and closes the channel.
	Subscribe() (<-chan Status, func())
}

// hub fans status changes out to subscribers. A slow subscriber only ever
// loses intermediate states; the newest one is always delivered.
type hub struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan Status
}

func (h *hub) subscribe() (<-chan Status, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.subs == nil {
		h.subs = make(map[int]chan Status)
	}
	id := h.nextID
	h.nextID++
	ch := make(chan Status, 4)
	h.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if c, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(c)
			}
		})
	}
}

func (h *hub) publish(s Status) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, ch := range h.subs {
		select {
		case ch <- s:
			continue
		default:
		}
		// Full: drop the oldest queued state to make room.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- s:
		default:
		}
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}

// Static is an Observer whose status is set by hand. It backs --offline and
// tests.
type Static struct {
	hub hub

	mu     sync.Mutex
	status Status
}

// NewStatic creates a Static observer with an initial status.
func NewStatic(initial Status) *Static {
	return &Static{status: initial}
}

// Online is a connected Static observer.
func Online() *Static {
	return NewStatic(Status{Connected: true, Transport: TransportUnknown})
}

// Offline is a disconnected Static observer.
func Offline() *Static {
	return NewStatic(Status{Transport: TransportUnknown})
}

// Current implements Observer.
func (s *Static) Current() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Subscribe implements Observer.
func (s *Static) Subscribe() (<-chan Status, func()) {
	return s.hub.subscribe()
}

// Set replaces the status and notifies subscribers if it changed.
func (s *Static) Set(status Status) {
	s.mu.Lock()
	changed := !s.status.sameState(status)
	if changed && status.ChangedAt.IsZero() {
		status.ChangedAt = time.Now()
	}
	if changed {
		s.status = status
	}
	s.mu.Unlock()

	if changed {
		s.hub.publish(status)
	}
}

// SetConnected is Set with only the connectivity flag changed.
func (s *Static) SetConnected(connected bool) {
	s.mu.Lock()
	next := s.status
	s.mu.Unlock()

	next.Connected = connected
	next.ChangedAt = time.Time{}
	s.Set(next)
}
