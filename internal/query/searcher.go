package query

import (
	"context"
	"strings"
	"sync"

	"github.com/steveyegge/parkd/internal/errs"
	"github.com/steveyegge/parkd/internal/geocode"
	"github.com/steveyegge/parkd/internal/schema"
)

// ErrSuperseded is returned by Update when a newer Update or Select was
// issued before its geocoding finished. Its result was discarded.
var ErrSuperseded = errs.New("search superseded by a newer request")

// Searcher tracks search text and its geocoded reference point. The most
// recently issued request always wins: starting a new one cancels the
// previous geocode, and a response that arrives late is dropped.
type Searcher struct {
	geocoder geocode.Geocoder

	mu          sync.Mutex
	text        string
	generation  uint64
	cancel      context.CancelFunc
	suggestions []geocode.Candidate
	resolved    *geocode.Coordinate
}

// NewSearcher creates a Searcher backed by g.
func NewSearcher(g geocode.Geocoder) *Searcher {
	return &Searcher{geocoder: g}
}

// Update sets the search text. When the text matches no lot it is geocoded
// and the first candidate becomes the reference point. Clearing the text
// drops any geocoded reference.
func (s *Searcher) Update(ctx context.Context, text string, lots []*schema.Lot) error {
	s.mu.Lock()
	s.generation++
	gen := s.generation
	s.stopLocked()
	s.text = text

	trimmed := strings.TrimSpace(text)
	if trimmed == "" || Matches(lots, trimmed) {
		s.suggestions = nil
		s.resolved = nil
		s.mu.Unlock()
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	candidates, err := s.geocoder.Forward(ctx, trimmed)
	cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation {
		return ErrSuperseded
	}
	s.cancel = nil

	if err != nil {
		s.suggestions = nil
		s.resolved = nil
		return errs.Wrapf(err, "failed to geocode %q", trimmed)
	}

	if len(candidates) > geocode.MaxCandidates {
		candidates = candidates[:geocode.MaxCandidates]
	}
	s.suggestions = candidates
	s.resolved = nil
	if len(candidates) > 0 {
		c := candidates[0].Coordinate
		s.resolved = &c
	}
	return nil
}

// Select pins a suggestion as the reference point, superseding any geocode
// in flight.
func (s *Searcher) Select(c geocode.Candidate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	s.stopLocked()
	coord := c.Coordinate
	s.resolved = &coord
}

// Clear resets the text and drops the geocoded reference.
func (s *Searcher) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	s.stopLocked()
	s.text = ""
	s.suggestions = nil
	s.resolved = nil
}

// Text returns the current search text.
func (s *Searcher) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text
}

// Suggestions returns up to five geocoding candidates for the current text.
func (s *Searcher) Suggestions() []geocode.Candidate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]geocode.Candidate(nil), s.suggestions...)
}

// Resolved returns the geocoded reference point, if any.
func (s *Searcher) Resolved() *geocode.Coordinate {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resolved == nil {
		return nil
	}
	c := *s.resolved
	return &c
}

// Params fills Search and SearchLocation of base from the current state.
func (s *Searcher) Params(base Params) Params {
	s.mu.Lock()
	defer s.mu.Unlock()

	base.Search = s.text
	base.SearchLocation = nil
	if s.resolved != nil {
		c := *s.resolved
		base.SearchLocation = &c
	}
	return base
}

// Apply runs Apply with the searcher's state merged into base.
func (s *Searcher) Apply(lots []*schema.Lot, base Params) []*schema.Lot {
	return Apply(lots, s.Params(base))
}

func (s *Searcher) stopLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}
