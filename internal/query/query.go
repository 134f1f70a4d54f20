// Package query filters, searches and ranks a lot listing.
//
// Apply is a pure function over a snapshot of lots. Searcher holds the
// stateful part of search: the geocoded reference point that replaces the
// live location when the search text matches no lot by name or address.
package query

import (
	"fmt"
	"sort"
	"strings"

	"github.com/steveyegge/parkd/internal/geocode"
	"github.com/steveyegge/parkd/internal/schema"
)

// SortKey selects the ranking.
type SortKey string

// Sort keys. SortNone keeps input order.
const (
	SortNone     SortKey = ""
	SortDistance SortKey = "distance"
	SortVacancy  SortKey = "vacancy"
	SortName     SortKey = "name"
)

// ParseSortKey validates a user-supplied sort key.
func ParseSortKey(s string) (SortKey, error) {
	switch k := SortKey(strings.ToLower(strings.TrimSpace(s))); k {
	case SortNone, SortDistance, SortVacancy, SortName:
		return k, nil
	}
	return SortNone, fmt.Errorf("invalid sort key %q (must be one of: distance, vacancy, name)", s)
}

// Filters are ANDed together; a false field is inactive.
type Filters struct {
	EV        bool `json:"ev"`
	Covered   bool `json:"covered"`
	CCTV      bool `json:"cctv"`
	Available bool `json:"available"`
	Favorites bool `json:"favorites"`
}

// Params is one query over a lot listing.
type Params struct {
	Search      string
	Filters     Filters
	FavoriteIDs map[string]struct{}
	Sort        SortKey

	// Location is the live device position, if known.
	Location *geocode.Coordinate
	// SearchLocation is the geocoded position of Search, if resolved.
	SearchLocation *geocode.Coordinate
}

// Apply returns the lots matching p, ranked by p.Sort. The input slice is
// not modified.
//
// Search is a case-insensitive substring match on name and address. When it
// matches nothing and SearchLocation is set, the whole listing is kept and
// distances are measured from SearchLocation; with no SearchLocation the
// result is empty.
func Apply(lots []*schema.Lot, p Params) []*schema.Lot {
	pool, reference := resolveSearch(lots, p)

	out := make([]*schema.Lot, 0, len(pool))
	for _, lot := range pool {
		if matchesFilters(lot, p.Filters, p.FavoriteIDs) {
			out = append(out, lot)
		}
	}

	sortLots(out, p.Sort, reference)
	return out
}

// Matches reports whether any lot matches text by name or address.
func Matches(lots []*schema.Lot, text string) bool {
	needle := strings.ToLower(strings.TrimSpace(text))
	if needle == "" {
		return true
	}
	for _, lot := range lots {
		if matchesText(lot, needle) {
			return true
		}
	}
	return false
}

func resolveSearch(lots []*schema.Lot, p Params) ([]*schema.Lot, *geocode.Coordinate) {
	needle := strings.ToLower(strings.TrimSpace(p.Search))
	if needle == "" {
		return lots, p.Location
	}

	var matches []*schema.Lot
	for _, lot := range lots {
		if matchesText(lot, needle) {
			matches = append(matches, lot)
		}
	}

	switch {
	case len(matches) > 0:
		return matches, p.Location
	case p.SearchLocation != nil:
		return lots, p.SearchLocation
	default:
		return nil, nil
	}
}

func matchesText(lot *schema.Lot, needle string) bool {
	return strings.Contains(strings.ToLower(lot.Name), needle) ||
		strings.Contains(strings.ToLower(lot.Address), needle)
}

func matchesFilters(lot *schema.Lot, f Filters, favorites map[string]struct{}) bool {
	if f.EV && !lot.HasEV() {
		return false
	}
	if f.Covered && !lot.IsCovered() {
		return false
	}
	if f.CCTV && !lot.HasCCTV() {
		return false
	}
	if f.Available && !lot.HasAvailableSpaces() {
		return false
	}
	if f.Favorites {
		if _, ok := favorites[lot.ID]; !ok {
			return false
		}
	}
	return true
}

// sortLots ranks in place. Every ordering is stable so ties keep input order.
func sortLots(lots []*schema.Lot, key SortKey, reference *geocode.Coordinate) {
	switch key {
	case SortDistance:
		if reference == nil {
			// Without a reference no pair compares less; input order stands.
			return
		}
		dist := make(map[*schema.Lot]float64, len(lots))
		for _, lot := range lots {
			dist[lot] = geocode.Distance(*reference, geocode.Coordinate{Latitude: lot.Latitude, Longitude: lot.Longitude})
		}
		sort.SliceStable(lots, func(i, j int) bool {
			return dist[lots[i]] < dist[lots[j]]
		})
	case SortVacancy:
		sort.SliceStable(lots, func(i, j int) bool {
			return lots[i].Vacancies() > lots[j].Vacancies()
		})
	case SortName:
		sort.SliceStable(lots, func(i, j int) bool {
			return lots[i].Name < lots[j].Name
		})
	}
}

// FavoriteSet builds a membership set from a list of lot ids.
func FavoriteSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
