package geocode

import (
	"context"
	"strings"

	"github.com/steveyegge/parkd/internal/errs"
)

// Static is a fixed-table Geocoder. Forward matches entries whose title
// contains the text, case-insensitively, in table order.
type Static struct {
	Places []Candidate
}

// Forward implements Geocoder.
func (s *Static) Forward(ctx context.Context, text string) ([]Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, errs.E(errs.KindNetwork, "geocoding canceled", err)
	}

	needle := strings.ToLower(strings.TrimSpace(text))
	if needle == "" {
		return nil, nil
	}

	var out []Candidate
	for _, p := range s.Places {
		if strings.Contains(strings.ToLower(p.Title), needle) {
			out = append(out, p)
			if len(out) == MaxCandidates {
				break
			}
		}
	}
	return out, nil
}

// Reverse implements Geocoder by returning the nearest table entry.
func (s *Static) Reverse(ctx context.Context, at Coordinate) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", errs.E(errs.KindNetwork, "geocoding canceled", err)
	}
	if len(s.Places) == 0 {
		return "", errs.E(errs.KindNotFound, "no place at "+at.String(), nil)
	}

	best := s.Places[0]
	bestDist := Distance(at, best.Coordinate)
	for _, p := range s.Places[1:] {
		if d := Distance(at, p.Coordinate); d < bestDist {
			best, bestDist = p, d
		}
	}
	return best.Title, nil
}
