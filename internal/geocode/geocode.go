// Package geocode resolves free-text places to coordinates and back.
package geocode

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/steveyegge/parkd/internal/errs"
)

// MaxCandidates is the most candidates Forward returns.
const MaxCandidates = 5

// DefaultNominatimURL is the public OpenStreetMap Nominatim endpoint.
const DefaultNominatimURL = "https://nominatim.openstreetmap.org"

// Coordinate is a WGS84 point.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (c Coordinate) String() string {
	return fmt.Sprintf("%.5f,%.5f", c.Latitude, c.Longitude)
}

// ParseCoordinate parses "lat,lon".
func ParseCoordinate(s string) (Coordinate, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return Coordinate{}, fmt.Errorf("coordinate %q must be lat,lon", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return Coordinate{}, fmt.Errorf("invalid latitude in %q: %w", s, err)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return Coordinate{}, fmt.Errorf("invalid longitude in %q: %w", s, err)
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return Coordinate{}, fmt.Errorf("coordinate %q out of range", s)
	}
	return Coordinate{Latitude: lat, Longitude: lon}, nil
}

// Candidate is one ranked forward-geocoding result.
type Candidate struct {
	Title      string     `json:"title"`
	Coordinate Coordinate `json:"coordinate"`
}

// Geocoder resolves places. Implementations must abort promptly when ctx
// is canceled.
type Geocoder interface {
	// Forward returns up to MaxCandidates places matching text, best first.
	Forward(ctx context.Context, text string) ([]Candidate, error)
	// Reverse returns a display name for a coordinate.
	Reverse(ctx context.Context, at Coordinate) (string, error)
}

// Nominatim queries a Nominatim server.
type Nominatim struct {
	BaseURL   string
	UserAgent string
	Client    *http.Client
}

// NewNominatim creates a client for baseURL ("" selects the public server).
func NewNominatim(baseURL, userAgent string, timeout time.Duration) *Nominatim {
	if baseURL == "" {
		baseURL = DefaultNominatimURL
	}
	return &Nominatim{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		UserAgent: userAgent,
		Client:    &http.Client{Timeout: timeout},
	}
}

// Forward implements Geocoder.
func (n *Nominatim) Forward(ctx context.Context, text string) ([]Candidate, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	q := url.Values{}
	q.Set("format", "jsonv2")
	q.Set("limit", strconv.Itoa(MaxCandidates))
	q.Set("q", text)

	body, err := n.get(ctx, "/search", q)
	if err != nil {
		return nil, err
	}

	results := gjson.ParseBytes(body)
	if !results.IsArray() {
		return nil, errs.E(errs.KindMalformed, "geocoder search response is not an array", nil)
	}

	var out []Candidate
	results.ForEach(func(_, r gjson.Result) bool {
		lat, errLat := strconv.ParseFloat(r.Get("lat").String(), 64)
		lon, errLon := strconv.ParseFloat(r.Get("lon").String(), 64)
		if errLat != nil || errLon != nil {
			return true
		}
		out = append(out, Candidate{
			Title:      r.Get("display_name").String(),
			Coordinate: Coordinate{Latitude: lat, Longitude: lon},
		})
		return len(out) < MaxCandidates
	})
	return out, nil
}

// Reverse implements Geocoder.
func (n *Nominatim) Reverse(ctx context.Context, at Coordinate) (string, error) {
	q := url.Values{}
	q.Set("format", "jsonv2")
	q.Set("lat", strconv.FormatFloat(at.Latitude, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(at.Longitude, 'f', -1, 64))

	body, err := n.get(ctx, "/reverse", q)
	if err != nil {
		return "", err
	}

	name := gjson.GetBytes(body, "display_name")
	if !name.Exists() {
		return "", errs.E(errs.KindNotFound, "no place at "+at.String(), nil)
	}
	return name.String(), nil
}

func (n *Nominatim) get(ctx context.Context, path string, q url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.BaseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build geocoder request: %w", err)
	}
	if n.UserAgent != "" {
		req.Header.Set("User-Agent", n.UserAgent)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := n.Client.Do(req)
	if err != nil {
		return nil, errs.E(errs.KindNetwork, "geocoder request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errs.Transport(resp.StatusCode, "geocoder request rejected")
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errs.E(errs.KindNetwork, "failed to read geocoder response", err)
	}
	if !gjson.ValidBytes(body) {
		return nil, errs.E(errs.KindMalformed, "geocoder response is not valid JSON", nil)
	}
	return body, nil
}
