package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Lot is a snapshot of one parking facility.
type Lot struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Address   string  `json:"address"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`

	// nil means unknown, not zero
	TotalSpaces     *int `json:"total_spaces,omitempty"`
	AvailableSpaces *int `json:"available_spaces,omitempty"`

	OpeningHours string   `json:"opening_hours,omitempty"`
	PriceRules   string   `json:"price_rules,omitempty"`
	HourlyPrice  *float64 `json:"hourly_price,omitempty"`

	Facilities *Facilities `json:"facilities,omitempty"`

	// LastUpdated is server-origin; CachedAt is stamped locally on every write.
	LastUpdated *time.Time `json:"last_updated,omitempty"`
	CachedAt    time.Time  `json:"cached_at"`
}

// Facilities holds independently optional facility flags.
type Facilities struct {
	EVChargers   *EVChargers `json:"ev_chargers,omitempty"`
	Covered      *bool       `json:"covered,omitempty"`
	CCTV         *bool       `json:"cctv,omitempty"`
	ContactPhone *string     `json:"contact_phone,omitempty"`
}

// EVChargers describes charging points. Count 0 and nil both mean
// "not advertised".
type EVChargers struct {
	Count *int     `json:"count,omitempty"`
	Types []string `json:"types,omitempty"`
}

// Validate checks the fields every stored lot must have.
func (l *Lot) Validate() error {
	if l.ID == "" {
		return fmt.Errorf("id is required")
	}
	if l.Name == "" {
		return fmt.Errorf("name is required")
	}
	if l.Latitude < -90 || l.Latitude > 90 {
		return fmt.Errorf("latitude must be between -90 and 90 (got %f)", l.Latitude)
	}
	if l.Longitude < -180 || l.Longitude > 180 {
		return fmt.Errorf("longitude must be between -180 and 180 (got %f)", l.Longitude)
	}
	if l.TotalSpaces != nil && *l.TotalSpaces < 0 {
		return fmt.Errorf("total_spaces must not be negative (got %d)", *l.TotalSpaces)
	}
	if l.AvailableSpaces != nil && *l.AvailableSpaces < 0 {
		return fmt.Errorf("available_spaces must not be negative (got %d)", *l.AvailableSpaces)
	}
	return nil
}

// EVCount returns the advertised charger count, 0 when unknown.
func (l *Lot) EVCount() int {
	if l.Facilities == nil || l.Facilities.EVChargers == nil || l.Facilities.EVChargers.Count == nil {
		return 0
	}
	return *l.Facilities.EVChargers.Count
}

// HasEV reports whether the lot advertises at least one charger.
func (l *Lot) HasEV() bool {
	return l.EVCount() > 0
}

// IsCovered reports an explicit covered=true.
func (l *Lot) IsCovered() bool {
	return l.Facilities != nil && l.Facilities.Covered != nil && *l.Facilities.Covered
}

// HasCCTV reports an explicit cctv=true.
func (l *Lot) HasCCTV() bool {
	return l.Facilities != nil && l.Facilities.CCTV != nil && *l.Facilities.CCTV
}

// Vacancies returns available spaces with unknown treated as zero.
func (l *Lot) Vacancies() int {
	if l.AvailableSpaces == nil {
		return 0
	}
	return *l.AvailableSpaces
}

// HasAvailableSpaces reports a known, positive vacancy count. Availability is
// never inferred from TotalSpaces.
func (l *Lot) HasAvailableSpaces() bool {
	return l.AvailableSpaces != nil && *l.AvailableSpaces > 0
}

// AvailabilityText renders "available/total" or "Unknown".
func (l *Lot) AvailabilityText() string {
	if l.AvailableSpaces != nil && l.TotalSpaces != nil {
		return fmt.Sprintf("%d/%d", *l.AvailableSpaces, *l.TotalSpaces)
	}
	if l.AvailableSpaces != nil {
		return fmt.Sprintf("%d/?", *l.AvailableSpaces)
	}
	return "Unknown"
}

// ReadLotsFile reads a JSON array of lots. Invalid entries fail the read.
func ReadLotsFile(path string) ([]*Lot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read lots file %s: %w", path, err)
	}
	return ParseLots(data)
}

// ParseLots decodes and validates a JSON array of lots.
func ParseLots(data []byte) ([]*Lot, error) {
	var lots []*Lot
	if err := json.Unmarshal(data, &lots); err != nil {
		return nil, fmt.Errorf("failed to parse lots: %w", err)
	}
	for i, lot := range lots {
		if lot == nil {
			return nil, fmt.Errorf("lot %d is null", i)
		}
		if err := lot.Validate(); err != nil {
			return nil, fmt.Errorf("invalid lot %d: %w", i, err)
		}
	}
	return lots, nil
}

// WriteLotsFile writes lots as pretty-printed JSON, creating the directory.
func WriteLotsFile(path string, lots []*Lot) error {
	for _, lot := range lots {
		if err := lot.Validate(); err != nil {
			return fmt.Errorf("cannot write invalid lot %s: %w", lot.ID, err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create lots directory: %w", err)
	}

	data, err := json.MarshalIndent(lots, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal lots: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write lots file %s: %w", path, err)
	}
	return nil
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int { return &v }

// FloatPtr returns a pointer to v.
func FloatPtr(v float64) *float64 { return &v }

// BoolPtr returns a pointer to v.
func BoolPtr(v bool) *bool { return &v }

// StringPtr returns a pointer to v.
func StringPtr(v string) *string { return &v }

// TimePtr returns a pointer to v.
func TimePtr(v time.Time) *time.Time { return &v }
