package schema

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestLot_Validate(t *testing.T) {
	tests := []struct {
		name    string
		lot     Lot
		wantErr bool
		errMsg  string
	}{
		{
			name: "valid lot",
			lot:  Lot{ID: "1", Name: "Central Parking", Latitude: 22.2819, Longitude: 114.1556},
		},
		{
			name:    "missing id",
			lot:     Lot{Name: "Central Parking"},
			wantErr: true,
			errMsg:  "id is required",
		},
		{
			name:    "missing name",
			lot:     Lot{ID: "1"},
			wantErr: true,
			errMsg:  "name is required",
		},
		{
			name:    "latitude out of range",
			lot:     Lot{ID: "1", Name: "x", Latitude: 91},
			wantErr: true,
			errMsg:  "latitude must be between -90 and 90 (got 91.000000)",
		},
		{
			name:    "negative available",
			lot:     Lot{ID: "1", Name: "x", AvailableSpaces: IntPtr(-1)},
			wantErr: true,
			errMsg:  "available_spaces must not be negative (got -1)",
		},
		{
			name: "available above total is allowed",
			lot:  Lot{ID: "1", Name: "x", TotalSpaces: IntPtr(5), AvailableSpaces: IntPtr(9)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.lot.Validate()
			if tt.wantErr {
				if err == nil {
					t.Errorf("Validate() expected error, got nil")
				} else if err.Error() != tt.errMsg {
					t.Errorf("Validate() error = %q, want %q", err.Error(), tt.errMsg)
				}
			} else if err != nil {
				t.Errorf("Validate() unexpected error: %v", err)
			}
		})
	}
}

func TestLot_Availability(t *testing.T) {
	tests := []struct {
		name      string
		lot       Lot
		vacancies int
		available bool
		text      string
	}{
		{"unknown", Lot{TotalSpaces: IntPtr(100)}, 0, false, "Unknown"},
		{"full", Lot{TotalSpaces: IntPtr(100), AvailableSpaces: IntPtr(0)}, 0, false, "0/100"},
		{"open", Lot{TotalSpaces: IntPtr(100), AvailableSpaces: IntPtr(7)}, 7, true, "7/100"},
		{"no total", Lot{AvailableSpaces: IntPtr(3)}, 3, true, "3/?"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.lot.Vacancies(); got != tt.vacancies {
				t.Errorf("Vacancies() = %d, want %d", got, tt.vacancies)
			}
			if got := tt.lot.HasAvailableSpaces(); got != tt.available {
				t.Errorf("HasAvailableSpaces() = %v, want %v", got, tt.available)
			}
			if got := tt.lot.AvailabilityText(); got != tt.text {
				t.Errorf("AvailabilityText() = %q, want %q", got, tt.text)
			}
		})
	}
}

func TestLot_FacilityFlags(t *testing.T) {
	lot := Lot{Facilities: &Facilities{
		EVChargers: &EVChargers{Count: IntPtr(0)},
		Covered:    BoolPtr(true),
		CCTV:       BoolPtr(false),
	}}

	if lot.HasEV() {
		t.Error("HasEV() = true for zero chargers")
	}
	if !lot.IsCovered() {
		t.Error("IsCovered() = false, want true")
	}
	if lot.HasCCTV() {
		t.Error("HasCCTV() = true for explicit false")
	}

	var bare Lot
	if bare.HasEV() || bare.IsCovered() || bare.HasCCTV() {
		t.Error("lot without facilities reported a facility")
	}
}

func TestLotsFile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "lots.json")
	updated := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	lots := []*Lot{
		{
			ID:              "1",
			Name:            "Central Parking",
			Address:         "123 Queen's Road Central",
			Latitude:        22.2819,
			Longitude:       114.1556,
			TotalSpaces:     IntPtr(200),
			AvailableSpaces: IntPtr(45),
			HourlyPrice:     FloatPtr(25),
			Facilities: &Facilities{
				EVChargers:   &EVChargers{Count: IntPtr(10), Types: []string{"Type 2"}},
				ContactPhone: StringPtr("+852 2111 1111"),
			},
			LastUpdated: TimePtr(updated),
			CachedAt:    updated,
		},
	}

	if err := WriteLotsFile(path, lots); err != nil {
		t.Fatalf("WriteLotsFile() failed: %v", err)
	}

	got, err := ReadLotsFile(path)
	if err != nil {
		t.Fatalf("ReadLotsFile() failed: %v", err)
	}
	if diff := cmp.Diff(lots, got); diff != "" {
		t.Errorf("lots mismatch (-want +got):\n%s", diff)
	}
}

func TestReadLotsFile_Invalid(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
	}{
		{"not json", "{"},
		{"null entry", "[null]"},
		{"missing id", `[{"name":"x"}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".json")
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatal(err)
			}
			if _, err := ReadLotsFile(path); err == nil {
				t.Error("ReadLotsFile() expected error, got nil")
			}
		})
	}

	if _, err := ReadLotsFile(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("ReadLotsFile() on missing file expected error")
	}
}
