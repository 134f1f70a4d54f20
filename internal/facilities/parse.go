package facilities

import (
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/steveyegge/parkd/internal/errs"
	"github.com/steveyegge/parkd/internal/schema"
)

// ErrEmptyPayload is returned when a response decodes but holds no usable
// records.
var ErrEmptyPayload = errs.E(errs.KindMalformed, "facilities payload has no usable records", nil)

// hongKong is the zone of the upstream "lastupdate" wall-clock timestamps.
var hongKong = time.FixedZone("HKT", 8*60*60)

// Parse normalizes a payload into lots. It accepts a top-level array or an
// object with a "results" array, and both record shapes:
//
//	{"park_Id": "10", "name": {"en": "..."}, "privateCar": {"space": 120, "vacancy": 4}}
//	{"park_Id": "10", "name": "...", "vehicleTypes": [{"vehicleType": "privateCar", "spaces": 120}]}
//
// Records without an id or coordinates are dropped and counted in skipped.
func Parse(payload []byte, lang Lang) (lots []*schema.Lot, skipped int, err error) {
	if !gjson.ValidBytes(payload) {
		return nil, 0, errs.E(errs.KindMalformed, "facilities payload is not valid JSON", nil)
	}

	root := gjson.ParseBytes(payload)
	records := root
	if root.IsObject() {
		records = root.Get("results")
	}
	if !records.IsArray() {
		return nil, 0, ErrEmptyPayload
	}

	records.ForEach(func(_, rec gjson.Result) bool {
		lot, ok := parseRecord(rec, lang)
		if !ok {
			skipped++
			return true
		}
		lots = append(lots, lot)
		return true
	})

	if len(lots) == 0 {
		return nil, skipped, ErrEmptyPayload
	}
	return lots, skipped, nil
}

func parseRecord(rec gjson.Result, lang Lang) (*schema.Lot, bool) {
	id := firstString(rec, "park_Id", "park_id", "parkId", "id")
	lat := rec.Get("latitude")
	lon := rec.Get("longitude")
	if id == "" || lat.Type != gjson.Number || lon.Type != gjson.Number {
		return nil, false
	}
	if !validCoordinate(lat.Float(), lon.Float()) {
		return nil, false
	}

	lot := &schema.Lot{
		ID:        id,
		Name:      localizedName(rec.Get("name"), lang),
		Address:   firstString(rec, "displayAddress", "address"),
		Latitude:  lat.Float(),
		Longitude: lon.Float(),
	}
	if lot.Name == "" {
		lot.Name = "Unknown"
	}

	var ev *int
	if car := rec.Get("privateCar"); car.Exists() {
		ev = applyPrivateCar(lot, car)
	} else if vt := privateCarVehicleType(rec.Get("vehicleTypes")); vt.Exists() {
		ev = applyVehicleType(lot, vt)
	}

	if lot.PriceRules == "" {
		lot.PriceRules = rec.Get("remarks").String()
	}
	if lot.LastUpdated == nil {
		lot.LastUpdated = parseUpstreamTime(firstString(rec, "lastUpdated", "lastupdate"))
	}

	facilities := &schema.Facilities{}
	if phone := firstString(rec, "contactNo", "contactPhone"); phone != "" {
		facilities.ContactPhone = &phone
	}
	if ev != nil {
		facilities.EVChargers = &schema.EVChargers{Count: ev}
	}
	if facilities.ContactPhone != nil || facilities.EVChargers != nil {
		lot.Facilities = facilities
	}

	return lot, true
}

// localizedName handles both a plain string and an {en, zh, zh_CN} object,
// preferring the requested language and falling back to the others.
func localizedName(name gjson.Result, lang Lang) string {
	if name.Type == gjson.String {
		return name.String()
	}
	if !name.IsObject() {
		return ""
	}

	var order []string
	switch lang {
	case LangSimplifiedChinese:
		order = []string{"zh_CN", "zh", "en"}
	case LangTraditionalChinese:
		order = []string{"zh", "zh_CN", "en"}
	default:
		order = []string{"en", "zh", "zh_CN"}
	}
	return firstString(name, order...)
}

// applyPrivateCar reads the info/vacancy shape. privateCar is an object in
// info responses and an array of vacancy entries in vacancy responses.
func applyPrivateCar(lot *schema.Lot, car gjson.Result) *int {
	if car.IsArray() {
		first := car.Get("0")
		lot.AvailableSpaces = optionalInt(first.Get("vacancy"))
		lot.LastUpdated = parseUpstreamTime(first.Get("lastupdate").String())
		return nil
	}

	lot.TotalSpaces = optionalInt(car.Get("space"))
	lot.AvailableSpaces = optionalInt(car.Get("vacancy"))
	if lot.AvailableSpaces == nil {
		lot.AvailableSpaces = optionalInt(car.Get("vacancy.0.vacancy"))
	}

	if price := car.Get("hourlyCharges.0.price"); price.Type == gjson.Number {
		v := price.Float()
		lot.HourlyPrice = &v
		lot.PriceRules = fmt.Sprintf("Hourly $%s", formatAmount(v))
	}

	return optionalInt(car.Get("spaceEV"))
}

func privateCarVehicleType(types gjson.Result) gjson.Result {
	var found gjson.Result
	types.ForEach(func(_, vt gjson.Result) bool {
		if vt.Get("vehicleType").String() == "privateCar" {
			found = vt
			return false
		}
		return true
	})
	return found
}

// applyVehicleType reads the flattened vehicleTypes[] shape.
func applyVehicleType(lot *schema.Lot, vt gjson.Result) *int {
	lot.TotalSpaces = optionalInt(vt.Get("spaces"))
	lot.AvailableSpaces = optionalInt(vt.Get("availableSpaces"))
	lot.OpeningHours = vt.Get("openingHours").String()

	var parts []string
	if hourly := vt.Get("hourlyRate"); hourly.Type == gjson.Number {
		v := hourly.Float()
		lot.HourlyPrice = &v
		parts = append(parts, "Hourly $"+formatAmount(v))
	}
	if daily := vt.Get("dailyRate"); daily.Type == gjson.Number {
		parts = append(parts, "Daily $"+formatAmount(daily.Float()))
	}
	if monthly := vt.Get("monthlyRate"); monthly.Type == gjson.Number {
		parts = append(parts, "Monthly $"+formatAmount(monthly.Float()))
	}
	lot.PriceRules = strings.Join(parts, ", ")

	return optionalInt(vt.Get("evSpaces"))
}

func optionalInt(r gjson.Result) *int {
	if r.Type != gjson.Number {
		return nil
	}
	v := int(r.Int())
	if v < 0 {
		return nil
	}
	return &v
}

func firstString(r gjson.Result, paths ...string) string {
	for _, p := range paths {
		if v := r.Get(p); v.Type == gjson.String && v.String() != "" {
			return v.String()
		}
	}
	return ""
}

func formatAmount(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%.2f", v)
}

func parseUpstreamTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		t = t.UTC()
		return &t
	}
	if t, err := time.ParseInLocation("2006-01-02 15:04:05", s, hongKong); err == nil {
		t = t.UTC()
		return &t
	}
	return nil
}

func validCoordinate(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}
