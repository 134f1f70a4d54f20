package schema

// Spot is a single reservable parking space.
type Spot struct {
	ID           string   `json:"id"`
	Number       string   `json:"number"`
	Floor        int      `json:"floor"`
	Latitude     float64  `json:"latitude"`
	Longitude    float64  `json:"longitude"`
	PricePerHour float64  `json:"price_per_hour"`
	Features     []string `json:"features,omitempty"`
}

var spotCatalog = []Spot{
	{ID: "A-101", Number: "A-101", Floor: 1, Latitude: 22.3193, Longitude: 114.1694, PricePerHour: 15, Features: []string{"Covered", "Near Elevator"}},
	{ID: "A-102", Number: "A-102", Floor: 1, Latitude: 22.3194, Longitude: 114.1695, PricePerHour: 15, Features: []string{"Covered"}},
	{ID: "A-103", Number: "A-103", Floor: 1, Latitude: 22.3195, Longitude: 114.1696, PricePerHour: 15, Features: []string{"Covered", "EV Charging"}},
	{ID: "B-201", Number: "B-201", Floor: 2, Latitude: 22.3196, Longitude: 114.1697, PricePerHour: 12},
	{ID: "B-202", Number: "B-202", Floor: 2, Latitude: 22.3197, Longitude: 114.1698, PricePerHour: 12, Features: []string{"Handicap"}},
	{ID: "C-301", Number: "C-301", Floor: 3, Latitude: 22.3198, Longitude: 114.1699, PricePerHour: 10},
	{ID: "C-302", Number: "C-302", Floor: 3, Latitude: 22.3199, Longitude: 114.1700, PricePerHour: 10, Features: []string{"EV Charging"}},
}

// Spots returns a copy of the built-in spot catalog ordered by number.
func Spots() []Spot {
	out := make([]Spot, len(spotCatalog))
	copy(out, spotCatalog)
	return out
}

// FindSpot looks a spot up by id.
func FindSpot(id string) (Spot, bool) {
	for _, s := range spotCatalog {
		if s.ID == id {
			return s, true
		}
	}
	return Spot{}, false
}
