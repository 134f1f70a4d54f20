package facilities

import (
	_ "embed"
	"fmt"

	"github.com/steveyegge/parkd/internal/schema"
)

//go:embed seed.json
var seedJSON []byte

// Seed returns a fresh copy of the bundled five-lot dataset, used when the
// upstream answers with nothing usable.
func Seed() []*schema.Lot {
	lots, err := schema.ParseLots(seedJSON)
	if err != nil {
		panic(fmt.Sprintf("facilities: bundled seed is invalid: %v", err))
	}
	return lots
}
