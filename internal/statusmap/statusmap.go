package statusmap

import "strings"

// Status is the internal device status enum.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusRunning    Status = "running"
	StatusError      Status = "error"
	StatusOutOfOrder Status = "out_of_order"
	StatusUnknown    Status = "unknown"
)

// vendorStatuses maps upstream status codes (uppercased) to internal statuses.
var vendorStatuses = map[string]Status{
	"AVAILABLE":    StatusIdle,
	"IN_USE":       StatusRunning,
	"END_OF_CYCLE": StatusIdle,
	"DIAGNOSTIC":   StatusOutOfOrder,
	"OUT_OF_ORDER": StatusOutOfOrder,
	"ERROR":        StatusError,
}

// Map translates a vendor status code into the internal status enum.
// Matching is case-insensitive; empty or unrecognized codes map to unknown.
func Map(vendorStatusID string) Status {
	if s, ok := vendorStatuses[strings.ToUpper(strings.TrimSpace(vendorStatusID))]; ok {
		return s
	}
	return StatusUnknown
}

// cycleNames maps vendor cycle labels in their source locales to the
// canonical English names shown to users.
var cycleNames = map[string]string{
	"Koud":         "Cold",
	"Koudwas":      "Cold Wash",
	"Bontwas":      "Colors",
	"Witwas":       "Whites",
	"Fijnwas":      "Delicates",
	"Wolwas":       "Wool",
	"Spoelen":      "Rinse",
	"Centrifuge":   "Spin",
	"Voorwas":      "Pre-Wash",
	"Kochwäsche":   "Hot Wash",
	"Buntwäsche":   "Colors",
	"Feinwäsche":   "Delicates",
	"Pflegeleicht": "Permanent Press",
	"Schleudern":   "Spin",
	"Extra Droog":  "Extra Dry",
	"Kastdroog":    "Cupboard Dry",
	"Strijkdroog":  "Iron Dry",
}

// TranslateCycleName returns the canonical English name for a vendor cycle
// label, passing unknown labels through unchanged.
func TranslateCycleName(name string) string {
	if translated, ok := cycleNames[name]; ok {
		return translated
	}
	return name
}
