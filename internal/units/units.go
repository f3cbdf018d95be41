// Package units provides shared constants and validation for speed units
package units

// Unit constants
const (
	KMH = "kmh"
	KPH = "kph"
	MPH = "mph"
	MPS = "mps"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{KMH, KPH, MPH, MPS}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return "kmh, kph, mph, mps"
}

// ConvertSpeed converts a speed from km/h to the target units.
// The estimation pipeline computes speeds in km/h.
func ConvertSpeed(speedKmh float64, targetUnits string) float64 {
	switch targetUnits {
	case MPH:
		return speedKmh * 0.621371192 // km/h to mph
	case MPS:
		return speedKmh / 3.6 // km/h to m/s
	case KMH, KPH:
		return speedKmh // no conversion needed
	default:
		return speedKmh // default to km/h if unknown unit
	}
}
