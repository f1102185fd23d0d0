// Package units provides the speed-unit conversion used by the API output
// surface. The pipeline itself always works in metres per second.
package units

// Valid unit identifiers accepted by the API `units=` query parameter.
const (
	MPS  = "mps"
	MPH  = "mph"
	KMPH = "kmph"
	KPH  = "kph"
)

// ValidUnits contains all accepted unit values.
var ValidUnits = []string{MPS, MPH, KMPH, KPH}

// IsValid reports whether unit is an accepted unit identifier.
func IsValid(unit string) bool {
	for _, v := range ValidUnits {
		if unit == v {
			return true
		}
	}
	return false
}

// ValidUnitsString returns the accepted units for error messages.
func ValidUnitsString() string {
	return "mps, mph, kmph, kph"
}

// ConvertSpeed converts a speed from metres per second to the target unit.
// Unknown units fall back to m/s.
func ConvertSpeed(speedMPS float64, targetUnits string) float64 {
	switch targetUnits {
	case MPH:
		return speedMPS * 2.2369362920544
	case KMPH, KPH:
		return speedMPS * 3.6
	default:
		return speedMPS
	}
}
