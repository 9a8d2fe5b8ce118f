// Package units provides shared physical constants and conversions for
// kinematics quantities.
package units

// Unit constants for measured model parameters.
const (
	Rsun    = "rsun" // lengths: heights and radii in solar radii
	Degrees = "deg"  // angles: tilt, half-angle, kappa
	KmPerS  = "kms"  // derived speeds
)

// ValidUnits contains all valid parameter unit values.
var ValidUnits = []string{Rsun, Degrees, KmPerS}

// IsValid checks if the given unit is in the list of valid units.
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// Physical constants.
const (
	// KmPerRsun is the IAU nominal solar radius in kilometres.
	KmPerRsun = 695700.0

	// SecondsPerDay converts day-resolution time offsets to seconds.
	SecondsPerDay = 86400.0

	// RsunPerDayToKmPerS converts a rate in solar radii per day to km/s.
	// Fit derivatives come out in Rsun/day because the time axis is in days.
	RsunPerDayToKmPerS = KmPerRsun / SecondsPerDay
)

// SpeedKmPerS converts a rate expressed in solar radii per day to km/s.
func SpeedKmPerS(rsunPerDay float64) float64 {
	return rsunPerDay * RsunPerDayToKmPerS
}
