// Package units provides shared constants and conversions for the length and
// angle units used on the controller wire and inside the simulator.
package units

import "math"

// TwoPi is a full turn in radians.
const TwoPi = 2 * math.Pi

// DTOR converts degrees to radians.
func DTOR(deg float64) float64 {
	return deg * math.Pi / 180
}

// RTOD converts radians to degrees.
func RTOD(rad float64) float64 {
	return rad * 180 / math.Pi
}

// MetersToMillimeters converts a length in meters to millimeters.
func MetersToMillimeters(m float64) float64 {
	return m * 1000
}

// MillimetersToMeters converts a length in millimeters to meters.
func MillimetersToMeters(mm float64) float64 {
	return mm / 1000
}

// NormalizeRadians wraps a into [0, 2π), including angles more than one turn
// negative.
func NormalizeRadians(a float64) float64 {
	a = math.Mod(a, TwoPi)
	if a < 0 {
		a += TwoPi
	}
	// a may round up to exactly 2π when it was a tiny negative number.
	if a >= TwoPi {
		a = 0
	}
	return a
}

// NormalizeDegrees wraps d into [0, 360).
func NormalizeDegrees(d float64) float64 {
	d = math.Mod(d, 360)
	if d < 0 {
		d += 360
	}
	if d >= 360 {
		d = 0
	}
	return d
}
