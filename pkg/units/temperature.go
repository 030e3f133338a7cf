// Package units provides temperature conversions and DST-aware local-day
// windows shared by every component that touches forecasts or brackets.
package units

import "math"

// KToC converts Kelvin to Celsius.
func KToC(k float64) float64 {
	return k - 273.15
}

// CToK converts Celsius to Kelvin.
func CToK(c float64) float64 {
	return c + 273.15
}

// CToF converts Celsius to Fahrenheit.
func CToF(c float64) float64 {
	return c*9/5 + 32
}

// FToC converts Fahrenheit to Celsius.
func FToC(f float64) float64 {
	return (f - 32) * 5 / 9
}

// KToF converts Kelvin to Fahrenheit.
func KToF(k float64) float64 {
	return CToF(KToC(k))
}

// FToK converts Fahrenheit to Kelvin.
func FToK(f float64) float64 {
	return CToK(FToC(f))
}

// RoundF rounds a fractional °F to the whole degree using the venue's
// resolution convention: fractions of exactly .5 round up.
func RoundF(f float64) int {
	return int(math.Floor(f + 0.5))
}
