// Package strategy holds the pure decision logic shared by the live
// collector and the backtest harness: bucketing, consensus, confidence
// lookup, signal classification and the trade lifecycle rules.
package strategy

import (
	"fmt"
	"math"

	"github.com/alanyoungcy/weatherbot/internal/domain"
)

// fahrenheitBand is the width of a Fahrenheit settlement bucket.
const fahrenheitBand = 2.0

// roundHalfUp rounds to the nearest integer with exact halves going up
// (14.5 -> 15, -2.5 -> -2).
func roundHalfUp(v float64) float64 {
	return math.Floor(v + 0.5)
}

// Bucket maps a temperature to the market's settlement label.
//
// Celsius markets settle on the whole degree ("15°C"). Fahrenheit markets
// settle on two-degree bands anchored at even integers, so 72.1 and 73.9 are
// both "72 to 73°F" and 74.0 is "74 to 75°F".
func Bucket(value float64, unit domain.Unit) (string, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return "", fmt.Errorf("strategy: bucket %v: %w", value, domain.ErrInvalidInput)
	}
	switch unit {
	case domain.Celsius:
		return fmt.Sprintf("%d°C", int(roundHalfUp(value))), nil
	case domain.Fahrenheit:
		band := int(math.Floor(value/fahrenheitBand) * fahrenheitBand)
		return fmt.Sprintf("%d to %d°F", band, band+1), nil
	default:
		return "", fmt.Errorf("strategy: bucket unit %q: %w", unit, domain.ErrInvalidInput)
	}
}

// BoundaryDistance returns how far value sits from the rounding point of its
// bucket. Celsius measures |v - round(v)|; Fahrenheit measures the distance
// to the nearest even integer.
func BoundaryDistance(value float64, unit domain.Unit) (float64, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("strategy: boundary distance %v: %w", value, domain.ErrInvalidInput)
	}
	switch unit {
	case domain.Celsius:
		return math.Abs(value - roundHalfUp(value)), nil
	case domain.Fahrenheit:
		m := math.Mod(value, fahrenheitBand)
		if m < 0 {
			m += fahrenheitBand
		}
		return min(m, fahrenheitBand-m), nil
	default:
		return 0, fmt.Errorf("strategy: boundary distance unit %q: %w", unit, domain.ErrInvalidInput)
	}
}
