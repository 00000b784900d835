// Package util provides common utility functions for price calculations.
package util

import (
	"math"

	"github.com/shopspring/decimal"
)

// RoundToTick rounds x to the nearest multiple of |tick|, ties away from
// zero. The division runs in decimal so that prices like 1.235 tie
// correctly. NaN, infinities and a zero tick return x unchanged.
func RoundToTick(x, tick float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) || tick == 0 || math.IsNaN(tick) || math.IsInf(tick, 0) {
		return x
	}
	t := decimal.NewFromFloat(math.Abs(tick))
	rounded, _ := decimal.NewFromFloat(x).Div(t).Round(0).Mul(t).Float64()
	return rounded
}
