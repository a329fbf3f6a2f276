// Package money implements minor-unit currency arithmetic for the loyalty
// engine. All amounts are int64 minor units (cents for USD).
package money

import (
	"math"
	"strconv"
	"strings"
)

// RoundHalfUp rounds v to the nearest integer, with ties away from zero.
// Half-up is the documented rounding mode for all payout and bonus math: it
// matches what the per-unit price display shows a clerk at intake.
func RoundHalfUp(v float64) int64 {
	if v >= 0 {
		return int64(math.Floor(v + 0.5))
	}
	return int64(math.Ceil(v - 0.5))
}

// ApplyPercent returns amount × pct/100 rounded half-up.
func ApplyPercent(amount int64, pct float64) int64 {
	return RoundHalfUp(float64(amount) * pct / 100)
}

// ApplyRate returns amount × rate rounded half-up, where rate is a fraction
// such as a category's base payout fraction or a condition modifier.
func ApplyRate(amount int64, rate float64) int64 {
	return RoundHalfUp(float64(amount) * rate)
}

// ClampPercent parses a discount percentage and clamps anything outside
// (0, max] to zero. Checkout paths use this so a misconfigured promotion
// disables itself instead of failing the sale.
func ClampPercent(raw string, max float64) float64 {
	pct, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0
	}
	return ClampPercentValue(pct, max)
}

// ClampPercentValue clamps a numeric percentage to zero outside (0, max].
func ClampPercentValue(pct, max float64) float64 {
	if max <= 0 || max > 100 {
		max = 100
	}
	if pct <= 0 || pct > max {
		return 0
	}
	return pct
}
