package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoundHalfUp(t *testing.T) {
	assert.Equal(t, int64(3), RoundHalfUp(2.5))
	assert.Equal(t, int64(2), RoundHalfUp(2.4))
	assert.Equal(t, int64(2), RoundHalfUp(1.5))
	assert.Equal(t, int64(-3), RoundHalfUp(-2.5))
	assert.Equal(t, int64(0), RoundHalfUp(0))
}

func TestApplyPercent(t *testing.T) {
	// 10% of $100.00
	assert.Equal(t, int64(1000), ApplyPercent(10000, 10))
	// 12.5% of $0.99 = 12.375 cents, rounds to 12
	assert.Equal(t, int64(12), ApplyPercent(99, 12.5))
	// 12.5% of $1.00 = 12.5 cents, rounds to 13
	assert.Equal(t, int64(13), ApplyPercent(100, 12.5))
	assert.Equal(t, int64(0), ApplyPercent(10000, 0))
}

func TestApplyRate(t *testing.T) {
	// $20.00 × 0.60 payout × 0.85 modifier = $10.20
	assert.Equal(t, int64(1020), ApplyRate(2000, 0.60*0.85))
	// never negative for valid non-negative inputs
	assert.GreaterOrEqual(t, ApplyRate(1, 0.001), int64(0))
}

func TestClampPercent(t *testing.T) {
	assert.Equal(t, float64(10), ClampPercent("10", 100))
	assert.Equal(t, float64(0), ClampPercent("150", 100))
	assert.Equal(t, float64(0), ClampPercent("-10", 100))
	assert.Equal(t, float64(0), ClampPercent("abc", 100))
	assert.Equal(t, float64(0), ClampPercent("", 100))
	assert.Equal(t, float64(100), ClampPercent("100", 100))
	// nonsense max falls back to 100
	assert.Equal(t, float64(42), ClampPercent("42", -5))
}
