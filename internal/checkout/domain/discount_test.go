package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var exclusionTags = []string{"no-tier-discount", "sale", "clearance"}

func cartWith(lines ...CartLine) *Cart {
	return &Cart{Lines: lines}
}

func params(tier string, pct float64, shipping int64) BuildParams {
	return BuildParams{
		TierName:              tier,
		Percent:               pct,
		MaxPercent:            100,
		FreeShippingThreshold: shipping,
		ExclusionTags:         exclusionTags,
	}
}

func TestBuild_GoldLabel(t *testing.T) {
	input := DiscountInput{
		Cart:     cartWith(CartLine{ID: "line-1"}),
		Customer: &Customer{Tier: "GOLD"},
	}

	resp := Build(input, params("GOLD", 10, 50))
	assert.Len(t, resp.Discounts, 1)
	assert.Equal(t, "Gold Member 10% Off", resp.Discounts[0].Message)
	assert.Equal(t, "10", resp.Discounts[0].Value.Percentage.Value)
}

func TestBuild_FreeShippingAtZeroThreshold(t *testing.T) {
	input := DiscountInput{
		Cart:     cartWith(CartLine{ID: "line-1"}),
		Customer: &Customer{Tier: "PLATINUM"},
	}

	resp := Build(input, params("PLATINUM", 15, 0))
	assert.Len(t, resp.Discounts, 1)
	assert.Equal(t, "Platinum Member 15% Off + Free Shipping", resp.Discounts[0].Message)
}

func TestBuild_ClampsBadPercentages(t *testing.T) {
	input := DiscountInput{
		Cart:     cartWith(CartLine{ID: "line-1"}),
		Customer: &Customer{Tier: "GOLD"},
	}

	assert.Empty(t, Build(input, params("GOLD", 150, 50)).Discounts)
	assert.Empty(t, Build(input, params("GOLD", -10, 50)).Discounts)
	assert.Len(t, Build(input, params("GOLD", 10, 50)).Discounts, 1)
}

func TestBuild_IncompleteInputIsEmptyNotError(t *testing.T) {
	assert.Empty(t, Build(DiscountInput{}, params("GOLD", 10, 50)).Discounts)
	assert.Empty(t, Build(DiscountInput{
		Cart: cartWith(CartLine{ID: "line-1"}),
	}, params("GOLD", 10, 50)).Discounts)
	assert.Empty(t, Build(DiscountInput{
		Cart:     cartWith(CartLine{ID: "line-1"}),
		Customer: &Customer{Tier: "  "},
	}, params("GOLD", 10, 50)).Discounts)
	assert.Empty(t, Build(DiscountInput{
		Cart:     &Cart{},
		Customer: &Customer{Tier: "GOLD"},
	}, params("GOLD", 10, 50)).Discounts)
}

func TestBuild_ExclusionTagsFilterTargets(t *testing.T) {
	input := DiscountInput{
		Cart: cartWith(
			CartLine{ID: "line-1"},
			CartLine{ID: "line-2", Tags: []string{"sale"}},
		),
		Customer: &Customer{Tier: "GOLD"},
	}

	resp := Build(input, params("GOLD", 10, 50))
	assert.Len(t, resp.Discounts, 1)
	assert.Equal(t, []Target{{CartLine: CartLineTarget{ID: "line-1"}}}, resp.Discounts[0].Targets)
}

func TestBuild_AllLinesExcludedIsEmpty(t *testing.T) {
	input := DiscountInput{
		Cart: cartWith(
			CartLine{ID: "line-1", Tags: []string{"clearance"}},
			CartLine{ID: "line-2", Tags: []string{"no-tier-discount"}},
		),
		Customer: &Customer{Tier: "GOLD"},
	}

	resp := Build(input, params("GOLD", 10, 50))
	assert.Empty(t, resp.Discounts)
	assert.NotNil(t, resp.Discounts)
}

func TestBuild_FractionalPercentFormatting(t *testing.T) {
	input := DiscountInput{
		Cart:     cartWith(CartLine{ID: "line-1"}),
		Customer: &Customer{Tier: "SILVER"},
	}

	resp := Build(input, params("SILVER", 12.5, 50))
	assert.Equal(t, "12.5", resp.Discounts[0].Value.Percentage.Value)
	assert.Equal(t, "Silver Member 12.5% Off", resp.Discounts[0].Message)
}
