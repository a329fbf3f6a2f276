package domain

import (
	"testing"

	"github.com/bwmarrin/snowflake"
	referencedomain "github.com/smallbiznis/meridian/internal/reference/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	catGames   = snowflake.ID(100)
	catConsole = snowflake.ID(200)
	catPromo   = snowflake.ID(300) // not bulk-bonus eligible
)

func testSnapshot() referencedomain.Snapshot {
	return referencedomain.Snapshot{
		Tiers: map[string]referencedomain.Tier{
			"BRONZE": {Name: "BRONZE", TradeInBonusPct: 0},
			"GOLD":   {Name: "GOLD", TradeInBonusPct: 10},
		},
		Categories: map[snowflake.ID]referencedomain.TradeInCategory{
			catGames:   {ID: catGames, Name: "Games", BasePayoutPct: 0.5, BulkBonusEligible: true},
			catConsole: {ID: catConsole, Name: "Consoles", BasePayoutPct: 0.6, BulkBonusEligible: true},
			catPromo:   {ID: catPromo, Name: "Promo Items", BasePayoutPct: 0.2, BulkBonusEligible: false},
		},
		Conditions: map[string]referencedomain.ConditionInfo{
			"mint":       {Code: "mint", Modifier: 1},
			"light_play": {Code: "light_play", Modifier: 0.8},
		},
		BulkBonusTiers: []referencedomain.BulkBonusTier{
			{ItemCountThreshold: 5, BonusPct: 5},
			{ItemCountThreshold: 10, BonusPct: 8},
		},
	}
}

func TestValuate_BonusesAreAdditiveNotCompounded(t *testing.T) {
	snap := testSnapshot()
	tier := snap.Tiers["GOLD"]

	// Five mint games at $40 market: base payout $20 each, $100 subtotal.
	// 10% tier + 5% bulk off the same subtotal must be exactly $15, not
	// the $15.50 compounding would give.
	items := []TradeInItem{
		{CategoryID: catGames, ConditionCode: "mint", Quantity: 5, MarketValue: 4000},
	}

	v, err := Valuate(items, tier, snap)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), v.SubtotalBasePayout)
	assert.Equal(t, int64(1000), v.TierBonusAmount)
	assert.Equal(t, float64(5), v.BulkBonusPct)
	assert.Equal(t, int64(500), v.BulkBonusAmount)
	assert.Equal(t, int64(11500), v.TotalCredit)
}

func TestValuate_RoundsPerItemHalfUp(t *testing.T) {
	snap := testSnapshot()
	tier := snap.Tiers["BRONZE"]

	// 1025 × 0.5 × 0.8 = 410 exactly; 1037 × 0.5 × 0.8 = 414.8 → 415.
	items := []TradeInItem{
		{CategoryID: catGames, ConditionCode: "light_play", Quantity: 1, MarketValue: 1025},
		{CategoryID: catGames, ConditionCode: "light_play", Quantity: 3, MarketValue: 1037},
	}

	v, err := Valuate(items, tier, snap)
	require.NoError(t, err)
	assert.Equal(t, int64(410), v.Items[0].PayoutValue)
	assert.Equal(t, int64(415), v.Items[1].PayoutValue)
	assert.Equal(t, int64(415*3), v.Items[1].TotalPayoutValue)
	assert.Equal(t, int64(410+415*3), v.SubtotalBasePayout)
}

func TestValuate_IneligibleCategoriesSkipBulkThreshold(t *testing.T) {
	snap := testSnapshot()
	tier := snap.Tiers["BRONZE"]

	// Seven items total, but only four count toward the bulk threshold.
	items := []TradeInItem{
		{CategoryID: catGames, ConditionCode: "mint", Quantity: 4, MarketValue: 1000},
		{CategoryID: catPromo, ConditionCode: "mint", Quantity: 3, MarketValue: 1000},
	}

	v, err := Valuate(items, tier, snap)
	require.NoError(t, err)
	assert.Equal(t, 7, v.TotalItemCount)
	assert.Zero(t, v.BulkBonusPct)
	// The ineligible items still pay out.
	assert.Equal(t, int64(4*500+3*200), v.SubtotalBasePayout)
}

func TestValuate_HighestBulkTierWins(t *testing.T) {
	snap := testSnapshot()
	tier := snap.Tiers["BRONZE"]

	items := []TradeInItem{
		{CategoryID: catGames, ConditionCode: "mint", Quantity: 12, MarketValue: 1000},
	}

	v, err := Valuate(items, tier, snap)
	require.NoError(t, err)
	assert.Equal(t, float64(8), v.BulkBonusPct)
}

func TestValuate_UnknownReferences(t *testing.T) {
	snap := testSnapshot()
	tier := snap.Tiers["BRONZE"]

	_, err := Valuate([]TradeInItem{
		{CategoryID: snowflake.ID(999), ConditionCode: "mint", Quantity: 1, MarketValue: 100},
	}, tier, snap)
	assert.ErrorIs(t, err, ErrUnknownCategory)

	_, err = Valuate([]TradeInItem{
		{CategoryID: catGames, ConditionCode: "pristine", Quantity: 1, MarketValue: 100},
	}, tier, snap)
	assert.ErrorIs(t, err, ErrUnknownCondition)

	_, err = Valuate([]TradeInItem{
		{CategoryID: catGames, ConditionCode: "mint", Quantity: 0, MarketValue: 100},
	}, tier, snap)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestApplyValuation_FoldsAdjustment(t *testing.T) {
	snap := testSnapshot()
	tier := snap.Tiers["GOLD"]

	v, err := Valuate([]TradeInItem{
		{CategoryID: catGames, ConditionCode: "mint", Quantity: 2, MarketValue: 1000},
	}, tier, snap)
	require.NoError(t, err)

	tradeIn := TradeIn{AdjustmentAmount: -50}
	tradeIn.ApplyValuation(v)
	assert.Equal(t, v.TotalCredit-50, tradeIn.TotalCredit)
}
