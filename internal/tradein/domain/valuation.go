package domain

import (
	"github.com/smallbiznis/meridian/internal/money"
	referencedomain "github.com/smallbiznis/meridian/internal/reference/domain"
)

// Valuation is the priced breakdown of an item set before any manual
// reviewer adjustment.
type Valuation struct {
	Items               []TradeInItem `json:"items"`
	TotalItemCount      int           `json:"total_item_count"`
	SubtotalMarketValue int64         `json:"subtotal_market_value"`
	SubtotalBasePayout  int64         `json:"subtotal_base_payout"`
	TierBonusPct        float64       `json:"tier_bonus_pct"`
	TierBonusAmount     int64         `json:"tier_bonus_amount"`
	BulkBonusPct        float64       `json:"bulk_bonus_pct"`
	BulkBonusAmount     int64         `json:"bulk_bonus_amount"`
	TotalCredit         int64         `json:"total_credit"`
}

// Valuate prices an item set against a tier and resolved reference data.
// It is pure: no I/O, no clock, and the input slice is not mutated.
//
// Rounding is half-up per item, not once on the aggregate, so the stored
// per-unit payout always matches what a unit-price display would show.
// Tier and bulk bonuses are both taken off the base payout subtotal and
// summed; they never compound.
func Valuate(items []TradeInItem, tier referencedomain.Tier, snap referencedomain.Snapshot) (Valuation, error) {
	v := Valuation{Items: make([]TradeInItem, len(items))}

	bulkItemCount := 0
	for i, item := range items {
		if item.Quantity <= 0 {
			return Valuation{}, ErrInvalidQuantity
		}
		if item.MarketValue < 0 {
			return Valuation{}, ErrInvalidMarketValue
		}
		category, ok := snap.Categories[item.CategoryID]
		if !ok {
			return Valuation{}, ErrUnknownCategory
		}
		condition, ok := snap.Condition(item.ConditionCode)
		if !ok {
			return Valuation{}, ErrUnknownCondition
		}

		item.PayoutValue = money.RoundHalfUp(
			float64(item.MarketValue) * category.BasePayoutPct * condition.Modifier)
		item.TotalMarketValue = item.MarketValue * int64(item.Quantity)
		item.TotalPayoutValue = item.PayoutValue * int64(item.Quantity)
		v.Items[i] = item

		v.TotalItemCount += item.Quantity
		v.SubtotalMarketValue += item.TotalMarketValue
		v.SubtotalBasePayout += item.TotalPayoutValue
		// Ineligible categories still pay out but do not count toward
		// the bulk threshold.
		if category.BulkBonusEligible {
			bulkItemCount += item.Quantity
		}
	}

	v.TierBonusPct = tier.TradeInBonusPct
	v.TierBonusAmount = money.ApplyPercent(v.SubtotalBasePayout, v.TierBonusPct)

	v.BulkBonusPct = snap.BulkBonusPct(bulkItemCount)
	v.BulkBonusAmount = money.ApplyPercent(v.SubtotalBasePayout, v.BulkBonusPct)

	v.TotalCredit = v.SubtotalBasePayout + v.TierBonusAmount + v.BulkBonusAmount
	return v, nil
}

// ApplyValuation writes a valuation onto the aggregate and folds in the
// reviewer adjustment.
func (t *TradeIn) ApplyValuation(v Valuation) {
	t.SubtotalMarketValue = v.SubtotalMarketValue
	t.SubtotalBasePayout = v.SubtotalBasePayout
	t.TierBonusPct = v.TierBonusPct
	t.TierBonusAmount = v.TierBonusAmount
	t.BulkBonusPct = v.BulkBonusPct
	t.BulkBonusAmount = v.BulkBonusAmount
	t.TotalCredit = v.TotalCredit + t.AdjustmentAmount
}
