// Package domain holds the reference data the engines evaluate against:
// membership tiers, trade-in categories, condition grades and bulk bonus
// thresholds. All of it is administrator-managed and immutable per evaluation.
package domain

import (
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Tier is a named membership level and its benefit percentages.
type Tier struct {
	ID                  snowflake.ID `json:"id" gorm:"primaryKey"`
	Name                string       `json:"name" gorm:"type:text;not null;uniqueIndex"`
	TradeInBonusPct     float64      `json:"trade_in_bonus_pct" gorm:"not null;default:0"`
	PurchaseCashbackPct float64      `json:"purchase_cashback_pct" gorm:"not null;default:0"`
	MonthlyCreditAmount int64        `json:"monthly_credit_amount" gorm:"not null;default:0"`
	StoreDiscountPct    float64      `json:"store_discount_pct" gorm:"not null;default:0"`
	DisplayOrder        int          `json:"display_order" gorm:"not null;default:0"`
	CreatedAt           time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt           time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Tier) TableName() string { return "tiers" }

// TradeInCategory prices a class of physical goods.
type TradeInCategory struct {
	ID                snowflake.ID `json:"id" gorm:"primaryKey"`
	Name              string       `json:"name" gorm:"type:text;not null;uniqueIndex"`
	BasePayoutPct     float64      `json:"base_payout_pct" gorm:"not null"` // fraction of market value, 0..1
	MinValue          int64        `json:"min_value" gorm:"not null;default:0"`
	BulkBonusEligible bool         `json:"bulk_bonus_eligible" gorm:"not null;default:true"`
	CreatedAt         time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt         time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (TradeInCategory) TableName() string { return "trade_in_categories" }

// ConditionInfo maps a condition grade to its payout modifier.
type ConditionInfo struct {
	Code      string    `json:"code" gorm:"type:text;primaryKey"`
	Label     string    `json:"label" gorm:"type:text;not null"`
	Modifier  float64   `json:"modifier" gorm:"not null"` // multiplicative, 0..1
	CreatedAt time.Time `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (ConditionInfo) TableName() string { return "condition_infos" }

// BulkBonusTier unlocks an extra payout percentage at an item-count threshold.
type BulkBonusTier struct {
	ID                 snowflake.ID `json:"id" gorm:"primaryKey"`
	ItemCountThreshold int          `json:"item_count_threshold" gorm:"not null;uniqueIndex"`
	BonusPct           float64      `json:"bonus_pct" gorm:"not null"`
	CreatedAt          time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (BulkBonusTier) TableName() string { return "bulk_bonus_tiers" }

// Snapshot is an immutable in-memory bundle of reference data handed to the
// pure valuation and promotion engines. It is resolved once per request so
// the engines never touch the database.
type Snapshot struct {
	Tiers          map[string]Tier         // keyed by normalized name
	Categories     map[snowflake.ID]TradeInCategory
	Conditions     map[string]ConditionInfo // keyed by code
	BulkBonusTiers []BulkBonusTier          // ascending by threshold
}

// TierByName resolves a tier case-insensitively.
func (s Snapshot) TierByName(name string) (Tier, bool) {
	tier, ok := s.Tiers[NormalizeTierName(name)]
	return tier, ok
}

// Condition resolves a condition grade case-insensitively.
func (s Snapshot) Condition(code string) (ConditionInfo, bool) {
	condition, ok := s.Conditions[strings.ToLower(strings.TrimSpace(code))]
	return condition, ok
}

// BulkBonusPct returns the highest bonus whose threshold is not exceeded by
// itemCount.
func (s Snapshot) BulkBonusPct(itemCount int) float64 {
	pct := float64(0)
	for _, t := range s.BulkBonusTiers {
		if t.ItemCountThreshold > itemCount {
			break
		}
		pct = t.BonusPct
	}
	return pct
}

// NormalizeTierName is the storage form of a tier name.
func NormalizeTierName(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

// DisplayTierName is the customer-facing form: first letter capitalized,
// rest lower-case.
func DisplayTierName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	return strings.ToUpper(name[:1]) + strings.ToLower(name[1:])
}

// SortBulkBonusTiers orders tiers ascending by threshold, in place.
func SortBulkBonusTiers(tiers []BulkBonusTier) {
	sort.Slice(tiers, func(i, j int) bool {
		return tiers[i].ItemCountThreshold < tiers[j].ItemCountThreshold
	})
}
