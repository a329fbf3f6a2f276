// Package domain defines the trade-in aggregate, its lifecycle and the
// pure valuation engine that prices a batch of physical items.
package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusDraft         Status = "draft"
	StatusPendingReview Status = "pending_review"
	StatusApproved      Status = "approved"
	StatusRejected      Status = "rejected"
	StatusCompleted     Status = "completed"
	StatusCancelled     Status = "cancelled"
)

// CreditType is how a completed trade-in pays out.
type CreditType string

const (
	CreditTypeGiftCard    CreditType = "gift_card"
	CreditTypeStoreCredit CreditType = "store_credit"
	CreditTypeCash        CreditType = "cash"
)

func ValidCreditType(ct CreditType) bool {
	switch ct {
	case CreditTypeGiftCard, CreditTypeStoreCredit, CreditTypeCash:
		return true
	}
	return false
}

// TradeInItem is one line of a trade-in. Monetary fields are minor units;
// MarketValue is per unit, the Total* and payout fields are derived by the
// valuation engine and overwritten on every recompute.
type TradeInItem struct {
	ID               snowflake.ID `json:"id" gorm:"primaryKey"`
	TradeInID        snowflake.ID `json:"trade_in_id" gorm:"not null;index"`
	CategoryID       snowflake.ID `json:"category_id" gorm:"not null"`
	ConditionCode    string       `json:"condition_code" gorm:"type:text;not null"`
	Quantity         int          `json:"quantity" gorm:"not null"`
	MarketValue      int64        `json:"market_value" gorm:"not null"`
	TotalMarketValue int64        `json:"total_market_value" gorm:"not null;default:0"`
	PayoutValue      int64        `json:"payout_value" gorm:"not null;default:0"`
	TotalPayoutValue int64        `json:"total_payout_value" gorm:"not null;default:0"`
	CreatedAt        time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt        time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (TradeInItem) TableName() string { return "trade_in_items" }

// TradeIn aggregates items into a payout breakdown. The breakdown fields
// are recomputed from the item set whenever it changes and frozen at
// submit time.
type TradeIn struct {
	ID                  snowflake.ID  `json:"id" gorm:"primaryKey"`
	MemberID            snowflake.ID  `json:"member_id" gorm:"not null;index"`
	Status              Status        `json:"status" gorm:"type:text;not null;default:'draft'"`
	CreditType          CreditType    `json:"credit_type,omitempty" gorm:"type:text"`
	TierName            string        `json:"tier_name" gorm:"type:text;not null"`
	SubtotalMarketValue int64         `json:"subtotal_market_value" gorm:"not null;default:0"`
	SubtotalBasePayout  int64         `json:"subtotal_base_payout" gorm:"not null;default:0"`
	TierBonusPct        float64       `json:"tier_bonus_pct" gorm:"not null;default:0"`
	TierBonusAmount     int64         `json:"tier_bonus_amount" gorm:"not null;default:0"`
	BulkBonusPct        float64       `json:"bulk_bonus_pct" gorm:"not null;default:0"`
	BulkBonusAmount     int64         `json:"bulk_bonus_amount" gorm:"not null;default:0"`
	AdjustmentAmount    int64         `json:"adjustment_amount" gorm:"not null;default:0"`
	AdjustmentReason    string        `json:"adjustment_reason,omitempty" gorm:"type:text"`
	TotalCredit         int64         `json:"total_credit" gorm:"not null;default:0"`
	Notes               string        `json:"notes,omitempty" gorm:"type:text"`
	Items               []TradeInItem `json:"items" gorm:"foreignKey:TradeInID"`
	CreatedAt           time.Time     `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt           time.Time     `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	CompletedAt         *time.Time    `json:"completed_at,omitempty"`
}

func (TradeIn) TableName() string { return "trade_ins" }

// Editable reports whether the item set may still change.
func (t TradeIn) Editable() bool { return t.Status == StatusDraft }

var (
	ErrInvalidID          = errors.New("invalid_trade_in_id")
	ErrInvalidMember      = errors.New("invalid_member_id")
	ErrInvalidQuantity    = errors.New("invalid_quantity")
	ErrInvalidMarketValue = errors.New("invalid_market_value")
	ErrUnknownCategory    = errors.New("unknown_category")
	ErrUnknownCondition   = errors.New("unknown_condition")
	ErrUnknownTier        = errors.New("unknown_tier")
	ErrNotFound           = errors.New("trade_in_not_found")
	ErrItemNotFound       = errors.New("trade_in_item_not_found")
	ErrNotEditable        = errors.New("trade_in_not_editable")
	ErrEmptyItems         = errors.New("trade_in_has_no_items")
	ErrInvalidTransition  = errors.New("invalid_status_transition")
	ErrInvalidCreditType  = errors.New("invalid_credit_type")
	ErrMissingReason      = errors.New("adjustment_reason_required")
	ErrAlreadyCompleted   = errors.New("trade_in_already_completed")
)
