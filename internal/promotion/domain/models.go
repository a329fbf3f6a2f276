// Package domain defines promotions, their targeting rules and the pure
// rule evaluator that stacks them for a transaction.
package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type PromoType string

const (
	PromoTypeTradeInBonus     PromoType = "trade_in_bonus"
	PromoTypePurchaseCashback PromoType = "purchase_cashback"
	PromoTypeFlatBonus        PromoType = "flat_bonus"
	PromoTypeMultiplier       PromoType = "multiplier"
)

func ValidPromoType(pt PromoType) bool {
	switch pt {
	case PromoTypeTradeInBonus, PromoTypePurchaseCashback, PromoTypeFlatBonus, PromoTypeMultiplier:
		return true
	}
	return false
}

type Channel string

const (
	ChannelAll     Channel = "all"
	ChannelInStore Channel = "in_store"
	ChannelOnline  Channel = "online"
)

func ValidChannel(c Channel) bool {
	switch c {
	case ChannelAll, ChannelInStore, ChannelOnline:
		return true
	}
	return false
}

// Promotion is an administrator-managed bonus or discount rule. Monetary
// fields are minor units; time-of-day windows use "15:04" strings in the
// store's local time; ActiveDays holds lower-case weekday names.
type Promotion struct {
	ID               snowflake.ID                `json:"id" gorm:"primaryKey"`
	Name             string                      `json:"name" gorm:"type:text;not null"`
	Description      string                      `json:"description,omitempty" gorm:"type:text"`
	PromoType        PromoType                   `json:"promo_type" gorm:"type:text;not null"`
	BonusPercent     float64                     `json:"bonus_percent" gorm:"not null;default:0"`
	BonusFlat        int64                       `json:"bonus_flat" gorm:"not null;default:0"`
	Multiplier       float64                     `json:"multiplier" gorm:"not null;default:0"`
	StartsAt         time.Time                   `json:"starts_at" gorm:"not null"`
	EndsAt           time.Time                   `json:"ends_at" gorm:"not null"`
	DailyStartTime   string                      `json:"daily_start_time,omitempty" gorm:"type:text"`
	DailyEndTime     string                      `json:"daily_end_time,omitempty" gorm:"type:text"`
	ActiveDays       datatypes.JSONSlice[string] `json:"active_days,omitempty"`
	Channel          Channel                     `json:"channel" gorm:"type:text;not null;default:'all'"`
	Collections      datatypes.JSONSlice[string] `json:"collections,omitempty"`
	Vendor           string                      `json:"vendor,omitempty" gorm:"type:text"`
	ProductType      string                      `json:"product_type,omitempty" gorm:"type:text"`
	ProductTags      datatypes.JSONSlice[string] `json:"product_tags,omitempty"`
	TierRestriction  datatypes.JSONSlice[string] `json:"tier_restriction,omitempty"`
	MinItems         int                         `json:"min_items" gorm:"not null;default:0"`
	MinValue         int64                       `json:"min_value" gorm:"not null;default:0"`
	Stackable        bool                        `json:"stackable" gorm:"not null;default:false"`
	Priority         int                         `json:"priority" gorm:"not null;default:0"`
	MaxUses          int64                       `json:"max_uses" gorm:"not null;default:0"` // 0 = unlimited
	MaxUsesPerMember int64                       `json:"max_uses_per_member" gorm:"not null;default:0"`
	CurrentUses      int64                       `json:"current_uses" gorm:"not null;default:0"`
	Active           bool                        `json:"active" gorm:"not null;default:true"`
	CreatedAt        time.Time                   `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt        time.Time                   `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`}

func (Promotion) TableName() string { return "promotions" }

// PromotionUsage counts redemptions of one promotion by one member.
type PromotionUsage struct {
	ID          snowflake.ID `json:"id" gorm:"primaryKey"`
	PromotionID snowflake.ID `json:"promotion_id" gorm:"not null;uniqueIndex:ux_promotion_usages_member"`
	MemberID    snowflake.ID `json:"member_id" gorm:"not null;uniqueIndex:ux_promotion_usages_member"`
	Uses        int64        `json:"uses" gorm:"not null;default:0"`
	UpdatedAt   time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (PromotionUsage) TableName() string { return "promotion_usages" }

var (
	ErrInvalidID        = errors.New("invalid_promotion_id")
	ErrInvalidName      = errors.New("invalid_promotion_name")
	ErrInvalidPromoType = errors.New("invalid_promo_type")
	ErrInvalidChannel   = errors.New("invalid_channel")
	ErrInvalidWindow    = errors.New("invalid_validity_window")
	ErrInvalidValue     = errors.New("invalid_promotion_value")
	ErrNotFound         = errors.New("promotion_not_found")
	ErrUsageExhausted   = errors.New("promotion_usage_exhausted")
)
