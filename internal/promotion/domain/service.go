package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

type CreateRequest struct {
	Name             string    `json:"name"`
	Description      string    `json:"description"`
	PromoType        PromoType `json:"promo_type"`
	BonusPercent     float64   `json:"bonus_percent"`
	BonusFlat        int64     `json:"bonus_flat"`
	Multiplier       float64   `json:"multiplier"`
	StartsAt         time.Time `json:"starts_at"`
	EndsAt           time.Time `json:"ends_at"`
	DailyStartTime   string    `json:"daily_start_time"`
	DailyEndTime     string    `json:"daily_end_time"`
	ActiveDays       []string  `json:"active_days"`
	Channel          Channel   `json:"channel"`
	Collections      []string  `json:"collections"`
	Vendor           string    `json:"vendor"`
	ProductType      string    `json:"product_type"`
	ProductTags      []string  `json:"product_tags"`
	TierRestriction  []string  `json:"tier_restriction"`
	MinItems         int       `json:"min_items"`
	MinValue         int64     `json:"min_value"`
	Stackable        bool      `json:"stackable"`
	Priority         int       `json:"priority"`
	MaxUses          int64     `json:"max_uses"`
	MaxUsesPerMember int64     `json:"max_uses_per_member"`
}

type ListFilter struct {
	PromoType PromoType
	Channel   Channel
	Active    *bool
	Limit     int
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Promotion, error)
	Get(ctx context.Context, id snowflake.ID) (*Promotion, error)
	List(ctx context.Context, filter ListFilter) ([]Promotion, error)
	Update(ctx context.Context, id snowflake.ID, req CreateRequest) (*Promotion, error)
	Delete(ctx context.Context, id snowflake.ID) error

	// ActiveFor loads the promotions worth evaluating for a transaction:
	// active rows of the given type whose validity window contains now.
	ActiveFor(ctx context.Context, promoType PromoType, channel Channel, now time.Time) ([]Promotion, error)

	// UsageFor reads the counter values the evaluator checks caps against.
	UsageFor(ctx context.Context, memberID snowflake.ID, promotions []Promotion) (map[snowflake.ID]Usage, error)

	// CommitUsage atomically consumes one use of a promotion for a member.
	// It fails with ErrUsageExhausted when the global cap is already spent.
	CommitUsage(ctx context.Context, promotionID, memberID snowflake.ID) error
}
