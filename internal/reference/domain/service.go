package domain

import (
	"context"
	"errors"
)

type Service interface {
	Snapshot(ctx context.Context) (Snapshot, error)

	ListTiers(ctx context.Context) ([]Tier, error)
	CreateTier(ctx context.Context, req CreateTierRequest) (*Tier, error)
	UpdateTier(ctx context.Context, id string, req UpdateTierRequest) (*Tier, error)

	ListCategories(ctx context.Context) ([]TradeInCategory, error)
	CreateCategory(ctx context.Context, req CreateCategoryRequest) (*TradeInCategory, error)

	ListConditions(ctx context.Context) ([]ConditionInfo, error)
	UpsertCondition(ctx context.Context, req UpsertConditionRequest) (*ConditionInfo, error)

	ListBulkBonusTiers(ctx context.Context) ([]BulkBonusTier, error)
	CreateBulkBonusTier(ctx context.Context, req CreateBulkBonusTierRequest) (*BulkBonusTier, error)
}

type CreateTierRequest struct {
	Name                string  `json:"name"`
	TradeInBonusPct     float64 `json:"trade_in_bonus_pct"`
	PurchaseCashbackPct float64 `json:"purchase_cashback_pct"`
	MonthlyCreditAmount int64   `json:"monthly_credit_amount"`
	StoreDiscountPct    float64 `json:"store_discount_pct"`
	DisplayOrder        int     `json:"display_order"`
}

type UpdateTierRequest struct {
	TradeInBonusPct     *float64 `json:"trade_in_bonus_pct"`
	PurchaseCashbackPct *float64 `json:"purchase_cashback_pct"`
	MonthlyCreditAmount *int64   `json:"monthly_credit_amount"`
	StoreDiscountPct    *float64 `json:"store_discount_pct"`
	DisplayOrder        *int     `json:"display_order"`
}

type CreateCategoryRequest struct {
	Name              string  `json:"name"`
	BasePayoutPct     float64 `json:"base_payout_pct"`
	MinValue          int64   `json:"min_value"`
	BulkBonusEligible *bool   `json:"bulk_bonus_eligible"`
}

type UpsertConditionRequest struct {
	Code     string  `json:"code"`
	Label    string  `json:"label"`
	Modifier float64 `json:"modifier"`
}

type CreateBulkBonusTierRequest struct {
	ItemCountThreshold int     `json:"item_count_threshold"`
	BonusPct           float64 `json:"bonus_pct"`
}

var (
	ErrInvalidName      = errors.New("invalid_name")
	ErrInvalidPct       = errors.New("invalid_pct")
	ErrInvalidModifier  = errors.New("invalid_modifier")
	ErrInvalidThreshold = errors.New("invalid_threshold")
	ErrInvalidID        = errors.New("invalid_id")
	ErrNotFound         = errors.New("not_found")
	ErrTierExists       = errors.New("tier_exists")
)
