package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type CreateRequest struct {
	MemberID snowflake.ID `json:"member_id"`
	Notes    string       `json:"notes"`
	Items    []ItemInput  `json:"items"`
}

// ItemInput is the caller-facing shape of one line item; MarketValue is per
// unit in minor units.
type ItemInput struct {
	CategoryID    snowflake.ID `json:"category_id"`
	ConditionCode string       `json:"condition_code"`
	Quantity      int          `json:"quantity"`
	MarketValue   int64        `json:"market_value"`
}

type AdjustRequest struct {
	Amount int64  `json:"amount"`
	Reason string `json:"reason"`
}

type ListFilter struct {
	MemberID snowflake.ID
	Status   Status
	Limit    int
}

// PayoutPreview is the pure calculate-payout result for staff-facing intake.
type PayoutPreview struct {
	Tier      string    `json:"tier"`
	Valuation Valuation `json:"valuation"`
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*TradeIn, error)
	Get(ctx context.Context, id snowflake.ID) (*TradeIn, error)
	List(ctx context.Context, filter ListFilter) ([]TradeIn, error)

	AddItem(ctx context.Context, id snowflake.ID, item ItemInput) (*TradeIn, error)
	UpdateItem(ctx context.Context, id, itemID snowflake.ID, item ItemInput) (*TradeIn, error)
	RemoveItem(ctx context.Context, id, itemID snowflake.ID) (*TradeIn, error)

	Submit(ctx context.Context, id snowflake.ID) (*TradeIn, error)
	Approve(ctx context.Context, id snowflake.ID) (*TradeIn, error)
	Reject(ctx context.Context, id snowflake.ID) (*TradeIn, error)
	Cancel(ctx context.Context, id snowflake.ID) (*TradeIn, error)
	Complete(ctx context.Context, id snowflake.ID, creditType CreditType) (*TradeIn, error)

	Adjust(ctx context.Context, id snowflake.ID, req AdjustRequest) (*TradeIn, error)
	CalculatePayout(ctx context.Context, tierName string, items []ItemInput) (*PayoutPreview, error)
}
