package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// PostRequest describes one signed posting against a member's balance.
type PostRequest struct {
	MemberID        snowflake.ID
	EventType       EventType
	Amount          int64
	SourceType      SourceType
	SourceID        snowflake.ID
	SourceReference string
	PromotionID     *snowflake.ID
	Channel         Channel
	Description     string
	ExpiresAt       *int64 // unix seconds, optional
}

type Service interface {
	Post(ctx context.Context, req PostRequest) (*StoreCreditEntry, error)
	Balance(ctx context.Context, memberID snowflake.ID) (Balance, error)
	Entries(ctx context.Context, memberID snowflake.ID, limit int) ([]StoreCreditEntry, error)
	Reconcile(ctx context.Context, memberID snowflake.ID) (ReconcileResult, error)
}

var (
	ErrInvalidMember       = errors.New("invalid_member")
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrInvalidEventType    = errors.New("invalid_event_type")
	ErrInvalidSourceType   = errors.New("invalid_source_type")
	ErrInvalidSourceID     = errors.New("invalid_source_id")
	ErrMissingDescription  = errors.New("missing_description")
	ErrInsufficientBalance = errors.New("insufficient_balance")
	ErrDuplicateSource     = errors.New("duplicate_source")
	ErrBalanceMismatch     = errors.New("balance_mismatch")
)
