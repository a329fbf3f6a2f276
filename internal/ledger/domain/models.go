// Package domain defines the store-credit ledger: the single source of truth
// for member balances. Entries are append-only; corrections are new entries
// with event type adjustment, never updates.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type EventType string

const (
	EventTypeCredit     EventType = "credit"
	EventTypeDebit      EventType = "debit"
	EventTypeAdjustment EventType = "adjustment"
	// EventTypeHold reserves credit that is promised but not yet spendable,
	// e.g. an approved trade-in awaiting completion. Holds reduce the
	// available balance without changing the total.
	EventTypeHold EventType = "hold"
)

type SourceType string

const (
	SourceTypeTradeIn       SourceType = "trade_in"
	SourceTypePromotion     SourceType = "promotion"
	SourceTypeCashback      SourceType = "cashback"
	SourceTypeBulkCredit    SourceType = "bulk_credit"
	SourceTypeManual        SourceType = "manual"
	SourceTypeMonthlyCredit SourceType = "monthly_credit"
)

type Channel string

const (
	ChannelAll     Channel = "all"
	ChannelInStore Channel = "in_store"
	ChannelOnline  Channel = "online"
)

// StoreCreditEntry is one immutable, signed balance-changing record.
// A partial unique index over (member_id, source_type, source_id) where
// event_type <> 'adjustment' is the idempotency guard against duplicate
// postings from retried external events.
type StoreCreditEntry struct {
	ID              snowflake.ID  `json:"id" gorm:"primaryKey"`
	MemberID        snowflake.ID  `json:"member_id" gorm:"not null;index"`
	EventType       EventType     `json:"event_type" gorm:"type:text;not null"`
	Amount          int64         `json:"amount" gorm:"not null"`
	BalanceAfter    int64         `json:"balance_after" gorm:"not null"`
	SourceType      SourceType    `json:"source_type" gorm:"type:text;not null;index"`
	SourceID        snowflake.ID  `json:"source_id" gorm:"not null"`
	SourceReference string        `json:"source_reference,omitempty" gorm:"type:text"`
	PromotionID     *snowflake.ID `json:"promotion_id,omitempty"`
	Channel         Channel       `json:"channel,omitempty" gorm:"type:text"`
	Description     string        `json:"description" gorm:"type:text;not null"`
	CreatedAt       time.Time     `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	ExpiresAt       *time.Time    `json:"expires_at,omitempty"`
}

func (StoreCreditEntry) TableName() string { return "store_credit_entries" }

// Balance is derived read-time state; it is never stored.
//
// LedgerBalance is the latest balance_after in the append-only chain. It sums
// every signed amount, holds and expired credit included, so it diverges from
// TotalBalance while a hold is active or credit has lapsed. TotalBalance and
// the earned subtotals exclude both.
type Balance struct {
	MemberID         snowflake.ID `json:"member_id"`
	TotalBalance     int64        `json:"total_balance"`
	PendingBalance   int64        `json:"pending_balance"`
	AvailableBalance int64        `json:"available_balance"`
	LedgerBalance    int64        `json:"ledger_balance"`
	TradeInEarned    int64        `json:"trade_in_earned"`
	PromoBonusEarned int64        `json:"promo_bonus_earned"`
	CashbackEarned   int64        `json:"cashback_earned"`
}

// ReconcileResult compares the running balance against a full-log recompute.
type ReconcileResult struct {
	MemberID         snowflake.ID `json:"member_id"`
	EntryCount       int64        `json:"entry_count"`
	ComputedBalance  int64        `json:"computed_balance"`
	LastBalanceAfter int64        `json:"last_balance_after"`
	Consistent       bool         `json:"consistent"`
}
