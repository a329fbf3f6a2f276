// Package domain defines operator-issued bulk credit operations: one
// request fanned out into many independent ledger postings under a
// preview-then-execute protocol.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	memberdomain "github.com/smallbiznis/meridian/internal/member/domain"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// MemberFailure records one member whose posting failed, kept on the
// operation so the operator can retry just those.
type MemberFailure struct {
	MemberID string `json:"member_id"`
	Reason   string `json:"reason"`
}

// BulkCreditOperation is immutable once completed. MemberCount and
// TotalAmount are filled at execute time from the resolved member set.
type BulkCreditOperation struct {
	ID              snowflake.ID                       `json:"id" gorm:"primaryKey"`
	Description     string                             `json:"description,omitempty" gorm:"type:text"`
	AmountPerMember int64                              `json:"amount_per_member" gorm:"not null"`
	TierFilter      string                             `json:"tier_filter,omitempty" gorm:"type:text"`
	StatusFilter    string                             `json:"status_filter,omitempty" gorm:"type:text"`
	Status          Status                             `json:"status" gorm:"type:text;not null;default:'pending'"`
	MemberCount     int64                              `json:"member_count" gorm:"not null;default:0"`
	TotalAmount     int64                              `json:"total_amount" gorm:"not null;default:0"`
	Failures        datatypes.JSONSlice[MemberFailure] `json:"failures,omitempty"`
	CreatedAt       time.Time                          `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt       time.Time                          `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	StartedAt       *time.Time                         `json:"started_at,omitempty"`
	FinishedAt      *time.Time                         `json:"finished_at,omitempty"`
}

func (BulkCreditOperation) TableName() string { return "bulk_credit_operations" }

type CreateRequest struct {
	Description     string `json:"description"`
	AmountPerMember int64  `json:"amount_per_member"`
	TierFilter      string `json:"tier_filter"`
	StatusFilter    string `json:"status_filter"`
}

// PreviewResult resolves the operation's filter against current member
// data without writing anything.
type PreviewResult struct {
	MemberCount int64                 `json:"member_count"`
	TotalAmount int64                 `json:"total_amount"`
	Sample      []memberdomain.Member `json:"sample"`
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*BulkCreditOperation, error)
	Get(ctx context.Context, id snowflake.ID) (*BulkCreditOperation, error)
	List(ctx context.Context, limit int) ([]BulkCreditOperation, error)
	Preview(ctx context.Context, id snowflake.ID) (*PreviewResult, error)
	Execute(ctx context.Context, id snowflake.ID) (*BulkCreditOperation, error)
	Retry(ctx context.Context, id snowflake.ID) (*BulkCreditOperation, error)
}

var (
	ErrInvalidID     = errors.New("invalid_operation_id")
	ErrInvalidAmount = errors.New("invalid_amount_per_member")
	ErrNotFound      = errors.New("operation_not_found")
	ErrLocked        = errors.New("operation_execute_in_progress")
	ErrNotRetryable  = errors.New("operation_not_retryable")
)
