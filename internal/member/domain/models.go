package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type MemberStatus string

const (
	MemberStatusActive   MemberStatus = "active"
	MemberStatusInactive MemberStatus = "inactive"
)

// Member is the loyalty program's view of a customer. Identity and sessions
// live elsewhere; this registry only carries what valuation and bulk credit
// need.
type Member struct {
	ID        snowflake.ID                   `json:"id" gorm:"primaryKey"`
	Email     string                         `json:"email" gorm:"type:text;not null;uniqueIndex"`
	Name      string                         `json:"name" gorm:"type:text;not null"`
	Tier      string                         `json:"tier" gorm:"type:text;not null;index"`
	Status    MemberStatus                   `json:"status" gorm:"type:text;not null;default:active;index"`
	Tags      datatypes.JSONSlice[string]    `json:"tags,omitempty" gorm:"type:jsonb"`
	CreatedAt time.Time                      `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time                      `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Member) TableName() string { return "members" }

type CreateMemberRequest struct {
	Email string   `json:"email"`
	Name  string   `json:"name"`
	Tier  string   `json:"tier"`
	Tags  []string `json:"tags"`
}

type ListMemberFilter struct {
	Tier   string
	Status MemberStatus
}

type Service interface {
	Create(ctx context.Context, req CreateMemberRequest) (*Member, error)
	Get(ctx context.Context, id string) (*Member, error)
	List(ctx context.Context, filter ListMemberFilter) ([]Member, error)
	Count(ctx context.Context, filter ListMemberFilter) (int64, error)
}

var (
	ErrInvalidEmail = errors.New("invalid_email")
	ErrInvalidTier  = errors.New("invalid_tier")
	ErrInvalidID    = errors.New("invalid_id")
	ErrNotFound     = errors.New("member_not_found")
	ErrMemberExists = errors.New("member_exists")
)
