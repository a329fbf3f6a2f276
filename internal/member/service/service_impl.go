package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/meridian/internal/member/domain"
	referencedomain "github.com/smallbiznis/meridian/internal/reference/domain"
	"github.com/smallbiznis/meridian/pkg/db"
	"github.com/smallbiznis/meridian/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  repository.Repository[domain.Member]
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("member.service"),
		genID: p.GenID,
		repo:  repository.ProvideStore[domain.Member](p.DB),
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateMemberRequest) (*domain.Member, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, domain.ErrInvalidEmail
	}
	tier := referencedomain.NormalizeTierName(req.Tier)
	if tier == "" {
		return nil, domain.ErrInvalidTier
	}

	now := time.Now().UTC()
	member := domain.Member{
		ID:        s.genID.Generate(),
		Email:     email,
		Name:      strings.TrimSpace(req.Name),
		Tier:      tier,
		Status:    domain.MemberStatusActive,
		Tags:      req.Tags,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, &member); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrMemberExists
		}
		return nil, err
	}
	return &member, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Member, error) {
	memberID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return nil, domain.ErrInvalidID
	}
	member, err := s.repo.FindOne(ctx, &domain.Member{ID: memberID})
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, domain.ErrNotFound
	}
	return member, nil
}

func (s *Service) List(ctx context.Context, filter domain.ListMemberFilter) ([]domain.Member, error) {
	members, err := s.repo.Find(ctx, filterQuery(filter))
	if err != nil {
		return nil, err
	}
	out := make([]domain.Member, 0, len(members))
	for _, member := range members {
		out = append(out, *member)
	}
	return out, nil
}

func (s *Service) Count(ctx context.Context, filter domain.ListMemberFilter) (int64, error) {
	return s.repo.Count(ctx, filterQuery(filter))
}

func filterQuery(filter domain.ListMemberFilter) *domain.Member {
	query := &domain.Member{}
	if tier := referencedomain.NormalizeTierName(filter.Tier); tier != "" {
		query.Tier = tier
	}
	if filter.Status != "" {
		query.Status = filter.Status
	}
	return query
}
