package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/meridian/internal/promotion/domain"
	"github.com/smallbiznis/meridian/pkg/db/option"
	"github.com/smallbiznis/meridian/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
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

	promoRepo repository.Repository[domain.Promotion]
	usageRepo repository.Repository[domain.PromotionUsage]
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("promotion.service"),
		genID: p.GenID,

		promoRepo: repository.ProvideStore[domain.Promotion](p.DB),
		usageRepo: repository.ProvideStore[domain.PromotionUsage](p.DB),
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Promotion, error) {
	promo, err := buildPromotion(req)
	if err != nil {
		return nil, err
	}
	promo.ID = s.genID.Generate()
	now := time.Now().UTC()
	promo.CreatedAt = now
	promo.UpdatedAt = now

	if err := s.promoRepo.Create(ctx, promo); err != nil {
		return nil, err
	}
	s.log.Info("promotion created",
		zap.String("promotion_id", promo.ID.String()),
		zap.String("promo_type", string(promo.PromoType)),
	)
	return promo, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.Promotion, error) {
	if id == 0 {
		return nil, domain.ErrInvalidID
	}
	promo, err := s.promoRepo.FindOne(ctx, &domain.Promotion{ID: id})
	if err != nil {
		return nil, err
	}
	if promo == nil {
		return nil, domain.ErrNotFound
	}
	return promo, nil
}

func (s *Service) List(ctx context.Context, filter domain.ListFilter) ([]domain.Promotion, error) {
	query := &domain.Promotion{PromoType: filter.PromoType, Channel: filter.Channel}
	opts := []option.QueryOption{option.WithOrderBy("priority desc, id asc")}
	if filter.Limit > 0 {
		opts = append(opts, option.WithLimit(filter.Limit))
	}
	if filter.Active != nil {
		query.Active = *filter.Active
	}

	promos, err := s.promoRepo.Find(ctx, query, opts...)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Promotion, 0, len(promos))
	for _, promo := range promos {
		out = append(out, *promo)
	}
	return out, nil
}

func (s *Service) Update(ctx context.Context, id snowflake.ID, req domain.CreateRequest) (*domain.Promotion, error) {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	promo, err := buildPromotion(req)
	if err != nil {
		return nil, err
	}
	promo.ID = existing.ID
	promo.CurrentUses = existing.CurrentUses
	promo.Active = existing.Active
	promo.CreatedAt = existing.CreatedAt
	promo.UpdatedAt = time.Now().UTC()

	if err := s.db.WithContext(ctx).Save(promo).Error; err != nil {
		return nil, err
	}
	return promo, nil
}

func (s *Service) Delete(ctx context.Context, id snowflake.ID) error {
	if id == 0 {
		return domain.ErrInvalidID
	}
	return s.promoRepo.Delete(ctx, id.String())
}

func (s *Service) ActiveFor(ctx context.Context, promoType domain.PromoType, channel domain.Channel, now time.Time) ([]domain.Promotion, error) {
	query := s.db.WithContext(ctx).
		Where("active = ?", true).
		Where("starts_at <= ? AND ends_at >= ?", now, now).
		Order("priority desc, id asc")
	if promoType != "" {
		query = query.Where("promo_type = ?", promoType)
	}
	if channel != "" && channel != domain.ChannelAll {
		query = query.Where("channel IN ?", []domain.Channel{domain.ChannelAll, channel})
	}

	var promos []domain.Promotion
	if err := query.Find(&promos).Error; err != nil {
		return nil, err
	}
	return promos, nil
}

func (s *Service) UsageFor(ctx context.Context, memberID snowflake.ID, promotions []domain.Promotion) (map[snowflake.ID]domain.Usage, error) {
	usage := make(map[snowflake.ID]domain.Usage, len(promotions))
	if len(promotions) == 0 {
		return usage, nil
	}

	ids := make([]snowflake.ID, 0, len(promotions))
	for _, promo := range promotions {
		ids = append(ids, promo.ID)
		usage[promo.ID] = domain.Usage{Total: promo.CurrentUses}
	}
	if memberID == 0 {
		return usage, nil
	}

	var rows []domain.PromotionUsage
	if err := s.db.WithContext(ctx).
		Where("member_id = ? AND promotion_id IN ?", memberID, ids).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		entry := usage[row.PromotionID]
		entry.Member = row.Uses
		usage[row.PromotionID] = entry
	}
	return usage, nil
}

// CommitUsage consumes one global use with a single guarded UPDATE so the
// cap holds under concurrent redemptions, then bumps the per-member row.
func (s *Service) CommitUsage(ctx context.Context, promotionID, memberID snowflake.ID) error {
	if promotionID == 0 {
		return domain.ErrInvalidID
	}
	if memberID == 0 {
		return domain.ErrInvalidID
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.Promotion{}).
			Where("id = ? AND (max_uses = 0 OR current_uses < max_uses)", promotionID).
			UpdateColumn("current_uses", gorm.Expr("current_uses + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&domain.Promotion{}).
				Where("id = ?", promotionID).
				Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return domain.ErrNotFound
			}
			return domain.ErrUsageExhausted
		}

		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "promotion_id"}, {Name: "member_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"uses":       gorm.Expr("promotion_usages.uses + 1"),
				"updated_at": time.Now().UTC(),
			}),
		}).Create(&domain.PromotionUsage{
			ID:          s.genID.Generate(),
			PromotionID: promotionID,
			MemberID:    memberID,
			Uses:        1,
			UpdatedAt:   time.Now().UTC(),
		}).Error
	})
}

func buildPromotion(req domain.CreateRequest) (*domain.Promotion, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	if !domain.ValidPromoType(req.PromoType) {
		return nil, domain.ErrInvalidPromoType
	}
	channel := req.Channel
	if channel == "" {
		channel = domain.ChannelAll
	}
	if !domain.ValidChannel(channel) {
		return nil, domain.ErrInvalidChannel
	}
	if req.StartsAt.IsZero() || req.EndsAt.IsZero() || req.EndsAt.Before(req.StartsAt) {
		return nil, domain.ErrInvalidWindow
	}

	switch req.PromoType {
	case domain.PromoTypeMultiplier:
		if req.Multiplier <= 0 {
			return nil, domain.ErrInvalidValue
		}
	default:
		if req.BonusPercent < 0 || req.BonusPercent > 100 {
			return nil, domain.ErrInvalidValue
		}
		if req.BonusFlat < 0 {
			return nil, domain.ErrInvalidValue
		}
		if req.BonusPercent == 0 && req.BonusFlat == 0 {
			return nil, domain.ErrInvalidValue
		}
	}

	days := make([]string, 0, len(req.ActiveDays))
	for _, day := range req.ActiveDays {
		days = append(days, strings.ToLower(strings.TrimSpace(day)))
	}

	return &domain.Promotion{
		Name:             name,
		Description:      strings.TrimSpace(req.Description),
		PromoType:        req.PromoType,
		BonusPercent:     req.BonusPercent,
		BonusFlat:        req.BonusFlat,
		Multiplier:       req.Multiplier,
		StartsAt:         req.StartsAt.UTC(),
		EndsAt:           req.EndsAt.UTC(),
		DailyStartTime:   strings.TrimSpace(req.DailyStartTime),
		DailyEndTime:     strings.TrimSpace(req.DailyEndTime),
		ActiveDays:       days,
		Channel:          channel,
		Collections:      req.Collections,
		Vendor:           strings.TrimSpace(req.Vendor),
		ProductType:      strings.TrimSpace(req.ProductType),
		ProductTags:      req.ProductTags,
		TierRestriction:  req.TierRestriction,
		MinItems:         req.MinItems,
		MinValue:         req.MinValue,
		Stackable:        req.Stackable,
		Priority:         req.Priority,
		MaxUses:          req.MaxUses,
		MaxUsesPerMember: req.MaxUsesPerMember,
		Active:           true,
	}, nil
}
