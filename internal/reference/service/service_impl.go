package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/meridian/internal/reference/domain"
	"github.com/smallbiznis/meridian/pkg/db"
	"github.com/smallbiznis/meridian/pkg/db/option"
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

	tierRepo      repository.Repository[domain.Tier]
	categoryRepo  repository.Repository[domain.TradeInCategory]
	conditionRepo repository.Repository[domain.ConditionInfo]
	bulkTierRepo  repository.Repository[domain.BulkBonusTier]
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("reference.service"),
		genID: p.GenID,

		tierRepo:      repository.ProvideStore[domain.Tier](p.DB),
		categoryRepo:  repository.ProvideStore[domain.TradeInCategory](p.DB),
		conditionRepo: repository.ProvideStore[domain.ConditionInfo](p.DB),
		bulkTierRepo:  repository.ProvideStore[domain.BulkBonusTier](p.DB),
	}
}

// Snapshot resolves the full reference bundle in one pass. The engines only
// ever see this immutable copy.
func (s *Service) Snapshot(ctx context.Context) (domain.Snapshot, error) {
	tiers, err := s.tierRepo.Find(ctx, &domain.Tier{})
	if err != nil {
		return domain.Snapshot{}, err
	}
	categories, err := s.categoryRepo.Find(ctx, &domain.TradeInCategory{})
	if err != nil {
		return domain.Snapshot{}, err
	}
	conditions, err := s.conditionRepo.Find(ctx, &domain.ConditionInfo{})
	if err != nil {
		return domain.Snapshot{}, err
	}
	bulkTiers, err := s.bulkTierRepo.Find(ctx, &domain.BulkBonusTier{}, option.WithOrderBy("item_count_threshold asc"))
	if err != nil {
		return domain.Snapshot{}, err
	}

	snapshot := domain.Snapshot{
		Tiers:          make(map[string]domain.Tier, len(tiers)),
		Categories:     make(map[snowflake.ID]domain.TradeInCategory, len(categories)),
		Conditions:     make(map[string]domain.ConditionInfo, len(conditions)),
		BulkBonusTiers: make([]domain.BulkBonusTier, 0, len(bulkTiers)),
	}
	for _, tier := range tiers {
		snapshot.Tiers[domain.NormalizeTierName(tier.Name)] = *tier
	}
	for _, category := range categories {
		snapshot.Categories[category.ID] = *category
	}
	for _, condition := range conditions {
		snapshot.Conditions[strings.ToLower(condition.Code)] = *condition
	}
	for _, tier := range bulkTiers {
		snapshot.BulkBonusTiers = append(snapshot.BulkBonusTiers, *tier)
	}
	domain.SortBulkBonusTiers(snapshot.BulkBonusTiers)

	return snapshot, nil
}

func (s *Service) ListTiers(ctx context.Context) ([]domain.Tier, error) {
	tiers, err := s.tierRepo.Find(ctx, &domain.Tier{}, option.WithOrderBy("display_order asc"))
	if err != nil {
		return nil, err
	}
	out := make([]domain.Tier, 0, len(tiers))
	for _, tier := range tiers {
		out = append(out, *tier)
	}
	return out, nil
}

func (s *Service) CreateTier(ctx context.Context, req domain.CreateTierRequest) (*domain.Tier, error) {
	name := domain.NormalizeTierName(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	if !validPct(req.TradeInBonusPct) || !validPct(req.PurchaseCashbackPct) || !validPct(req.StoreDiscountPct) {
		return nil, domain.ErrInvalidPct
	}

	now := time.Now().UTC()
	tier := domain.Tier{
		ID:                  s.genID.Generate(),
		Name:                name,
		TradeInBonusPct:     req.TradeInBonusPct,
		PurchaseCashbackPct: req.PurchaseCashbackPct,
		MonthlyCreditAmount: req.MonthlyCreditAmount,
		StoreDiscountPct:    req.StoreDiscountPct,
		DisplayOrder:        req.DisplayOrder,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := s.tierRepo.Create(ctx, &tier); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrTierExists
		}
		return nil, err
	}
	return &tier, nil
}

func (s *Service) UpdateTier(ctx context.Context, id string, req domain.UpdateTierRequest) (*domain.Tier, error) {
	tierID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return nil, domain.ErrInvalidID
	}

	tier, err := s.tierRepo.FindOne(ctx, &domain.Tier{ID: tierID})
	if err != nil {
		return nil, err
	}
	if tier == nil {
		return nil, domain.ErrNotFound
	}

	if req.TradeInBonusPct != nil {
		if !validPct(*req.TradeInBonusPct) {
			return nil, domain.ErrInvalidPct
		}
		tier.TradeInBonusPct = *req.TradeInBonusPct
	}
	if req.PurchaseCashbackPct != nil {
		if !validPct(*req.PurchaseCashbackPct) {
			return nil, domain.ErrInvalidPct
		}
		tier.PurchaseCashbackPct = *req.PurchaseCashbackPct
	}
	if req.MonthlyCreditAmount != nil {
		tier.MonthlyCreditAmount = *req.MonthlyCreditAmount
	}
	if req.StoreDiscountPct != nil {
		if !validPct(*req.StoreDiscountPct) {
			return nil, domain.ErrInvalidPct
		}
		tier.StoreDiscountPct = *req.StoreDiscountPct
	}
	if req.DisplayOrder != nil {
		tier.DisplayOrder = *req.DisplayOrder
	}
	tier.UpdatedAt = time.Now().UTC()

	if err := s.db.WithContext(ctx).Save(tier).Error; err != nil {
		return nil, err
	}
	return tier, nil
}

func (s *Service) ListCategories(ctx context.Context) ([]domain.TradeInCategory, error) {
	categories, err := s.categoryRepo.Find(ctx, &domain.TradeInCategory{}, option.WithOrderBy("name asc"))
	if err != nil {
		return nil, err
	}
	out := make([]domain.TradeInCategory, 0, len(categories))
	for _, category := range categories {
		out = append(out, *category)
	}
	return out, nil
}

func (s *Service) CreateCategory(ctx context.Context, req domain.CreateCategoryRequest) (*domain.TradeInCategory, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	if req.BasePayoutPct <= 0 || req.BasePayoutPct > 1 {
		return nil, domain.ErrInvalidPct
	}

	eligible := true
	if req.BulkBonusEligible != nil {
		eligible = *req.BulkBonusEligible
	}

	now := time.Now().UTC()
	category := domain.TradeInCategory{
		ID:                s.genID.Generate(),
		Name:              name,
		BasePayoutPct:     req.BasePayoutPct,
		MinValue:          req.MinValue,
		BulkBonusEligible: eligible,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.categoryRepo.Create(ctx, &category); err != nil {
		return nil, err
	}
	return &category, nil
}

func (s *Service) ListConditions(ctx context.Context) ([]domain.ConditionInfo, error) {
	conditions, err := s.conditionRepo.Find(ctx, &domain.ConditionInfo{}, option.WithOrderBy("modifier desc"))
	if err != nil {
		return nil, err
	}
	out := make([]domain.ConditionInfo, 0, len(conditions))
	for _, condition := range conditions {
		out = append(out, *condition)
	}
	return out, nil
}

func (s *Service) UpsertCondition(ctx context.Context, req domain.UpsertConditionRequest) (*domain.ConditionInfo, error) {
	code := strings.ToLower(strings.TrimSpace(req.Code))
	if code == "" {
		return nil, domain.ErrInvalidName
	}
	if req.Modifier <= 0 || req.Modifier > 1 {
		return nil, domain.ErrInvalidModifier
	}

	condition := domain.ConditionInfo{
		Code:      code,
		Label:     strings.TrimSpace(req.Label),
		Modifier:  req.Modifier,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Save(&condition).Error; err != nil {
		return nil, err
	}
	return &condition, nil
}

func (s *Service) ListBulkBonusTiers(ctx context.Context) ([]domain.BulkBonusTier, error) {
	tiers, err := s.bulkTierRepo.Find(ctx, &domain.BulkBonusTier{}, option.WithOrderBy("item_count_threshold asc"))
	if err != nil {
		return nil, err
	}
	out := make([]domain.BulkBonusTier, 0, len(tiers))
	for _, tier := range tiers {
		out = append(out, *tier)
	}
	return out, nil
}

func (s *Service) CreateBulkBonusTier(ctx context.Context, req domain.CreateBulkBonusTierRequest) (*domain.BulkBonusTier, error) {
	if req.ItemCountThreshold <= 0 {
		return nil, domain.ErrInvalidThreshold
	}
	if req.BonusPct <= 0 || req.BonusPct > 100 {
		return nil, domain.ErrInvalidPct
	}

	tier := domain.BulkBonusTier{
		ID:                 s.genID.Generate(),
		ItemCountThreshold: req.ItemCountThreshold,
		BonusPct:           req.BonusPct,
		CreatedAt:          time.Now().UTC(),
	}
	if err := s.bulkTierRepo.Create(ctx, &tier); err != nil {
		return nil, err
	}
	return &tier, nil
}

func validPct(pct float64) bool {
	return pct >= 0 && pct <= 100
}
