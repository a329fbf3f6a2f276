package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/meridian/internal/clock"
	ledgerdomain "github.com/smallbiznis/meridian/internal/ledger/domain"
	memberdomain "github.com/smallbiznis/meridian/internal/member/domain"
	"github.com/smallbiznis/meridian/internal/money"
	obsmetrics "github.com/smallbiznis/meridian/internal/observability/metrics"
	promotiondomain "github.com/smallbiznis/meridian/internal/promotion/domain"
	referencedomain "github.com/smallbiznis/meridian/internal/reference/domain"
	"github.com/smallbiznis/meridian/internal/tradein/domain"
	"github.com/smallbiznis/meridian/pkg/db/option"
	"github.com/smallbiznis/meridian/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Reference  referencedomain.Service
	Members    memberdomain.Service
	Ledger     ledgerdomain.Service
	Promotions promotiondomain.Service
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	reference  referencedomain.Service
	members    memberdomain.Service
	ledger     ledgerdomain.Service
	promotions promotiondomain.Service
	obsMetrics *obsmetrics.Metrics

	tradeInRepo repository.Repository[domain.TradeIn]
	itemRepo    repository.Repository[domain.TradeInItem]
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("tradein.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		reference:  p.Reference,
		members:    p.Members,
		ledger:     p.Ledger,
		promotions: p.Promotions,
		obsMetrics: p.ObsMetrics,

		tradeInRepo: repository.ProvideStore[domain.TradeIn](p.DB),
		itemRepo:    repository.ProvideStore[domain.TradeInItem](p.DB),
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.TradeIn, error) {
	if req.MemberID == 0 {
		return nil, domain.ErrInvalidMember
	}
	member, err := s.members.Get(ctx, req.MemberID.String())
	if err != nil {
		return nil, err
	}

	snapshot, err := s.reference.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	tier, ok := snapshot.TierByName(member.Tier)
	if !ok {
		return nil, domain.ErrUnknownTier
	}

	now := s.clock.Now()
	tradeIn := domain.TradeIn{
		ID:        s.genID.Generate(),
		MemberID:  req.MemberID,
		Status:    domain.StatusDraft,
		TierName:  referencedomain.NormalizeTierName(member.Tier),
		Notes:     strings.TrimSpace(req.Notes),
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, input := range req.Items {
		tradeIn.Items = append(tradeIn.Items, s.newItem(tradeIn.ID, input, now))
	}

	valuation, err := domain.Valuate(tradeIn.Items, tier, snapshot)
	if err != nil {
		return nil, err
	}
	tradeIn.Items = valuation.Items
	tradeIn.ApplyValuation(valuation)

	if err := s.db.WithContext(ctx).Create(&tradeIn).Error; err != nil {
		return nil, err
	}
	s.log.Info("trade-in created",
		zap.String("trade_in_id", tradeIn.ID.String()),
		zap.String("member_id", tradeIn.MemberID.String()),
		zap.Int("items", len(tradeIn.Items)),
	)
	return &tradeIn, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.TradeIn, error) {
	if id == 0 {
		return nil, domain.ErrInvalidID
	}

	var tradeIn domain.TradeIn
	err := s.db.WithContext(ctx).
		Preload("Items").
		First(&tradeIn, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &tradeIn, nil
}

func (s *Service) List(ctx context.Context, filter domain.ListFilter) ([]domain.TradeIn, error) {
	query := &domain.TradeIn{MemberID: filter.MemberID, Status: filter.Status}
	opts := []option.QueryOption{option.WithOrderBy("id desc")}
	if filter.Limit > 0 {
		opts = append(opts, option.WithLimit(filter.Limit))
	}

	tradeIns, err := s.tradeInRepo.Find(ctx, query, opts...)
	if err != nil {
		return nil, err
	}
	out := make([]domain.TradeIn, 0, len(tradeIns))
	for _, tradeIn := range tradeIns {
		out = append(out, *tradeIn)
	}
	return out, nil
}

func (s *Service) AddItem(ctx context.Context, id snowflake.ID, input domain.ItemInput) (*domain.TradeIn, error) {
	return s.mutateItems(ctx, id, func(tradeIn *domain.TradeIn, now time.Time) error {
		tradeIn.Items = append(tradeIn.Items, s.newItem(tradeIn.ID, input, now))
		return nil
	})
}

func (s *Service) UpdateItem(ctx context.Context, id, itemID snowflake.ID, input domain.ItemInput) (*domain.TradeIn, error) {
	return s.mutateItems(ctx, id, func(tradeIn *domain.TradeIn, now time.Time) error {
		for i := range tradeIn.Items {
			if tradeIn.Items[i].ID != itemID {
				continue
			}
			tradeIn.Items[i].CategoryID = input.CategoryID
			tradeIn.Items[i].ConditionCode = strings.ToLower(strings.TrimSpace(input.ConditionCode))
			tradeIn.Items[i].Quantity = input.Quantity
			tradeIn.Items[i].MarketValue = input.MarketValue
			tradeIn.Items[i].UpdatedAt = now
			return nil
		}
		return domain.ErrItemNotFound
	})
}

func (s *Service) RemoveItem(ctx context.Context, id, itemID snowflake.ID) (*domain.TradeIn, error) {
	return s.mutateItems(ctx, id, func(tradeIn *domain.TradeIn, _ time.Time) error {
		for i := range tradeIn.Items {
			if tradeIn.Items[i].ID != itemID {
				continue
			}
			tradeIn.Items = append(tradeIn.Items[:i], tradeIn.Items[i+1:]...)
			return nil
		}
		return domain.ErrItemNotFound
	})
}

// mutateItems applies one edit to a draft's item set and recomputes the
// breakdown, replacing the stored items atomically.
func (s *Service) mutateItems(ctx context.Context, id snowflake.ID, edit func(*domain.TradeIn, time.Time) error) (*domain.TradeIn, error) {
	tradeIn, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !tradeIn.Editable() {
		return nil, domain.ErrNotEditable
	}

	now := s.clock.Now()
	if err := edit(tradeIn, now); err != nil {
		return nil, err
	}

	snapshot, err := s.reference.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	tier, ok := snapshot.TierByName(tradeIn.TierName)
	if !ok {
		return nil, domain.ErrUnknownTier
	}

	valuation, err := domain.Valuate(tradeIn.Items, tier, snapshot)
	if err != nil {
		return nil, err
	}
	tradeIn.Items = valuation.Items
	tradeIn.ApplyValuation(valuation)
	tradeIn.UpdatedAt = now

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("trade_in_id = ?", tradeIn.ID).
			Delete(&domain.TradeInItem{}).Error; err != nil {
			return err
		}
		if len(tradeIn.Items) > 0 {
			if err := tx.Create(&tradeIn.Items).Error; err != nil {
				return err
			}
		}
		return tx.Omit("Items").Save(tradeIn).Error
	})
	if err != nil {
		return nil, err
	}
	return tradeIn, nil
}

func (s *Service) Submit(ctx context.Context, id snowflake.ID) (*domain.TradeIn, error) {
	return s.transition(ctx, id, domain.StatusPendingReview, domain.StatusDraft)
}

func (s *Service) Approve(ctx context.Context, id snowflake.ID) (*domain.TradeIn, error) {
	return s.transition(ctx, id, domain.StatusApproved, domain.StatusPendingReview)
}

func (s *Service) Reject(ctx context.Context, id snowflake.ID) (*domain.TradeIn, error) {
	return s.transition(ctx, id, domain.StatusRejected, domain.StatusPendingReview)
}

func (s *Service) Cancel(ctx context.Context, id snowflake.ID) (*domain.TradeIn, error) {
	return s.transition(ctx, id, domain.StatusCancelled, domain.StatusApproved)
}

func (s *Service) transition(ctx context.Context, id snowflake.ID, to domain.Status, from ...domain.Status) (*domain.TradeIn, error) {
	tradeIn, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	allowed := false
	for _, status := range from {
		if tradeIn.Status == status {
			allowed = true
			break
		}
	}
	if !allowed {
		if tradeIn.Status == domain.StatusCompleted {
			return nil, domain.ErrAlreadyCompleted
		}
		return nil, domain.ErrInvalidTransition
	}
	if to == domain.StatusPendingReview && len(tradeIn.Items) == 0 {
		return nil, domain.ErrEmptyItems
	}

	tradeIn.Status = to
	tradeIn.UpdatedAt = s.clock.Now()
	if err := s.db.WithContext(ctx).Omit("Items").Save(tradeIn).Error; err != nil {
		return nil, err
	}
	s.log.Info("trade-in transitioned",
		zap.String("trade_in_id", tradeIn.ID.String()),
		zap.String("status", string(to)),
	)
	return tradeIn, nil
}

// Complete pays out an approved trade-in. The ledger's source guard keys
// on the trade-in id, so a crashed or retried completion can only post
// once; a duplicate posting is treated as already paid and the status
// update still lands.
func (s *Service) Complete(ctx context.Context, id snowflake.ID, creditType domain.CreditType) (*domain.TradeIn, error) {
	if !domain.ValidCreditType(creditType) {
		return nil, domain.ErrInvalidCreditType
	}

	tradeIn, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch tradeIn.Status {
	case domain.StatusApproved:
	case domain.StatusCompleted:
		return nil, domain.ErrAlreadyCompleted
	default:
		return nil, domain.ErrInvalidTransition
	}

	now := s.clock.Now()
	promoBonus, applied, err := s.promotionBonus(ctx, tradeIn, now)
	if err != nil {
		return nil, err
	}

	_, err = s.ledger.Post(ctx, ledgerdomain.PostRequest{
		MemberID:    tradeIn.MemberID,
		Amount:      tradeIn.TotalCredit,
		SourceType:  ledgerdomain.SourceTypeTradeIn,
		SourceID:    tradeIn.ID,
		Channel:     ledgerdomain.ChannelInStore,
		Description: fmt.Sprintf("trade-in payout (%s)", creditType),
	})
	switch {
	case err == nil:
	case errors.Is(err, ledgerdomain.ErrDuplicateSource):
		s.log.Warn("trade-in payout already posted",
			zap.String("trade_in_id", tradeIn.ID.String()))
	default:
		return nil, err
	}

	if promoBonus > 0 {
		req := ledgerdomain.PostRequest{
			MemberID:    tradeIn.MemberID,
			Amount:      promoBonus,
			SourceType:  ledgerdomain.SourceTypePromotion,
			SourceID:    tradeIn.ID,
			Channel:     ledgerdomain.ChannelInStore,
			Description: "trade-in promotion bonus",
		}
		if len(applied) == 1 {
			promoID := applied[0].ID
			req.PromotionID = &promoID
		}
		if _, err := s.ledger.Post(ctx, req); err != nil &&
			!errors.Is(err, ledgerdomain.ErrDuplicateSource) {
			return nil, err
		}
		for _, promo := range applied {
			if err := s.promotions.CommitUsage(ctx, promo.ID, tradeIn.MemberID); err != nil {
				s.log.Warn("promotion usage commit failed",
					zap.String("promotion_id", promo.ID.String()),
					zap.Error(err))
			}
		}
	}

	tradeIn.Status = domain.StatusCompleted
	tradeIn.CreditType = creditType
	tradeIn.CompletedAt = &now
	tradeIn.UpdatedAt = now
	if err := s.db.WithContext(ctx).Omit("Items").Save(tradeIn).Error; err != nil {
		return nil, err
	}

	s.obsMetrics.RecordTradeInCompletion(ctx, string(creditType))
	s.log.Info("trade-in completed",
		zap.String("trade_in_id", tradeIn.ID.String()),
		zap.String("member_id", tradeIn.MemberID.String()),
		zap.String("credit_type", string(creditType)),
		zap.Int64("total_credit", tradeIn.TotalCredit),
		zap.Int64("promotion_bonus", promoBonus),
	)
	return tradeIn, nil
}

// promotionBonus evaluates active trade_in_bonus promotions against the
// trade-in's item set. Additive bonuses come off the base payout subtotal;
// multipliers scale the resulting bonus last.
func (s *Service) promotionBonus(ctx context.Context, tradeIn *domain.TradeIn, now time.Time) (int64, []promotiondomain.AppliedPromotion, error) {
	promos, err := s.promotions.ActiveFor(ctx, promotiondomain.PromoTypeTradeInBonus, promotiondomain.ChannelInStore, now)
	if err != nil {
		return 0, nil, err
	}
	if len(promos) == 0 {
		return 0, nil, nil
	}
	usage, err := s.promotions.UsageFor(ctx, tradeIn.MemberID, promos)
	if err != nil {
		return 0, nil, err
	}

	lines := make([]promotiondomain.CartLine, 0, len(tradeIn.Items))
	for _, item := range tradeIn.Items {
		lines = append(lines, promotiondomain.CartLine{
			ID:       item.ID.String(),
			Quantity: item.Quantity,
			Price:    item.TotalPayoutValue,
		})
	}

	result := promotiondomain.Evaluate(promos, promotiondomain.EvalContext{
		Now:        now,
		Channel:    promotiondomain.ChannelInStore,
		MemberTier: tradeIn.TierName,
		CartLines:  lines,
		OrderTotal: tradeIn.SubtotalBasePayout,
		Usage:      usage,
	})
	s.obsMetrics.RecordPromotionEvaluation(ctx, string(promotiondomain.ChannelInStore), len(result.AppliedPromotions) > 0)
	if len(result.AppliedPromotions) == 0 {
		return 0, nil, nil
	}

	bonus := money.ApplyPercent(tradeIn.SubtotalBasePayout, result.CombinedPercent) + result.CombinedFlat
	if result.CombinedMultiplier > 1 {
		bonus = money.RoundHalfUp(float64(bonus) * result.CombinedMultiplier)
	}
	return bonus, result.AppliedPromotions, nil
}

func (s *Service) Adjust(ctx context.Context, id snowflake.ID, req domain.AdjustRequest) (*domain.TradeIn, error) {
	if strings.TrimSpace(req.Reason) == "" {
		return nil, domain.ErrMissingReason
	}

	tradeIn, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if tradeIn.Status != domain.StatusPendingReview {
		return nil, domain.ErrInvalidTransition
	}

	tradeIn.AdjustmentAmount = req.Amount
	tradeIn.AdjustmentReason = strings.TrimSpace(req.Reason)
	tradeIn.TotalCredit = tradeIn.SubtotalBasePayout + tradeIn.TierBonusAmount +
		tradeIn.BulkBonusAmount + tradeIn.AdjustmentAmount
	tradeIn.UpdatedAt = s.clock.Now()

	if err := s.db.WithContext(ctx).Omit("Items").Save(tradeIn).Error; err != nil {
		return nil, err
	}
	return tradeIn, nil
}

// CalculatePayout is the staff-facing intake preview. Pure read: it prices
// the hypothetical item set without persisting anything.
func (s *Service) CalculatePayout(ctx context.Context, tierName string, inputs []domain.ItemInput) (*domain.PayoutPreview, error) {
	snapshot, err := s.reference.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	tier, ok := snapshot.TierByName(tierName)
	if !ok {
		return nil, domain.ErrUnknownTier
	}

	items := make([]domain.TradeInItem, 0, len(inputs))
	for _, input := range inputs {
		items = append(items, domain.TradeInItem{
			CategoryID:    input.CategoryID,
			ConditionCode: strings.ToLower(strings.TrimSpace(input.ConditionCode)),
			Quantity:      input.Quantity,
			MarketValue:   input.MarketValue,
		})
	}

	valuation, err := domain.Valuate(items, tier, snapshot)
	if err != nil {
		return nil, err
	}
	return &domain.PayoutPreview{
		Tier:      referencedomain.NormalizeTierName(tierName),
		Valuation: valuation,
	}, nil
}

func (s *Service) newItem(tradeInID snowflake.ID, input domain.ItemInput, now time.Time) domain.TradeInItem {
	return domain.TradeInItem{
		ID:            s.genID.Generate(),
		TradeInID:     tradeInID,
		CategoryID:    input.CategoryID,
		ConditionCode: strings.ToLower(strings.TrimSpace(input.ConditionCode)),
		Quantity:      input.Quantity,
		MarketValue:   input.MarketValue,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}
