package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/meridian/internal/checkout/domain"
	"github.com/smallbiznis/meridian/internal/clock"
	"github.com/smallbiznis/meridian/internal/config"
	obsmetrics "github.com/smallbiznis/meridian/internal/observability/metrics"
	promotiondomain "github.com/smallbiznis/meridian/internal/promotion/domain"
	referencedomain "github.com/smallbiznis/meridian/internal/reference/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log        *zap.Logger
	Clock      clock.Clock
	Loyalty    *config.LoyaltyConfigHolder
	Reference  referencedomain.Service
	Promotions promotiondomain.Service
	ObsMetrics *obsmetrics.Metrics         `optional:"true"`
}

type Service struct {
	log        *zap.Logger
	clock      clock.Clock
	loyalty    *config.LoyaltyConfigHolder
	reference  referencedomain.Service
	promotions promotiondomain.Service
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) *Service {
	return &Service{
		log:        p.Log.Named("checkout.service"),
		clock:      p.Clock,
		loyalty:    p.Loyalty,
		reference:  p.Reference,
		promotions: p.Promotions,
		obsMetrics: p.ObsMetrics,
	}
}

// Discount resolves reference data and active promotions, then hands the
// pure builder an already-combined percentage. Any failure on the loyalty
// side degrades to the empty response: checkout must never lose a sale to
// a loyalty hiccup.
func (s *Service) Discount(ctx context.Context, input domain.DiscountInput) domain.DiscountResponse {
	if input.Customer == nil || input.Cart == nil {
		return domain.Empty()
	}

	snapshot, err := s.reference.Snapshot(ctx)
	if err != nil {
		s.log.Warn("reference snapshot unavailable", zap.Error(err))
		return domain.Empty()
	}
	tier, ok := snapshot.TierByName(input.Customer.Tier)
	if !ok {
		return domain.Empty()
	}

	settings := s.loyalty.Get()
	pct := tier.StoreDiscountPct + s.promotionPercent(ctx, input, tier.Name)

	return domain.Build(input, domain.BuildParams{
		TierName:              tier.Name,
		Percent:               pct,
		MaxPercent:            settings.MaxDiscountPercent,
		FreeShippingThreshold: settings.FreeShippingThreshold,
		ExclusionTags:         settings.ExclusionTags,
	})
}

// promotionPercent folds in stacked percentage promotions targeting online
// purchases. Failures degrade to zero rather than surfacing.
func (s *Service) promotionPercent(ctx context.Context, input domain.DiscountInput, tierName string) float64 {
	now := s.clock.Now()
	promos, err := s.promotions.ActiveFor(ctx, promotiondomain.PromoTypeFlatBonus, promotiondomain.ChannelOnline, now)
	if err != nil {
		s.log.Warn("promotion load failed", zap.Error(err))
		return 0
	}
	if len(promos) == 0 {
		return 0
	}

	var memberID snowflake.ID
	if input.Customer.ID != "" {
		if parsed, err := snowflake.ParseString(input.Customer.ID); err == nil {
			memberID = parsed
		}
	}
	usage, err := s.promotions.UsageFor(ctx, memberID, promos)
	if err != nil {
		s.log.Warn("promotion usage load failed", zap.Error(err))
		return 0
	}

	settings := s.loyalty.Get()
	lines := make([]promotiondomain.CartLine, 0, len(input.Cart.Lines))
	var orderTotal int64
	for _, line := range input.Cart.Lines {
		lines = append(lines, promotiondomain.CartLine{
			ID:          line.ID,
			Quantity:    line.Quantity,
			Price:       line.Price,
			Collections: line.Collections,
			Vendor:      line.Vendor,
			ProductType: line.ProductType,
			Tags:        line.Tags,
		})
		orderTotal += line.Price
	}

	result := promotiondomain.Evaluate(promos, promotiondomain.EvalContext{
		Now:           now,
		Channel:       promotiondomain.ChannelOnline,
		MemberTier:    tierName,
		MemberTags:    input.Customer.Tags,
		CartLines:     lines,
		OrderTotal:    orderTotal,
		ExclusionTags: settings.ExclusionTags,
		Usage:         usage,
	})
	s.obsMetrics.RecordPromotionEvaluation(ctx, string(promotiondomain.ChannelOnline), len(result.AppliedPromotions) > 0)
	return result.CombinedPercent
}
