package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/meridian/internal/clock"
	ledgerdomain "github.com/smallbiznis/meridian/internal/ledger/domain"
	ledgerservice "github.com/smallbiznis/meridian/internal/ledger/service"
	memberdomain "github.com/smallbiznis/meridian/internal/member/domain"
	memberservice "github.com/smallbiznis/meridian/internal/member/service"
	promotiondomain "github.com/smallbiznis/meridian/internal/promotion/domain"
	promotionservice "github.com/smallbiznis/meridian/internal/promotion/service"
	referencedomain "github.com/smallbiznis/meridian/internal/reference/domain"
	referenceservice "github.com/smallbiznis/meridian/internal/reference/service"
	"github.com/smallbiznis/meridian/internal/tradein/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	svc        domain.Service
	ledger     ledgerdomain.Service
	promotions promotiondomain.Service
	clock      *clock.FakeClock
	member     *memberdomain.Member
	catGames   snowflake.ID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&referencedomain.Tier{},
		&referencedomain.TradeInCategory{},
		&referencedomain.ConditionInfo{},
		&referencedomain.BulkBonusTier{},
		&memberdomain.Member{},
		&promotiondomain.Promotion{},
		&promotiondomain.PromotionUsage{},
		&ledgerdomain.StoreCreditEntry{},
		&domain.TradeIn{},
		&domain.TradeInItem{},
	))
	db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS ux_store_credit_entries_source
		ON store_credit_entries(member_id, source_type, source_id)
		WHERE event_type <> 'adjustment'`)

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	log := zap.NewNop()
	fakeClock := clock.NewFakeClock(time.Date(2026, time.March, 4, 12, 0, 0, 0, time.UTC))

	reference := referenceservice.New(referenceservice.Params{DB: db, Log: log, GenID: node})
	members := memberservice.New(memberservice.Params{DB: db, Log: log, GenID: node})
	ledger := ledgerservice.New(ledgerservice.Params{DB: db, Log: log, GenID: node})
	promotions := promotionservice.New(promotionservice.Params{DB: db, Log: log, GenID: node})

	ctx := context.Background()
	_, err = reference.CreateTier(ctx, referencedomain.CreateTierRequest{Name: "GOLD", TradeInBonusPct: 10})
	require.NoError(t, err)
	category, err := reference.CreateCategory(ctx, referencedomain.CreateCategoryRequest{
		Name: "Games", BasePayoutPct: 0.5,
	})
	require.NoError(t, err)
	_, err = reference.UpsertCondition(ctx, referencedomain.UpsertConditionRequest{
		Code: "mint", Label: "Mint", Modifier: 1,
	})
	require.NoError(t, err)
	_, err = reference.CreateBulkBonusTier(ctx, referencedomain.CreateBulkBonusTierRequest{
		ItemCountThreshold: 5, BonusPct: 5,
	})
	require.NoError(t, err)

	member, err := members.Create(ctx, memberdomain.CreateMemberRequest{
		Email: "collector@example.com", Name: "Alex Collector", Tier: "GOLD",
	})
	require.NoError(t, err)

	svc := New(Params{
		DB:         db,
		Log:        log,
		GenID:      node,
		Clock:      fakeClock,
		Reference:  reference,
		Members:    members,
		Ledger:     ledger,
		Promotions: promotions,
	})

	return &fixture{
		svc:        svc,
		ledger:     ledger,
		promotions: promotions,
		clock:      fakeClock,
		member:     member,
		catGames:   category.ID,
	}
}

func (f *fixture) draft(t *testing.T, quantity int) *domain.TradeIn {
	t.Helper()
	tradeIn, err := f.svc.Create(context.Background(), domain.CreateRequest{
		MemberID: f.member.ID,
		Items: []domain.ItemInput{
			{CategoryID: f.catGames, ConditionCode: "mint", Quantity: quantity, MarketValue: 4000},
		},
	})
	require.NoError(t, err)
	return tradeIn
}

func (f *fixture) approved(t *testing.T) *domain.TradeIn {
	t.Helper()
	ctx := context.Background()
	tradeIn := f.draft(t, 5)
	_, err := f.svc.Submit(ctx, tradeIn.ID)
	require.NoError(t, err)
	tradeIn, err = f.svc.Approve(ctx, tradeIn.ID)
	require.NoError(t, err)
	return tradeIn
}

func TestCreate_ComputesBreakdown(t *testing.T) {
	f := newFixture(t)

	tradeIn := f.draft(t, 5)
	assert.Equal(t, domain.StatusDraft, tradeIn.Status)
	assert.Equal(t, "GOLD", tradeIn.TierName)
	assert.Equal(t, int64(10000), tradeIn.SubtotalBasePayout)
	assert.Equal(t, int64(1000), tradeIn.TierBonusAmount)
	assert.Equal(t, int64(500), tradeIn.BulkBonusAmount)
	assert.Equal(t, int64(11500), tradeIn.TotalCredit)
}

func TestItemEdits_RecomputeAndFreezeAtSubmit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tradeIn := f.draft(t, 1)
	assert.Equal(t, int64(2000), tradeIn.SubtotalBasePayout)

	updated, err := f.svc.AddItem(ctx, tradeIn.ID, domain.ItemInput{
		CategoryID: f.catGames, ConditionCode: "mint", Quantity: 4, MarketValue: 4000,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(10000), updated.SubtotalBasePayout)
	assert.Equal(t, int64(500), updated.BulkBonusAmount)

	_, err = f.svc.Submit(ctx, tradeIn.ID)
	require.NoError(t, err)

	_, err = f.svc.AddItem(ctx, tradeIn.ID, domain.ItemInput{
		CategoryID: f.catGames, ConditionCode: "mint", Quantity: 1, MarketValue: 1000,
	})
	assert.ErrorIs(t, err, domain.ErrNotEditable)
}

func TestSubmit_RequiresItems(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tradeIn := f.draft(t, 1)
	var itemID snowflake.ID
	full, err := f.svc.Get(ctx, tradeIn.ID)
	require.NoError(t, err)
	itemID = full.Items[0].ID

	_, err = f.svc.RemoveItem(ctx, tradeIn.ID, itemID)
	require.NoError(t, err)

	_, err = f.svc.Submit(ctx, tradeIn.ID)
	assert.ErrorIs(t, err, domain.ErrEmptyItems)
}

func TestTransitions_RejectInvalid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tradeIn := f.draft(t, 1)
	_, err := f.svc.Approve(ctx, tradeIn.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = f.svc.Complete(ctx, tradeIn.ID, domain.CreditTypeStoreCredit)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = f.svc.Cancel(ctx, tradeIn.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestAdjust_RequiresReasonDuringReview(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tradeIn := f.draft(t, 5)
	_, err := f.svc.Submit(ctx, tradeIn.ID)
	require.NoError(t, err)

	_, err = f.svc.Adjust(ctx, tradeIn.ID, domain.AdjustRequest{Amount: -500})
	assert.ErrorIs(t, err, domain.ErrMissingReason)

	adjusted, err := f.svc.Adjust(ctx, tradeIn.ID, domain.AdjustRequest{
		Amount: -500, Reason: "disc scratched on inspection",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(11000), adjusted.TotalCredit)
}

func TestComplete_PostsLedgerExactlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tradeIn := f.approved(t)
	completed, err := f.svc.Complete(ctx, tradeIn.ID, domain.CreditTypeStoreCredit)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, completed.Status)
	assert.Equal(t, domain.CreditTypeStoreCredit, completed.CreditType)
	require.NotNil(t, completed.CompletedAt)

	balance, err := f.ledger.Balance(ctx, f.member.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(11500), balance.TotalBalance)
	assert.Equal(t, int64(11500), balance.TradeInEarned)

	_, err = f.svc.Complete(ctx, tradeIn.ID, domain.CreditTypeStoreCredit)
	assert.ErrorIs(t, err, domain.ErrAlreadyCompleted)

	balance, err = f.ledger.Balance(ctx, f.member.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(11500), balance.TotalBalance)
}

func TestComplete_InvalidCreditType(t *testing.T) {
	f := newFixture(t)

	tradeIn := f.approved(t)
	_, err := f.svc.Complete(context.Background(), tradeIn.ID, domain.CreditType("points"))
	assert.ErrorIs(t, err, domain.ErrInvalidCreditType)
}

func TestComplete_AppliesTradeInBonusPromotion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	now := f.clock.Now()
	promo, err := f.promotions.Create(ctx, promotiondomain.CreateRequest{
		Name:         "March trade-in boost",
		PromoType:    promotiondomain.PromoTypeTradeInBonus,
		BonusPercent: 10,
		StartsAt:     now.Add(-time.Hour),
		EndsAt:       now.Add(time.Hour),
		MaxUses:      10,
	})
	require.NoError(t, err)

	tradeIn := f.approved(t)
	_, err = f.svc.Complete(ctx, tradeIn.ID, domain.CreditTypeGiftCard)
	require.NoError(t, err)

	balance, err := f.ledger.Balance(ctx, f.member.ID)
	require.NoError(t, err)
	// 11500 payout plus 10% of the 10000 base payout.
	assert.Equal(t, int64(12500), balance.TotalBalance)
	assert.Equal(t, int64(1000), balance.PromoBonusEarned)

	reloaded, err := f.promotions.Get(ctx, promo.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), reloaded.CurrentUses)

	// Past the window the boost no longer applies.
	f.clock.Advance(3 * time.Hour)
	second := f.approved(t)
	_, err = f.svc.Complete(ctx, second.ID, domain.CreditTypeGiftCard)
	require.NoError(t, err)

	balance, err = f.ledger.Balance(ctx, f.member.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(12500+11500), balance.TotalBalance)
}

func TestCalculatePayout_PureReadNoWrites(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	preview, err := f.svc.CalculatePayout(ctx, "gold", []domain.ItemInput{
		{CategoryID: f.catGames, ConditionCode: "MINT", Quantity: 5, MarketValue: 4000},
	})
	require.NoError(t, err)
	assert.Equal(t, "GOLD", preview.Tier)
	assert.Equal(t, int64(11500), preview.Valuation.TotalCredit)

	tradeIns, err := f.svc.List(ctx, domain.ListFilter{MemberID: f.member.ID})
	require.NoError(t, err)
	assert.Empty(t, tradeIns)
}
