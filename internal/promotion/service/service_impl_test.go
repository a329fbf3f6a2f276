package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/meridian/internal/promotion/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) domain.Service {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Promotion{}, &domain.PromotionUsage{}))

	node, err := snowflake.NewNode(5)
	require.NoError(t, err)

	return New(Params{DB: db, Log: zap.NewNop(), GenID: node})
}

func createPromo(t *testing.T, svc domain.Service, mutate func(*domain.CreateRequest)) *domain.Promotion {
	t.Helper()
	req := domain.CreateRequest{
		Name:         "Weekend Boost",
		PromoType:    domain.PromoTypeTradeInBonus,
		BonusPercent: 10,
		StartsAt:     time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC),
		EndsAt:       time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC),
		Channel:      domain.ChannelInStore,
		Stackable:    true,
	}
	if mutate != nil {
		mutate(&req)
	}
	promo, err := svc.Create(context.Background(), req)
	require.NoError(t, err)
	return promo
}

func TestCreate_ValidatesValueShape(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, domain.CreateRequest{
		Name:      "No Value",
		PromoType: domain.PromoTypeFlatBonus,
		StartsAt:  time.Now(),
		EndsAt:    time.Now().Add(time.Hour),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidValue)

	_, err = svc.Create(ctx, domain.CreateRequest{
		Name:      "Backwards Window",
		PromoType: domain.PromoTypeFlatBonus,
		BonusFlat: 100,
		StartsAt:  time.Now().Add(time.Hour),
		EndsAt:    time.Now(),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidWindow)

	_, err = svc.Create(ctx, domain.CreateRequest{
		Name:         "Over Percent",
		PromoType:    domain.PromoTypeTradeInBonus,
		BonusPercent: 150,
		StartsAt:     time.Now(),
		EndsAt:       time.Now().Add(time.Hour),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidValue)
}

func TestActiveFor_FiltersTypeChannelAndWindow(t *testing.T) {
	svc := newTestService(t)
	inWindow := time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)

	keep := createPromo(t, svc, nil)
	createPromo(t, svc, func(req *domain.CreateRequest) {
		req.Name = "Online Only"
		req.Channel = domain.ChannelOnline
	})
	createPromo(t, svc, func(req *domain.CreateRequest) {
		req.Name = "Expired"
		req.StartsAt = time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
		req.EndsAt = time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC)
	})
	allChannels := createPromo(t, svc, func(req *domain.CreateRequest) {
		req.Name = "Everywhere"
		req.Channel = domain.ChannelAll
	})

	active, err := svc.ActiveFor(context.Background(), domain.PromoTypeTradeInBonus, domain.ChannelInStore, inWindow)
	require.NoError(t, err)
	require.Len(t, active, 2)
	ids := []snowflake.ID{active[0].ID, active[1].ID}
	assert.Contains(t, ids, keep.ID)
	assert.Contains(t, ids, allChannels.ID)
}

func TestCommitUsage_EnforcesGlobalCap(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	promo := createPromo(t, svc, func(req *domain.CreateRequest) {
		req.MaxUses = 2
	})

	memberA := snowflake.ID(101)
	memberB := snowflake.ID(102)
	memberC := snowflake.ID(103)

	require.NoError(t, svc.CommitUsage(ctx, promo.ID, memberA))
	require.NoError(t, svc.CommitUsage(ctx, promo.ID, memberB))
	assert.ErrorIs(t, svc.CommitUsage(ctx, promo.ID, memberC), domain.ErrUsageExhausted)

	refreshed, err := svc.Get(ctx, promo.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), refreshed.CurrentUses)
}

func TestUsageFor_ReportsTotalsAndMemberCounts(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	promo := createPromo(t, svc, nil)
	member := snowflake.ID(7)

	require.NoError(t, svc.CommitUsage(ctx, promo.ID, member))
	require.NoError(t, svc.CommitUsage(ctx, promo.ID, member))

	promos, err := svc.List(ctx, domain.ListFilter{})
	require.NoError(t, err)
	usage, err := svc.UsageFor(ctx, member, promos)
	require.NoError(t, err)

	assert.Equal(t, int64(2), usage[promo.ID].Total)
	assert.Equal(t, int64(2), usage[promo.ID].Member)

	stranger, err := svc.UsageFor(ctx, snowflake.ID(8), promos)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stranger[promo.ID].Total)
	assert.Equal(t, int64(0), stranger[promo.ID].Member)
}

func TestDelete_RemovesPromotion(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	promo := createPromo(t, svc, nil)

	require.NoError(t, svc.Delete(ctx, promo.ID))

	_, err := svc.Get(ctx, promo.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.ErrorIs(t, svc.Delete(ctx, snowflake.ID(0)), domain.ErrInvalidID)
}

func TestCommitUsage_UnknownPromotion(t *testing.T) {
	svc := newTestService(t)
	err := svc.CommitUsage(context.Background(), snowflake.ID(999), snowflake.ID(1))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
