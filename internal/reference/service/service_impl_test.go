package service

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/meridian/internal/reference/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) domain.Service {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&domain.Tier{},
		&domain.TradeInCategory{},
		&domain.ConditionInfo{},
		&domain.BulkBonusTier{},
	))

	node, err := snowflake.NewNode(6)
	require.NoError(t, err)

	return New(Params{DB: db, Log: zap.NewNop(), GenID: node})
}

func TestCreateTier_NormalizesAndRejectsDuplicates(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	tier, err := svc.CreateTier(ctx, domain.CreateTierRequest{Name: "  gold ", TradeInBonusPct: 10})
	require.NoError(t, err)
	assert.Equal(t, "GOLD", tier.Name)

	_, err = svc.CreateTier(ctx, domain.CreateTierRequest{Name: "Gold"})
	assert.ErrorIs(t, err, domain.ErrTierExists)

	_, err = svc.CreateTier(ctx, domain.CreateTierRequest{Name: "   "})
	assert.ErrorIs(t, err, domain.ErrInvalidName)

	_, err = svc.CreateTier(ctx, domain.CreateTierRequest{Name: "SILVER", TradeInBonusPct: 120})
	assert.ErrorIs(t, err, domain.ErrInvalidPct)
}

func TestUpdateTier_PartialFields(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	tier, err := svc.CreateTier(ctx, domain.CreateTierRequest{
		Name: "GOLD", TradeInBonusPct: 10, StoreDiscountPct: 10,
	})
	require.NoError(t, err)

	discount := 12.5
	updated, err := svc.UpdateTier(ctx, tier.ID.String(), domain.UpdateTierRequest{
		StoreDiscountPct: &discount,
	})
	require.NoError(t, err)
	assert.Equal(t, 12.5, updated.StoreDiscountPct)
	assert.Equal(t, float64(10), updated.TradeInBonusPct, "untouched field survives")

	_, err = svc.UpdateTier(ctx, "9999999", domain.UpdateTierRequest{})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSnapshot_CaseInsensitiveLookups(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateTier(ctx, domain.CreateTierRequest{Name: "Platinum", TradeInBonusPct: 15})
	require.NoError(t, err)
	_, err = svc.UpsertCondition(ctx, domain.UpsertConditionRequest{Code: "Near_Mint", Label: "Near Mint", Modifier: 0.9})
	require.NoError(t, err)

	snap, err := svc.Snapshot(ctx)
	require.NoError(t, err)

	tier, ok := snap.TierByName("pLaTiNuM")
	require.True(t, ok)
	assert.Equal(t, float64(15), tier.TradeInBonusPct)

	condition, ok := snap.Condition(" NEAR_MINT ")
	require.True(t, ok)
	assert.Equal(t, 0.9, condition.Modifier)
}

func TestSnapshot_BulkTiersSortedByThreshold(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for _, req := range []domain.CreateBulkBonusTierRequest{
		{ItemCountThreshold: 25, BonusPct: 12},
		{ItemCountThreshold: 5, BonusPct: 5},
		{ItemCountThreshold: 10, BonusPct: 8},
	} {
		_, err := svc.CreateBulkBonusTier(ctx, req)
		require.NoError(t, err)
	}

	snap, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap.BulkBonusTiers, 3)
	assert.Equal(t, []int{5, 10, 25}, []int{
		snap.BulkBonusTiers[0].ItemCountThreshold,
		snap.BulkBonusTiers[1].ItemCountThreshold,
		snap.BulkBonusTiers[2].ItemCountThreshold,
	})

	assert.Equal(t, float64(8), snap.BulkBonusPct(12), "highest threshold at or below count wins")
	assert.Equal(t, float64(0), snap.BulkBonusPct(3))
}

func TestUpsertCondition_Validation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.UpsertCondition(ctx, domain.UpsertConditionRequest{Code: "mint", Label: "Mint", Modifier: 0})
	assert.ErrorIs(t, err, domain.ErrInvalidModifier)

	created, err := svc.UpsertCondition(ctx, domain.UpsertConditionRequest{Code: "MINT", Label: "Mint", Modifier: 1})
	require.NoError(t, err)
	assert.Equal(t, "mint", created.Code, "codes are stored lower-case")

	// Upsert with the same code revises in place.
	revised, err := svc.UpsertCondition(ctx, domain.UpsertConditionRequest{Code: "mint", Label: "Mint", Modifier: 0.95})
	require.NoError(t, err)
	assert.Equal(t, 0.95, revised.Modifier)

	conditions, err := svc.ListConditions(ctx)
	require.NoError(t, err)
	assert.Len(t, conditions, 1)
}
