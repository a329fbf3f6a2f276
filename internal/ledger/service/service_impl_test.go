package service

import (
	"context"
	"sync"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	ledgerdomain "github.com/smallbiznis/meridian/internal/ledger/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (*Service, *gorm.DB, *snowflake.Node) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&ledgerdomain.StoreCreditEntry{}))

	// The migration creates this as a partial index; sqlite in tests gets
	// the same guard.
	db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS ux_store_credit_entries_source
		ON store_credit_entries(member_id, source_type, source_id)
		WHERE event_type <> 'adjustment'`)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := New(Params{DB: db, Log: zap.NewNop(), GenID: node}).(*Service)
	return svc, db, node
}

func TestPost_RunningBalance(t *testing.T) {
	svc, _, node := newTestService(t)
	ctx := context.Background()
	memberID := node.Generate()

	first, err := svc.Post(ctx, ledgerdomain.PostRequest{
		MemberID:    memberID,
		Amount:      1500,
		SourceType:  ledgerdomain.SourceTypeTradeIn,
		SourceID:    node.Generate(),
		Description: "trade-in payout",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1500), first.BalanceAfter)
	assert.Equal(t, ledgerdomain.EventTypeCredit, first.EventType)

	second, err := svc.Post(ctx, ledgerdomain.PostRequest{
		MemberID:    memberID,
		Amount:      -500,
		SourceType:  ledgerdomain.SourceTypeManual,
		SourceID:    node.Generate(),
		Description: "redeemed at register",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1000), second.BalanceAfter)
	assert.Equal(t, ledgerdomain.EventTypeDebit, second.EventType)
}

func TestPost_RejectsOverdraft(t *testing.T) {
	svc, _, node := newTestService(t)
	ctx := context.Background()
	memberID := node.Generate()

	_, err := svc.Post(ctx, ledgerdomain.PostRequest{
		MemberID:    memberID,
		Amount:      200,
		SourceType:  ledgerdomain.SourceTypeManual,
		SourceID:    node.Generate(),
		Description: "grant",
	})
	require.NoError(t, err)

	_, err = svc.Post(ctx, ledgerdomain.PostRequest{
		MemberID:    memberID,
		Amount:      -500,
		SourceType:  ledgerdomain.SourceTypeManual,
		SourceID:    node.Generate(),
		Description: "deduct too much",
	})
	assert.ErrorIs(t, err, ledgerdomain.ErrInsufficientBalance)
}

func TestPost_DuplicateSourceRejected(t *testing.T) {
	svc, db, node := newTestService(t)
	ctx := context.Background()
	memberID := node.Generate()
	sourceID := node.Generate()

	req := ledgerdomain.PostRequest{
		MemberID:    memberID,
		Amount:      1000,
		SourceType:  ledgerdomain.SourceTypeTradeIn,
		SourceID:    sourceID,
		Description: "trade-in payout",
	}

	_, err := svc.Post(ctx, req)
	require.NoError(t, err)

	// A retried webhook delivers the same source. One entry, not two.
	_, err = svc.Post(ctx, req)
	assert.ErrorIs(t, err, ledgerdomain.ErrDuplicateSource)

	var count int64
	db.Model(&ledgerdomain.StoreCreditEntry{}).
		Where("member_id = ?", memberID).
		Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestPost_AdjustmentBypassesDuplicateGuard(t *testing.T) {
	svc, _, node := newTestService(t)
	ctx := context.Background()
	memberID := node.Generate()
	sourceID := node.Generate()

	_, err := svc.Post(ctx, ledgerdomain.PostRequest{
		MemberID:    memberID,
		Amount:      1000,
		SourceType:  ledgerdomain.SourceTypeTradeIn,
		SourceID:    sourceID,
		Description: "trade-in payout",
	})
	require.NoError(t, err)

	entry, err := svc.Post(ctx, ledgerdomain.PostRequest{
		MemberID:    memberID,
		EventType:   ledgerdomain.EventTypeAdjustment,
		Amount:      -100,
		SourceType:  ledgerdomain.SourceTypeTradeIn,
		SourceID:    sourceID,
		Description: "reviewer correction: overgraded condition",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(900), entry.BalanceAfter)
}

func TestPost_RequiresDescription(t *testing.T) {
	svc, _, node := newTestService(t)

	_, err := svc.Post(context.Background(), ledgerdomain.PostRequest{
		MemberID:   node.Generate(),
		Amount:     100,
		SourceType: ledgerdomain.SourceTypeManual,
		SourceID:   node.Generate(),
	})
	assert.ErrorIs(t, err, ledgerdomain.ErrMissingDescription)
}

func TestBalance_CategorySubtotals(t *testing.T) {
	svc, _, node := newTestService(t)
	ctx := context.Background()
	memberID := node.Generate()

	post := func(amount int64, source ledgerdomain.SourceType) {
		t.Helper()
		_, err := svc.Post(ctx, ledgerdomain.PostRequest{
			MemberID:    memberID,
			Amount:      amount,
			SourceType:  source,
			SourceID:    node.Generate(),
			Description: "test posting",
		})
		require.NoError(t, err)
	}

	post(1000, ledgerdomain.SourceTypeTradeIn)
	post(250, ledgerdomain.SourceTypePromotion)
	post(75, ledgerdomain.SourceTypeCashback)
	post(-300, ledgerdomain.SourceTypeManual)

	balance, err := svc.Balance(ctx, memberID)
	require.NoError(t, err)
	assert.Equal(t, int64(1025), balance.TotalBalance)
	assert.Equal(t, int64(1025), balance.AvailableBalance)
	assert.Equal(t, int64(1000), balance.TradeInEarned)
	assert.Equal(t, int64(250), balance.PromoBonusEarned)
	assert.Equal(t, int64(75), balance.CashbackEarned)
}

func TestReconcile_MatchesRunningBalance(t *testing.T) {
	svc, _, node := newTestService(t)
	ctx := context.Background()
	memberID := node.Generate()

	amounts := []int64{500, 200, -100, 1000, -250}
	for _, amount := range amounts {
		_, err := svc.Post(ctx, ledgerdomain.PostRequest{
			MemberID:    memberID,
			Amount:      amount,
			SourceType:  ledgerdomain.SourceTypeManual,
			SourceID:    node.Generate(),
			Description: "sequence posting",
		})
		require.NoError(t, err)
	}

	result, err := svc.Reconcile(ctx, memberID)
	require.NoError(t, err)
	assert.True(t, result.Consistent)
	assert.Equal(t, int64(1350), result.ComputedBalance)
	assert.Equal(t, result.ComputedBalance, result.LastBalanceAfter)
	assert.Equal(t, int64(len(amounts)), result.EntryCount)
}

func TestReconcile_DetectsTampering(t *testing.T) {
	svc, db, node := newTestService(t)
	ctx := context.Background()
	memberID := node.Generate()

	_, err := svc.Post(ctx, ledgerdomain.PostRequest{
		MemberID:    memberID,
		Amount:      500,
		SourceType:  ledgerdomain.SourceTypeManual,
		SourceID:    node.Generate(),
		Description: "grant",
	})
	require.NoError(t, err)

	// Simulate a balance mutated outside the ledger.
	db.Model(&ledgerdomain.StoreCreditEntry{}).
		Where("member_id = ?", memberID).
		Update("balance_after", 9999)

	_, err = svc.Reconcile(ctx, memberID)
	assert.ErrorIs(t, err, ledgerdomain.ErrBalanceMismatch)
}

func TestPost_ConcurrentSameMember(t *testing.T) {
	svc, _, node := newTestService(t)
	ctx := context.Background()
	memberID := node.Generate()

	const writers = 16
	var wg sync.WaitGroup
	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func() {
			defer wg.Done()
			_, err := svc.Post(ctx, ledgerdomain.PostRequest{
				MemberID:    memberID,
				Amount:      100,
				SourceType:  ledgerdomain.SourceTypeBulkCredit,
				SourceID:    node.Generate(),
				Description: "concurrent grant",
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	result, err := svc.Reconcile(ctx, memberID)
	require.NoError(t, err)
	assert.True(t, result.Consistent)
	assert.Equal(t, int64(writers*100), result.ComputedBalance)
}

func TestBalance_HoldReducesAvailableOnly(t *testing.T) {
	svc, _, node := newTestService(t)
	ctx := context.Background()
	memberID := node.Generate()

	_, err := svc.Post(ctx, ledgerdomain.PostRequest{
		MemberID:    memberID,
		Amount:      1000,
		SourceType:  ledgerdomain.SourceTypeManual,
		SourceID:    node.Generate(),
		Description: "grant",
	})
	require.NoError(t, err)

	_, err = svc.Post(ctx, ledgerdomain.PostRequest{
		MemberID:    memberID,
		EventType:   ledgerdomain.EventTypeHold,
		Amount:      -400,
		SourceType:  ledgerdomain.SourceTypeManual,
		SourceID:    node.Generate(),
		Description: "pending redemption hold",
	})
	require.NoError(t, err)

	balance, err := svc.Balance(ctx, memberID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), balance.TotalBalance)
	assert.Equal(t, int64(400), balance.PendingBalance)
	assert.Equal(t, int64(600), balance.AvailableBalance)
	// The audit chain keeps the hold's signed amount, so it sits below the
	// hold-exclusive total until the hold resolves.
	assert.Equal(t, int64(600), balance.LedgerBalance)
}
