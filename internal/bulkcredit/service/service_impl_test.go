package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/meridian/internal/bulkcredit/domain"
	"github.com/smallbiznis/meridian/internal/clock"
	ledgerdomain "github.com/smallbiznis/meridian/internal/ledger/domain"
	ledgerservice "github.com/smallbiznis/meridian/internal/ledger/service"
	memberdomain "github.com/smallbiznis/meridian/internal/member/domain"
	memberservice "github.com/smallbiznis/meridian/internal/member/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	svc     domain.Service
	ledger  ledgerdomain.Service
	members memberdomain.Service
	db      *gorm.DB
}

// flakyLedger fails postings for the members in failFor, then delegates.
type flakyLedger struct {
	ledgerdomain.Service
	failFor map[snowflake.ID]bool
}

func (f *flakyLedger) Post(ctx context.Context, req ledgerdomain.PostRequest) (*ledgerdomain.StoreCreditEntry, error) {
	if f.failFor[req.MemberID] {
		return nil, fmt.Errorf("simulated outage")
	}
	return f.Service.Post(ctx, req)
}

func newFixture(t *testing.T, ledgerWrap func(ledgerdomain.Service) ledgerdomain.Service) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&memberdomain.Member{},
		&ledgerdomain.StoreCreditEntry{},
		&domain.BulkCreditOperation{},
	))
	db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS ux_store_credit_entries_source
		ON store_credit_entries(member_id, source_type, source_id)
		WHERE event_type <> 'adjustment'`)

	node, err := snowflake.NewNode(3)
	require.NoError(t, err)
	log := zap.NewNop()
	fakeClock := clock.NewFakeClock(time.Date(2026, time.March, 4, 9, 0, 0, 0, time.UTC))

	members := memberservice.New(memberservice.Params{DB: db, Log: log, GenID: node})
	ledger := ledgerservice.New(ledgerservice.Params{DB: db, Log: log, GenID: node})
	if ledgerWrap != nil {
		ledger = ledgerWrap(ledger)
	}

	svc := New(Params{
		DB:      db,
		Log:     log,
		GenID:   node,
		Clock:   fakeClock,
		Members: members,
		Ledger:  ledger,
	})
	return &fixture{svc: svc, ledger: ledger, members: members, db: db}
}

func (f *fixture) seedMembers(t *testing.T, tier string, count int) []*memberdomain.Member {
	t.Helper()
	out := make([]*memberdomain.Member, 0, count)
	for i := 0; i < count; i++ {
		member, err := f.members.Create(context.Background(), memberdomain.CreateMemberRequest{
			Email: fmt.Sprintf("member-%s-%d@example.com", tier, i),
			Name:  fmt.Sprintf("Member %d", i),
			Tier:  tier,
		})
		require.NoError(t, err)
		out = append(out, member)
	}
	return out
}

func TestCreate_Validates(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.svc.Create(context.Background(), domain.CreateRequest{AmountPerMember: 0})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	op, err := f.svc.Create(context.Background(), domain.CreateRequest{
		AmountPerMember: 500, TierFilter: "gold",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, op.Status)
	assert.Equal(t, "GOLD", op.TierFilter)
}

func TestPreview_PureRead(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.seedMembers(t, "GOLD", 7)
	f.seedMembers(t, "BRONZE", 2)

	op, err := f.svc.Create(ctx, domain.CreateRequest{AmountPerMember: 500, TierFilter: "GOLD"})
	require.NoError(t, err)

	preview, err := f.svc.Preview(ctx, op.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(7), preview.MemberCount)
	assert.Equal(t, int64(3500), preview.TotalAmount)
	assert.Len(t, preview.Sample, 5)

	var entries int64
	f.db.Model(&ledgerdomain.StoreCreditEntry{}).Count(&entries)
	assert.Zero(t, entries)

	reloaded, err := f.svc.Get(ctx, op.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, reloaded.Status)
}

func TestExecute_CreditsEveryMatchingMember(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	members := f.seedMembers(t, "GOLD", 3)

	op, err := f.svc.Create(ctx, domain.CreateRequest{AmountPerMember: 1000, TierFilter: "GOLD"})
	require.NoError(t, err)

	executed, err := f.svc.Execute(ctx, op.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, executed.Status)
	assert.Equal(t, int64(3), executed.MemberCount)
	assert.Equal(t, int64(3000), executed.TotalAmount)
	assert.Empty(t, executed.Failures)

	for _, member := range members {
		balance, err := f.ledger.Balance(ctx, member.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1000), balance.TotalBalance)
	}
}

func TestExecute_NonPendingIsNoOp(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	members := f.seedMembers(t, "GOLD", 2)

	op, err := f.svc.Create(ctx, domain.CreateRequest{AmountPerMember: 1000, TierFilter: "GOLD"})
	require.NoError(t, err)

	_, err = f.svc.Execute(ctx, op.ID)
	require.NoError(t, err)

	again, err := f.svc.Execute(ctx, op.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, again.Status)

	// No double credit.
	balance, err := f.ledger.Balance(ctx, members[0].ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), balance.TotalBalance)
}

func TestExecute_PartialFailureThenRetry(t *testing.T) {
	var flaky *flakyLedger
	f := newFixture(t, func(real ledgerdomain.Service) ledgerdomain.Service {
		flaky = &flakyLedger{Service: real, failFor: map[snowflake.ID]bool{}}
		return flaky
	})
	ctx := context.Background()
	members := f.seedMembers(t, "GOLD", 3)
	flaky.failFor[members[1].ID] = true

	op, err := f.svc.Create(ctx, domain.CreateRequest{AmountPerMember: 1000, TierFilter: "GOLD"})
	require.NoError(t, err)

	executed, err := f.svc.Execute(ctx, op.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, executed.Status)
	assert.Equal(t, int64(2000), executed.TotalAmount)
	require.Len(t, executed.Failures, 1)
	assert.Equal(t, members[1].ID.String(), executed.Failures[0].MemberID)

	// The two successful postings stand; the operation is not reversed.
	balance, err := f.ledger.Balance(ctx, members[0].ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), balance.TotalBalance)

	// Retry after the outage clears. Already-credited members are skipped
	// by the duplicate guard, so everyone ends at exactly one credit.
	delete(flaky.failFor, members[1].ID)
	retried, err := f.svc.Retry(ctx, op.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, retried.Status)
	assert.Empty(t, retried.Failures)

	for _, member := range members {
		balance, err := f.ledger.Balance(ctx, member.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1000), balance.TotalBalance)
	}
}

func TestRetry_OnlyFailedOperations(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.seedMembers(t, "GOLD", 1)

	op, err := f.svc.Create(ctx, domain.CreateRequest{AmountPerMember: 1000})
	require.NoError(t, err)

	_, err = f.svc.Retry(ctx, op.ID)
	assert.ErrorIs(t, err, domain.ErrNotRetryable)
}
