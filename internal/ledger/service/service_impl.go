package service

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/smallbiznis/meridian/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/meridian/internal/observability/metrics"
	"github.com/smallbiznis/meridian/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// memberLockStripes bounds lock memory regardless of member count. Two
// members sharing a stripe serialize against each other, which is safe,
// just occasionally slower.
const memberLockStripes = 64

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	obsMetrics *obsmetrics.Metrics

	memberLocks [memberLockStripes]sync.Mutex
}

func New(p Params) ledgerdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("ledger.service"),
		genID:      p.GenID,
		obsMetrics: p.ObsMetrics,
	}
}

// Post appends one signed entry. Writes for the same member are serialized
// through a striped in-process lock; the partial unique index on
// (member_id, source_type, source_id) is the cross-process guard.
func (s *Service) Post(ctx context.Context, req ledgerdomain.PostRequest) (*ledgerdomain.StoreCreditEntry, error) {
	if req.MemberID == 0 {
		return nil, ledgerdomain.ErrInvalidMember
	}
	if req.Amount == 0 {
		return nil, ledgerdomain.ErrInvalidAmount
	}
	if req.SourceID == 0 {
		return nil, ledgerdomain.ErrInvalidSourceID
	}
	eventType, err := normalizeEventType(req.EventType, req.Amount)
	if err != nil {
		return nil, err
	}
	sourceType, err := normalizeSourceType(req.SourceType)
	if err != nil {
		return nil, err
	}
	description := strings.TrimSpace(req.Description)
	if description == "" {
		return nil, ledgerdomain.ErrMissingDescription
	}

	lock := &s.memberLocks[stripeFor(req.MemberID)]
	lock.Lock()
	defer lock.Unlock()

	var entry *ledgerdomain.StoreCreditEntry
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if eventType != ledgerdomain.EventTypeAdjustment {
			var count int64
			if err := tx.Model(&ledgerdomain.StoreCreditEntry{}).
				Where("member_id = ? AND source_type = ? AND source_id = ? AND event_type <> ?",
					req.MemberID, sourceType, req.SourceID, ledgerdomain.EventTypeAdjustment).
				Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				return ledgerdomain.ErrDuplicateSource
			}
		}

		previous, err := lastBalanceAfter(tx, req.MemberID)
		if err != nil {
			return err
		}

		if req.Amount < 0 {
			available, err := availableBalance(tx, req.MemberID)
			if err != nil {
				return err
			}
			if -req.Amount > available {
				return ledgerdomain.ErrInsufficientBalance
			}
		}

		now := time.Now().UTC()
		candidate := ledgerdomain.StoreCreditEntry{
			ID:              s.genID.Generate(),
			MemberID:        req.MemberID,
			EventType:       eventType,
			Amount:          req.Amount,
			BalanceAfter:    previous + req.Amount,
			SourceType:      sourceType,
			SourceID:        req.SourceID,
			SourceReference: strings.TrimSpace(req.SourceReference),
			PromotionID:     req.PromotionID,
			Channel:         req.Channel,
			Description:     description,
			CreatedAt:       now,
		}
		if req.ExpiresAt != nil {
			expires := time.Unix(*req.ExpiresAt, 0).UTC()
			candidate.ExpiresAt = &expires
		}

		if err := tx.Create(&candidate).Error; err != nil {
			if db.IsDuplicateKeyErr(err) {
				return ledgerdomain.ErrDuplicateSource
			}
			return err
		}
		entry = &candidate
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.obsMetrics.RecordLedgerEntry(ctx, string(sourceType))
	s.log.Info("ledger entry posted",
		zap.String("member_id", req.MemberID.String()),
		zap.String("source_type", string(sourceType)),
		zap.Int64("amount", req.Amount),
		zap.Int64("balance_after", entry.BalanceAfter),
	)
	return entry, nil
}

// Balance derives the member's balances from the entry log. Category
// subtotals are read-time sums filtered by source type, never separately
// mutated.
func (s *Service) Balance(ctx context.Context, memberID snowflake.ID) (ledgerdomain.Balance, error) {
	if memberID == 0 {
		return ledgerdomain.Balance{}, ledgerdomain.ErrInvalidMember
	}

	balance := ledgerdomain.Balance{MemberID: memberID}
	now := time.Now().UTC()

	rows, err := s.db.WithContext(ctx).Model(&ledgerdomain.StoreCreditEntry{}).
		Select("event_type, source_type, amount, expires_at").
		Where("member_id = ?", memberID).
		Rows()
	if err != nil {
		return ledgerdomain.Balance{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var entry ledgerdomain.StoreCreditEntry
		if err := s.db.ScanRows(rows, &entry); err != nil {
			return ledgerdomain.Balance{}, err
		}
		if entry.ExpiresAt != nil && entry.ExpiresAt.Before(now) {
			continue
		}
		if entry.EventType == ledgerdomain.EventTypeHold {
			balance.PendingBalance += -entry.Amount
			continue
		}
		balance.TotalBalance += entry.Amount
		if entry.Amount > 0 {
			switch entry.SourceType {
			case ledgerdomain.SourceTypeTradeIn:
				balance.TradeInEarned += entry.Amount
			case ledgerdomain.SourceTypePromotion:
				balance.PromoBonusEarned += entry.Amount
			case ledgerdomain.SourceTypeCashback:
				balance.CashbackEarned += entry.Amount
			}
		}
	}
	if err := rows.Err(); err != nil {
		return ledgerdomain.Balance{}, err
	}

	chain, err := lastBalanceAfter(s.db.WithContext(ctx), memberID)
	if err != nil {
		return ledgerdomain.Balance{}, err
	}
	balance.LedgerBalance = chain
	balance.AvailableBalance = balance.TotalBalance - balance.PendingBalance
	return balance, nil
}

func (s *Service) Entries(ctx context.Context, memberID snowflake.ID, limit int) ([]ledgerdomain.StoreCreditEntry, error) {
	if memberID == 0 {
		return nil, ledgerdomain.ErrInvalidMember
	}
	if limit <= 0 || limit > 250 {
		limit = 50
	}

	var entries []ledgerdomain.StoreCreditEntry
	err := s.db.WithContext(ctx).
		Where("member_id = ?", memberID).
		Order("id desc").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

// Reconcile recomputes the running balance from the full entry log and
// compares it to the last entry's balance_after. A mismatch means an entry
// was lost or a balance was mutated outside the ledger.
func (s *Service) Reconcile(ctx context.Context, memberID snowflake.ID) (ledgerdomain.ReconcileResult, error) {
	if memberID == 0 {
		return ledgerdomain.ReconcileResult{}, ledgerdomain.ErrInvalidMember
	}

	result := ledgerdomain.ReconcileResult{MemberID: memberID}

	var entries []ledgerdomain.StoreCreditEntry
	if err := s.db.WithContext(ctx).
		Select("amount, balance_after, event_type").
		Where("member_id = ?", memberID).
		Order("id asc").
		Find(&entries).Error; err != nil {
		return ledgerdomain.ReconcileResult{}, err
	}

	var running int64
	for _, entry := range entries {
		running += entry.Amount
		result.LastBalanceAfter = entry.BalanceAfter
	}
	result.EntryCount = int64(len(entries))
	result.ComputedBalance = running
	result.Consistent = running == result.LastBalanceAfter

	if !result.Consistent {
		s.log.Error("ledger reconciliation mismatch",
			zap.String("member_id", memberID.String()),
			zap.Int64("computed", running),
			zap.Int64("last_balance_after", result.LastBalanceAfter),
		)
		return result, ledgerdomain.ErrBalanceMismatch
	}
	return result, nil
}

func availableBalance(tx *gorm.DB, memberID snowflake.ID) (int64, error) {
	now := time.Now().UTC()

	var total int64
	if err := tx.Model(&ledgerdomain.StoreCreditEntry{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("member_id = ? AND event_type <> ? AND (expires_at IS NULL OR expires_at > ?)",
			memberID, ledgerdomain.EventTypeHold, now).
		Scan(&total).Error; err != nil {
		return 0, err
	}

	var held int64
	if err := tx.Model(&ledgerdomain.StoreCreditEntry{}).
		Select("COALESCE(SUM(-amount), 0)").
		Where("member_id = ? AND event_type = ? AND (expires_at IS NULL OR expires_at > ?)",
			memberID, ledgerdomain.EventTypeHold, now).
		Scan(&held).Error; err != nil {
		return 0, err
	}

	return total - held, nil
}

func lastBalanceAfter(tx *gorm.DB, memberID snowflake.ID) (int64, error) {
	var last ledgerdomain.StoreCreditEntry
	err := tx.Where("member_id = ?", memberID).
		Order("id desc").
		First(&last).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return last.BalanceAfter, nil
}

func normalizeEventType(eventType ledgerdomain.EventType, amount int64) (ledgerdomain.EventType, error) {
	switch eventType {
	case ledgerdomain.EventTypeCredit, ledgerdomain.EventTypeDebit,
		ledgerdomain.EventTypeAdjustment, ledgerdomain.EventTypeHold:
		return eventType, nil
	case "":
		if amount < 0 {
			return ledgerdomain.EventTypeDebit, nil
		}
		return ledgerdomain.EventTypeCredit, nil
	default:
		return "", ledgerdomain.ErrInvalidEventType
	}
}

func normalizeSourceType(sourceType ledgerdomain.SourceType) (ledgerdomain.SourceType, error) {
	switch sourceType {
	case ledgerdomain.SourceTypeTradeIn, ledgerdomain.SourceTypePromotion,
		ledgerdomain.SourceTypeCashback, ledgerdomain.SourceTypeBulkCredit,
		ledgerdomain.SourceTypeManual, ledgerdomain.SourceTypeMonthlyCredit:
		return sourceType, nil
	default:
		return "", ledgerdomain.ErrInvalidSourceType
	}
}

func stripeFor(memberID snowflake.ID) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(memberID.String()))
	return int(h.Sum32() % memberLockStripes)
}
