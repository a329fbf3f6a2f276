package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/meridian/internal/bulkcredit/domain"
	"github.com/smallbiznis/meridian/internal/clock"
	ledgerdomain "github.com/smallbiznis/meridian/internal/ledger/domain"
	memberdomain "github.com/smallbiznis/meridian/internal/member/domain"
	obsmetrics "github.com/smallbiznis/meridian/internal/observability/metrics"
	"github.com/smallbiznis/meridian/internal/ratelimit"
	referencedomain "github.com/smallbiznis/meridian/internal/reference/domain"
	"github.com/smallbiznis/meridian/pkg/db/option"
	"github.com/smallbiznis/meridian/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const previewSampleSize = 5

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Members    memberdomain.Service
	Ledger     ledgerdomain.Service
	Limiter    *ratelimit.Limiter  `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	members    memberdomain.Service
	ledger     ledgerdomain.Service
	limiter    *ratelimit.Limiter
	obsMetrics *obsmetrics.Metrics

	opRepo repository.Repository[domain.BulkCreditOperation]
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("bulkcredit.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		members:    p.Members,
		ledger:     p.Ledger,
		limiter:    p.Limiter,
		obsMetrics: p.ObsMetrics,

		opRepo: repository.ProvideStore[domain.BulkCreditOperation](p.DB),
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.BulkCreditOperation, error) {
	if req.AmountPerMember <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	now := s.clock.Now()
	op := domain.BulkCreditOperation{
		ID:              s.genID.Generate(),
		Description:     strings.TrimSpace(req.Description),
		AmountPerMember: req.AmountPerMember,
		TierFilter:      referencedomain.NormalizeTierName(req.TierFilter),
		StatusFilter:    strings.ToLower(strings.TrimSpace(req.StatusFilter)),
		Status:          domain.StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.opRepo.Create(ctx, &op); err != nil {
		return nil, err
	}
	s.log.Info("bulk credit operation created",
		zap.String("operation_id", op.ID.String()),
		zap.Int64("amount_per_member", op.AmountPerMember),
	)
	return &op, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.BulkCreditOperation, error) {
	if id == 0 {
		return nil, domain.ErrInvalidID
	}
	op, err := s.opRepo.FindOne(ctx, &domain.BulkCreditOperation{ID: id})
	if err != nil {
		return nil, err
	}
	if op == nil {
		return nil, domain.ErrNotFound
	}
	return op, nil
}

func (s *Service) List(ctx context.Context, limit int) ([]domain.BulkCreditOperation, error) {
	opts := []option.QueryOption{option.WithOrderBy("id desc")}
	if limit > 0 {
		opts = append(opts, option.WithLimit(limit))
	}
	ops, err := s.opRepo.Find(ctx, &domain.BulkCreditOperation{}, opts...)
	if err != nil {
		return nil, err
	}
	out := make([]domain.BulkCreditOperation, 0, len(ops))
	for _, op := range ops {
		out = append(out, *op)
	}
	return out, nil
}

// Preview resolves the filter against current member data. Pure read.
func (s *Service) Preview(ctx context.Context, id snowflake.ID) (*domain.PreviewResult, error) {
	op, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	members, err := s.resolveMembers(ctx, op)
	if err != nil {
		return nil, err
	}

	sample := members
	if len(sample) > previewSampleSize {
		sample = sample[:previewSampleSize]
	}
	return &domain.PreviewResult{
		MemberCount: int64(len(members)),
		TotalAmount: int64(len(members)) * op.AmountPerMember,
		Sample:      sample,
	}, nil
}

// Execute fans the operation out into one ledger posting per member.
// Re-invoking on a non-pending operation returns the current state without
// re-posting. A redis lock keeps two operators from racing the same
// operation across instances; the DB status flip is the fallback guard
// when rate limiting is disabled.
func (s *Service) Execute(ctx context.Context, id snowflake.ID) (*domain.BulkCreditOperation, error) {
	op, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if op.Status != domain.StatusPending {
		return op, nil
	}
	return s.run(ctx, op, domain.StatusPending)
}

// Retry re-runs a failed operation. Members credited by the earlier run are
// skipped by the ledger's duplicate guard, so only the failed remainder
// posts again.
func (s *Service) Retry(ctx context.Context, id snowflake.ID) (*domain.BulkCreditOperation, error) {
	op, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if op.Status != domain.StatusFailed {
		return nil, domain.ErrNotRetryable
	}
	return s.run(ctx, op, domain.StatusFailed)
}

func (s *Service) run(ctx context.Context, op *domain.BulkCreditOperation, from domain.Status) (*domain.BulkCreditOperation, error) {
	token, acquired, err := s.limiter.TryLockOperation(ctx, op.ID.String())
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, domain.ErrLocked
	}
	defer func() {
		if err := s.limiter.ReleaseOperation(context.WithoutCancel(ctx), op.ID.String(), token); err != nil {
			s.log.Warn("bulk execute lock release failed", zap.Error(err))
		}
	}()

	now := s.clock.Now()
	res := s.db.WithContext(ctx).Model(&domain.BulkCreditOperation{}).
		Where("id = ? AND status = ?", op.ID, from).
		Updates(map[string]interface{}{
			"status":     domain.StatusProcessing,
			"started_at": now,
			"updated_at": now,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		// Someone else moved it first.
		return s.Get(ctx, op.ID)
	}

	members, err := s.resolveMembers(ctx, op)
	if err != nil {
		return nil, s.finish(ctx, op, 0, 0, []domain.MemberFailure{{Reason: err.Error()}})
	}

	var credited int64
	var failures []domain.MemberFailure
	for _, member := range members {
		_, err := s.ledger.Post(ctx, ledgerdomain.PostRequest{
			MemberID:        member.ID,
			Amount:          op.AmountPerMember,
			SourceType:      ledgerdomain.SourceTypeBulkCredit,
			SourceID:        op.ID,
			SourceReference: member.ID.String(),
			Description:     bulkDescription(op),
		})
		switch {
		case err == nil:
			credited++
		case errors.Is(err, ledgerdomain.ErrDuplicateSource):
			// Credited by an earlier run.
			credited++
		default:
			failures = append(failures, domain.MemberFailure{
				MemberID: member.ID.String(),
				Reason:   err.Error(),
			})
		}
	}

	if err := s.finish(ctx, op, int64(len(members)), credited*op.AmountPerMember, failures); err != nil {
		return nil, err
	}
	return s.Get(ctx, op.ID)
}

func (s *Service) finish(ctx context.Context, op *domain.BulkCreditOperation, memberCount, totalAmount int64, failures []domain.MemberFailure) error {
	status := domain.StatusCompleted
	if len(failures) > 0 {
		status = domain.StatusFailed
	}

	now := s.clock.Now()
	err := s.db.WithContext(ctx).Model(&domain.BulkCreditOperation{}).
		Where("id = ?", op.ID).
		Updates(map[string]interface{}{
			"status":       status,
			"member_count": memberCount,
			"total_amount": totalAmount,
			"failures":     datatypes.JSONSlice[domain.MemberFailure](failures),
			"finished_at":  now,
			"updated_at":   now,
		}).Error
	if err != nil {
		return err
	}

	s.obsMetrics.RecordBulkOperation(ctx, string(status))
	s.log.Info("bulk credit operation finished",
		zap.String("operation_id", op.ID.String()),
		zap.String("status", string(status)),
		zap.Int64("member_count", memberCount),
		zap.Int64("total_amount", totalAmount),
		zap.Int("failures", len(failures)),
	)
	return nil
}

func (s *Service) resolveMembers(ctx context.Context, op *domain.BulkCreditOperation) ([]memberdomain.Member, error) {
	status := memberdomain.MemberStatus(op.StatusFilter)
	if status == "" {
		status = memberdomain.MemberStatusActive
	}
	return s.members.List(ctx, memberdomain.ListMemberFilter{
		Tier:   op.TierFilter,
		Status: status,
	})
}

func bulkDescription(op *domain.BulkCreditOperation) string {
	if op.Description != "" {
		return op.Description
	}
	return "bulk credit grant"
}
