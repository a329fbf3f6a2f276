package migration

import (
	bulkcreditdomain "github.com/smallbiznis/meridian/internal/bulkcredit/domain"
	"github.com/smallbiznis/meridian/internal/config"
	ledgerdomain "github.com/smallbiznis/meridian/internal/ledger/domain"
	memberdomain "github.com/smallbiznis/meridian/internal/member/domain"
	promotiondomain "github.com/smallbiznis/meridian/internal/promotion/domain"
	referencedomain "github.com/smallbiznis/meridian/internal/reference/domain"
	"github.com/smallbiznis/meridian/internal/seed"
	tradeindomain "github.com/smallbiznis/meridian/internal/tradein/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else {
			// mysql and sqlite deployments are dev/test setups; gorm's
			// schema sync plus the manual partial index covers them.
			if err := autoMigrate(conn); err != nil {
				return err
			}
		}
		return seed.EnsureDefaults(conn)
	}),
)

func autoMigrate(conn *gorm.DB) error {
	if err := conn.AutoMigrate(
		&referencedomain.Tier{},
		&referencedomain.TradeInCategory{},
		&referencedomain.ConditionInfo{},
		&referencedomain.BulkBonusTier{},
		&memberdomain.Member{},
		&promotiondomain.Promotion{},
		&promotiondomain.PromotionUsage{},
		&tradeindomain.TradeIn{},
		&tradeindomain.TradeInItem{},
		&ledgerdomain.StoreCreditEntry{},
		&bulkcreditdomain.BulkCreditOperation{},
	); err != nil {
		return err
	}
	return conn.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS ux_store_credit_entries_source
		ON store_credit_entries(member_id, source_type, source_id)
		WHERE event_type <> 'adjustment'`).Error
}
