// Package seed bootstraps the reference data a fresh deployment needs:
// membership tiers, condition grades, trade-in categories and bulk bonus
// thresholds. Everything is insert-if-missing so operator edits survive
// restarts.
package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	referencedomain "github.com/smallbiznis/meridian/internal/reference/domain"
	"gorm.io/gorm"
)

func EnsureDefaults(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureTiers(tx, node); err != nil {
			return err
		}
		if err := ensureConditions(tx); err != nil {
			return err
		}
		if err := ensureCategories(tx, node); err != nil {
			return err
		}
		return ensureBulkBonusTiers(tx, node)
	})
}

func ensureTiers(tx *gorm.DB, node *snowflake.Node) error {
	defaults := []referencedomain.Tier{
		{Name: "BRONZE", TradeInBonusPct: 0, PurchaseCashbackPct: 1, StoreDiscountPct: 0, DisplayOrder: 1},
		{Name: "SILVER", TradeInBonusPct: 5, PurchaseCashbackPct: 2, StoreDiscountPct: 5, DisplayOrder: 2},
		{Name: "GOLD", TradeInBonusPct: 10, PurchaseCashbackPct: 3, StoreDiscountPct: 10, MonthlyCreditAmount: 500, DisplayOrder: 3},
		{Name: "PLATINUM", TradeInBonusPct: 15, PurchaseCashbackPct: 5, StoreDiscountPct: 15, MonthlyCreditAmount: 1500, DisplayOrder: 4},
	}

	for _, tier := range defaults {
		var count int64
		if err := tx.Model(&referencedomain.Tier{}).
			Where("name = ?", tier.Name).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			continue
		}
		tier.ID = node.Generate()
		tier.CreatedAt = time.Now().UTC()
		tier.UpdatedAt = tier.CreatedAt
		if err := tx.Create(&tier).Error; err != nil {
			return err
		}
	}
	return nil
}

func ensureConditions(tx *gorm.DB) error {
	defaults := []referencedomain.ConditionInfo{
		{Code: "mint", Label: "Mint", Modifier: 1},
		{Code: "near_mint", Label: "Near Mint", Modifier: 0.9},
		{Code: "light_play", Label: "Lightly Played", Modifier: 0.75},
		{Code: "damaged", Label: "Damaged", Modifier: 0.4},
	}

	for _, condition := range defaults {
		var count int64
		if err := tx.Model(&referencedomain.ConditionInfo{}).
			Where("code = ?", condition.Code).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			continue
		}
		condition.CreatedAt = time.Now().UTC()
		if err := tx.Create(&condition).Error; err != nil {
			return err
		}
	}
	return nil
}

func ensureCategories(tx *gorm.DB, node *snowflake.Node) error {
	defaults := []referencedomain.TradeInCategory{
		{Name: "Games", BasePayoutPct: 0.5, BulkBonusEligible: true},
		{Name: "Consoles", BasePayoutPct: 0.6, MinValue: 1000, BulkBonusEligible: true},
		{Name: "Accessories", BasePayoutPct: 0.4, BulkBonusEligible: true},
		{Name: "Promo Items", BasePayoutPct: 0.2, BulkBonusEligible: false},
	}

	for _, category := range defaults {
		var count int64
		if err := tx.Model(&referencedomain.TradeInCategory{}).
			Where("name = ?", category.Name).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			continue
		}
		category.ID = node.Generate()
		category.CreatedAt = time.Now().UTC()
		category.UpdatedAt = category.CreatedAt
		if err := tx.Create(&category).Error; err != nil {
			return err
		}
	}
	return nil
}

func ensureBulkBonusTiers(tx *gorm.DB, node *snowflake.Node) error {
	defaults := []referencedomain.BulkBonusTier{
		{ItemCountThreshold: 5, BonusPct: 5},
		{ItemCountThreshold: 10, BonusPct: 8},
		{ItemCountThreshold: 25, BonusPct: 12},
	}

	for _, tier := range defaults {
		var count int64
		if err := tx.Model(&referencedomain.BulkBonusTier{}).
			Where("item_count_threshold = ?", tier.ItemCountThreshold).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			continue
		}
		tier.ID = node.Generate()
		tier.CreatedAt = time.Now().UTC()
		if err := tx.Create(&tier).Error; err != nil {
			return err
		}
	}
	return nil
}
