package coupons

import (
	"context"
	"errors"

	"github.com/angelmondragon/cartcore-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/cartcore-backend/pkg/errors"
	"gorm.io/gorm"
)

// Store is the gorm-backed RuleProvider over the coupons table.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) FindByCode(ctx context.Context, code string) (*Rule, error) {
	var row models.Coupon
	err := s.db.WithContext(ctx).Where("code = ?", NormalizeCode(code)).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return ruleFromModel(row), nil
}

// RecordRedemption increments usage_count unless the limit is already reached.
func (s *Store) RecordRedemption(ctx context.Context, code string) error {
	res := s.db.WithContext(ctx).
		Model(&models.Coupon{}).
		Where("code = ? AND (usage_limit = 0 OR usage_count < usage_limit)", NormalizeCode(code)).
		UpdateColumn("usage_count", gorm.Expr("usage_count + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeCouponUsageLimit, "coupon usage limit reached")
	}
	return nil
}

// Upsert stores a rule; used by seeding and admin tooling.
func (s *Store) Upsert(ctx context.Context, rule Rule) error {
	row := modelFromRule(rule)
	return s.db.WithContext(ctx).Save(&row).Error
}

func ruleFromModel(row models.Coupon) *Rule {
	return &Rule{
		Code:               row.Code,
		Type:               row.DiscountType,
		Value:              row.Value,
		Scope:              row.Scope,
		MinimumSpendCents:  row.MinimumSpendCents,
		UsageLimit:         row.UsageLimit,
		UsageCount:         row.UsageCount,
		EligibleProductIDs: row.EligibleProductIDs,
		StartsAt:           row.StartsAt,
		ExpiresAt:          row.ExpiresAt,
		Active:             row.Active,
	}
}

func modelFromRule(rule Rule) models.Coupon {
	return models.Coupon{
		Code:               NormalizeCode(rule.Code),
		DiscountType:       rule.Type,
		Value:              rule.Value,
		Scope:              rule.Scope,
		MinimumSpendCents:  rule.MinimumSpendCents,
		UsageLimit:         rule.UsageLimit,
		UsageCount:         rule.UsageCount,
		EligibleProductIDs: rule.EligibleProductIDs,
		StartsAt:           rule.StartsAt,
		ExpiresAt:          rule.ExpiresAt,
		Active:             rule.Active,
	}
}
