package models

import (
	"time"

	"github.com/angelmondragon/cartcore-backend/pkg/enums"
	"github.com/shopspring/decimal"
)

// Coupon is a discount rule redeemable by code.
type Coupon struct {
	Code               string             `gorm:"column:code;primaryKey"`
	DiscountType       enums.DiscountType `gorm:"column:discount_type;not null"`
	Value              decimal.Decimal    `gorm:"column:value;type:numeric(12,4);not null"`
	Scope              enums.CouponScope  `gorm:"column:scope;not null;default:cart"`
	MinimumSpendCents  int64              `gorm:"column:minimum_spend_cents;not null;default:0"`
	UsageLimit         int                `gorm:"column:usage_limit;not null;default:0"`
	UsageCount         int                `gorm:"column:usage_count;not null;default:0"`
	EligibleProductIDs []string           `gorm:"column:eligible_product_ids;type:jsonb;serializer:json"`
	StartsAt           *time.Time         `gorm:"column:starts_at"`
	ExpiresAt          *time.Time         `gorm:"column:expires_at"`
	Active             bool               `gorm:"column:active;not null"`
	CreatedAt          time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (Coupon) TableName() string { return "coupons" }
