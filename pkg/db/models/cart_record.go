package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/cartcore-backend/pkg/enums"
)

// CartRecord is the persisted cart aggregate. Exactly one owner is stored as
// the (owner_kind, owner_value) pair; ux_carts_active_owner keeps at most one
// active cart per owner.
type CartRecord struct {
	ID               uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	OwnerKind        enums.OwnerKind  `gorm:"column:owner_kind;not null"`
	OwnerValue       string           `gorm:"column:owner_value;not null"`
	Currency         enums.Currency   `gorm:"column:currency;not null"`
	Status           enums.CartStatus `gorm:"column:status;not null"`
	Version          int64            `gorm:"column:version;not null"`
	Coupon           *CartCoupon      `gorm:"column:coupon;type:jsonb;serializer:json"`
	Details          CartDetails      `gorm:"column:details;type:jsonb;serializer:json"`
	SubtotalCents    int64            `gorm:"column:subtotal_cents;not null"`
	DiscountCents    int64            `gorm:"column:discount_cents;not null"`
	TaxCents         int64            `gorm:"column:tax_cents;not null"`
	ShippingCents    int64            `gorm:"column:shipping_cents;not null"`
	TotalCents       int64            `gorm:"column:total_cents;not null"`
	MergedIntoID     *uuid.UUID       `gorm:"column:merged_into_id;type:uuid"`
	ConvertedOrderID *string          `gorm:"column:converted_order_id"`
	Items            []CartItem       `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE"`
	CreatedAt        time.Time        `gorm:"column:created_at;not null"`
	LastMutatedAt    time.Time        `gorm:"column:last_mutated_at;not null"`
	ExpiresAt        time.Time        `gorm:"column:expires_at;not null"`
}

func (CartRecord) TableName() string { return "carts" }

// CartCoupon is the applied coupon snapshot stored with the cart. The rule
// parameters are copied so repricing does not need the coupon store.
type CartCoupon struct {
	Code               string             `json:"code"`
	DiscountType       enums.DiscountType `json:"discountType"`
	Value              string             `json:"value"`
	Scope              enums.CouponScope  `json:"scope"`
	MinimumSpendCents  int64              `json:"minimumSpendCents"`
	EligibleProductIDs []string           `json:"eligibleProductIds,omitempty"`
	DiscountCents      int64              `json:"discountCents"`
	WaivesShipping     bool               `json:"waivesShipping"`
}

// CartDetails holds the free-form cart attributes.
type CartDetails struct {
	Email          string `json:"email,omitempty"`
	ShippingMethod string `json:"shippingMethod,omitempty"`
	Notes          string `json:"notes,omitempty"`
}
