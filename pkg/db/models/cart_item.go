package models

import (
	"time"

	"github.com/google/uuid"
)

// CartItem is one line of a CartRecord. Position preserves insertion order.
type CartItem struct {
	ID                 uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	CartID             uuid.UUID         `gorm:"column:cart_id;type:uuid;not null"`
	Position           int               `gorm:"column:position;not null"`
	ProductID          string            `gorm:"column:product_id;not null"`
	VariantID          string            `gorm:"column:variant_id;not null"`
	AttributesHash     string            `gorm:"column:attributes_hash;not null"`
	Attributes         map[string]string `gorm:"column:attributes;type:jsonb;serializer:json"`
	Title              string            `gorm:"column:title;not null"`
	Quantity           int               `gorm:"column:quantity;not null"`
	UnitPriceCents     int64             `gorm:"column:unit_price_cents;not null"`
	OriginalPriceCents int64             `gorm:"column:original_price_cents;not null"`
	DiscountCents      int64             `gorm:"column:discount_cents;not null"`
	RequiresShipping   bool              `gorm:"column:requires_shipping;not null"`
	IsGiftCard         bool              `gorm:"column:is_gift_card;not null"`
	AddedAt            time.Time         `gorm:"column:added_at;not null"`
}

func (CartItem) TableName() string { return "cart_items" }
