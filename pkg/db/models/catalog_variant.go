package models

import (
	"time"

	"github.com/angelmondragon/cartcore-backend/pkg/enums"
)

// CatalogVariant is the sellable unit the cart snapshots prices from.
// StockQuantity is nil for untracked inventory.
type CatalogVariant struct {
	ProductID           string         `gorm:"column:product_id;primaryKey"`
	VariantID           string         `gorm:"column:variant_id;primaryKey"`
	SKU                 string         `gorm:"column:sku;not null"`
	Title               string         `gorm:"column:title;not null"`
	PriceCents          int64          `gorm:"column:price_cents;not null"`
	CompareAtPriceCents *int64         `gorm:"column:compare_at_price_cents"`
	Currency            enums.Currency `gorm:"column:currency;not null"`
	IsActive            bool           `gorm:"column:is_active;not null"`
	StockQuantity       *int           `gorm:"column:stock_quantity"`
	RequiresShipping    bool           `gorm:"column:requires_shipping;not null"`
	IsGiftCard          bool           `gorm:"column:is_gift_card;not null"`
	CreatedAt           time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

func (CatalogVariant) TableName() string { return "catalog_variants" }
