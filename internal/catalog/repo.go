package catalog

import (
	"context"
	"errors"

	"github.com/angelmondragon/cartcore-backend/pkg/db/models"
	"gorm.io/gorm"
)

// Repository reads variants from the catalog_variants table.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Variant loads one product/variant pair. An empty variantID matches the
// product's default variant row (empty variant_id).
func (r *Repository) Variant(ctx context.Context, productID, variantID string) (*Variant, error) {
	var row models.CatalogVariant
	err := r.db.WithContext(ctx).
		Where("product_id = ? AND variant_id = ?", productID, variantID).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return fromModel(row), nil
}

// Upsert writes a variant row; used by catalog sync and seeding.
func (r *Repository) Upsert(ctx context.Context, row *models.CatalogVariant) error {
	return r.db.WithContext(ctx).Save(row).Error
}

func fromModel(row models.CatalogVariant) *Variant {
	original := row.PriceCents
	if row.CompareAtPriceCents != nil {
		original = *row.CompareAtPriceCents
	}
	return &Variant{
		ProductID:          row.ProductID,
		VariantID:          row.VariantID,
		Title:              row.Title,
		UnitPriceCents:     row.PriceCents,
		OriginalPriceCents: original,
		Currency:           row.Currency,
		Active:             row.IsActive,
		StockQuantity:      row.StockQuantity,
		RequiresShipping:   row.RequiresShipping,
		IsGiftCard:         row.IsGiftCard,
	}
}
