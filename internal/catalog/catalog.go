// Package catalog answers availability and price questions for the cart.
package catalog

import (
	"context"
	"errors"

	"github.com/angelmondragon/cartcore-backend/pkg/enums"
)

// ErrNotFound is returned when the product/variant pair does not exist.
var ErrNotFound = errors.New("catalog entry not found")

// Variant is a point-in-time view of a sellable variant.
type Variant struct {
	ProductID          string
	VariantID          string
	Title              string
	UnitPriceCents     int64
	OriginalPriceCents int64
	Currency           enums.Currency
	Active             bool
	StockQuantity      *int
	RequiresShipping   bool
	IsGiftCard         bool
}

// Available reports whether qty units can be sold in currency.
func (v *Variant) Available(qty int, currency enums.Currency) bool {
	if v == nil || !v.Active || v.Currency != currency {
		return false
	}
	if v.StockQuantity != nil && *v.StockQuantity < qty {
		return false
	}
	return true
}

// Lookup is the catalog surface the cart depends on.
type Lookup interface {
	Variant(ctx context.Context, productID, variantID string) (*Variant, error)
}
