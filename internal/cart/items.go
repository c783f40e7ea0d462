package cart

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/cartcore-backend/internal/catalog"
	pkgerrors "github.com/angelmondragon/cartcore-backend/pkg/errors"
)

// AddItem adds quantity units of a variant to c. An existing line with the
// same identity is incremented and keeps its original price snapshot.
func AddItem(ctx context.Context, lookup catalog.Lookup, c *Cart, in AddItemInput, now time.Time) (*Item, error) {
	productID := strings.TrimSpace(in.ProductID)
	variantID := strings.TrimSpace(in.VariantID)
	if productID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "productId is required")
	}
	if err := validateQuantity(in.Quantity); err != nil {
		return nil, err
	}
	attrs, err := normalizeAttributes(in.Attributes)
	if err != nil {
		return nil, err
	}
	hash := AttributesHash(attrs)

	quantity := in.Quantity
	idx := c.findIdentity(productID, variantID, hash)
	if idx >= 0 {
		quantity += c.Items[idx].Quantity
		if err := validateQuantity(quantity); err != nil {
			return nil, err
		}
	}

	variant, err := checkAvailability(ctx, lookup, c, productID, variantID, quantity)
	if err != nil {
		return nil, err
	}

	if idx >= 0 {
		c.Items[idx].Quantity = quantity
		item := c.Items[idx]
		return &item, nil
	}

	item := Item{
		ID:                 uuid.New(),
		ProductID:          productID,
		VariantID:          variantID,
		AttributesHash:     hash,
		Attributes:         attrs,
		Title:              variant.Title,
		Quantity:           quantity,
		UnitPriceCents:     variant.UnitPriceCents,
		OriginalPriceCents: variant.OriginalPriceCents,
		RequiresShipping:   variant.RequiresShipping,
		IsGiftCard:         variant.IsGiftCard,
		AddedAt:            now,
	}
	if item.OriginalPriceCents < item.UnitPriceCents {
		item.OriginalPriceCents = item.UnitPriceCents
	}
	c.Items = append(c.Items, item)
	return &item, nil
}

// UpdateItem replaces the quantity and/or attributes of one line. A new
// attribute set changes the identity without folding into another line.
func UpdateItem(c *Cart, in UpdateItemInput) (*Item, error) {
	idx := c.findItem(in.ItemID)
	if idx < 0 {
		return nil, itemNotFound(in.ItemID)
	}
	if in.Quantity == nil && in.Attributes == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "nothing to update")
	}
	if in.Quantity != nil {
		if err := validateQuantity(*in.Quantity); err != nil {
			return nil, err
		}
	}
	var attrs map[string]string
	if in.Attributes != nil {
		normalized, err := normalizeAttributes(*in.Attributes)
		if err != nil {
			return nil, err
		}
		attrs = normalized
	}

	item := &c.Items[idx]
	if in.Quantity != nil {
		item.Quantity = *in.Quantity
	}
	if in.Attributes != nil {
		item.Attributes = attrs
		item.AttributesHash = AttributesHash(attrs)
	}
	out := *item
	return &out, nil
}

// RemoveItem drops one line and returns it.
func RemoveItem(c *Cart, itemID uuid.UUID) (*Item, error) {
	idx := c.findItem(itemID)
	if idx < 0 {
		return nil, itemNotFound(itemID)
	}
	removed := c.Items[idx]
	c.Items = append(c.Items[:idx:idx], c.Items[idx+1:]...)
	return &removed, nil
}

// ClearItems empties c and returns how many lines were dropped.
func ClearItems(c *Cart) int {
	n := len(c.Items)
	c.Items = nil
	return n
}

func validateQuantity(qty int) error {
	if qty < MinQuantity || qty > MaxQuantity {
		return pkgerrors.New(pkgerrors.CodeInvalidQuantity, "quantity must be between 1 and 9999").
			WithDetails(map[string]any{"quantity": qty, "min": MinQuantity, "max": MaxQuantity})
	}
	return nil
}

func itemNotFound(id uuid.UUID) error {
	return pkgerrors.New(pkgerrors.CodeItemNotFound, "cart item not found").
		WithDetails(map[string]any{"itemId": id.String()})
}

func checkAvailability(ctx context.Context, lookup catalog.Lookup, c *Cart, productID, variantID string, qty int) (*catalog.Variant, error) {
	variant, err := lookup.Variant(ctx, productID, variantID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return nil, unavailable(productID, variantID, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "catalog lookup failed")
	}
	if !variant.Available(qty, c.Currency) {
		return nil, unavailable(productID, variantID, "product cannot be sold in the requested quantity")
	}
	return variant, nil
}

func unavailable(productID, variantID, message string) error {
	return pkgerrors.New(pkgerrors.CodeProductNotAvailable, message).
		WithDetails(map[string]any{"productId": productID, "variantId": variantID})
}
