package cart

import (
	"fmt"

	"github.com/angelmondragon/cartcore-backend/internal/pricing"
	"github.com/angelmondragon/cartcore-backend/pkg/db/models"
)

func toRecord(c *Cart) *models.CartRecord {
	rec := &models.CartRecord{
		ID:            c.ID,
		OwnerKind:     c.Owner.Kind(),
		OwnerValue:    c.Owner.Value(),
		Currency:      c.Currency,
		Status:        c.Status,
		Version:       c.Version,
		Details:       models.CartDetails(c.Details),
		SubtotalCents: c.Totals.SubtotalCents,
		DiscountCents: c.Totals.DiscountCents,
		TaxCents:      c.Totals.TaxCents,
		ShippingCents: c.Totals.ShippingCents,
		TotalCents:    c.Totals.TotalCents,
		MergedIntoID:  c.MergedIntoID,
		CreatedAt:     c.CreatedAt,
		LastMutatedAt: c.LastMutatedAt,
		ExpiresAt:     c.ExpiresAt,
	}
	if c.ConvertedOrderID != "" {
		orderID := c.ConvertedOrderID
		rec.ConvertedOrderID = &orderID
	}
	if c.Coupon != nil {
		rec.Coupon = &models.CartCoupon{
			Code:               c.Coupon.Code,
			DiscountType:       c.Coupon.Type,
			Value:              c.Coupon.Value,
			Scope:              c.Coupon.Scope,
			MinimumSpendCents:  c.Coupon.MinimumSpendCents,
			EligibleProductIDs: c.Coupon.EligibleProductIDs,
			DiscountCents:      c.Coupon.DiscountCents,
			WaivesShipping:     c.Coupon.WaivesShipping,
		}
	}
	rec.Items = make([]models.CartItem, len(c.Items))
	for i, item := range c.Items {
		rec.Items[i] = models.CartItem{
			ID:                 item.ID,
			CartID:             c.ID,
			Position:           i,
			ProductID:          item.ProductID,
			VariantID:          item.VariantID,
			AttributesHash:     item.AttributesHash,
			Attributes:         item.Attributes,
			Title:              item.Title,
			Quantity:           item.Quantity,
			UnitPriceCents:     item.UnitPriceCents,
			OriginalPriceCents: item.OriginalPriceCents,
			DiscountCents:      item.DiscountCents,
			RequiresShipping:   item.RequiresShipping,
			IsGiftCard:         item.IsGiftCard,
			AddedAt:            item.AddedAt,
		}
	}
	return rec
}

func fromRecord(rec *models.CartRecord) (*Cart, error) {
	if !rec.Status.IsValid() {
		return nil, fmt.Errorf("cart %s has unknown status %q", rec.ID, rec.Status)
	}
	owner, err := ownerFrom(rec.OwnerKind, rec.OwnerValue)
	if err != nil {
		return nil, err
	}
	c := &Cart{
		ID:            rec.ID,
		Owner:         owner,
		Currency:      rec.Currency,
		Status:        rec.Status,
		Version:       rec.Version,
		Details:       Details(rec.Details),
		MergedIntoID:  rec.MergedIntoID,
		CreatedAt:     rec.CreatedAt.UTC(),
		LastMutatedAt: rec.LastMutatedAt.UTC(),
		ExpiresAt:     rec.ExpiresAt.UTC(),
		Totals: pricing.Totals{
			SubtotalCents: rec.SubtotalCents,
			DiscountCents: rec.DiscountCents,
			TaxCents:      rec.TaxCents,
			ShippingCents: rec.ShippingCents,
			TotalCents:    rec.TotalCents,
		},
	}
	if rec.ConvertedOrderID != nil {
		c.ConvertedOrderID = *rec.ConvertedOrderID
	}
	if rec.Coupon != nil {
		c.Coupon = &AppliedCoupon{
			Code:               rec.Coupon.Code,
			Type:               rec.Coupon.DiscountType,
			Value:              rec.Coupon.Value,
			Scope:              rec.Coupon.Scope,
			MinimumSpendCents:  rec.Coupon.MinimumSpendCents,
			EligibleProductIDs: rec.Coupon.EligibleProductIDs,
			DiscountCents:      rec.Coupon.DiscountCents,
			WaivesShipping:     rec.Coupon.WaivesShipping,
		}
	}
	if len(rec.Items) > 0 {
		c.Items = make([]Item, len(rec.Items))
	}
	for i, row := range rec.Items {
		c.Items[i] = Item{
			ID:                 row.ID,
			ProductID:          row.ProductID,
			VariantID:          row.VariantID,
			AttributesHash:     row.AttributesHash,
			Attributes:         row.Attributes,
			Title:              row.Title,
			Quantity:           row.Quantity,
			UnitPriceCents:     row.UnitPriceCents,
			OriginalPriceCents: row.OriginalPriceCents,
			DiscountCents:      row.DiscountCents,
			RequiresShipping:   row.RequiresShipping,
			IsGiftCard:         row.IsGiftCard,
			AddedAt:            row.AddedAt.UTC(),
		}
	}
	return c, nil
}
