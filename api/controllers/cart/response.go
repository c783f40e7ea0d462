package cart

import (
	"github.com/google/uuid"

	cartdto "github.com/angelmondragon/cartcore-backend/api/controllers/cart/dto"
	cartsvc "github.com/angelmondragon/cartcore-backend/internal/cart"
	"github.com/angelmondragon/cartcore-backend/internal/pricing"
	"github.com/angelmondragon/cartcore-backend/pkg/enums"
)

func money(amount int64, currency enums.Currency) cartdto.Money {
	return cartdto.Money{Amount: amount, Formatted: pricing.Format(amount, currency)}
}

func newCart(c *cartsvc.Cart) cartdto.Cart {
	cur := c.Currency
	out := cartdto.Cart{
		ID:               c.ID,
		Status:           c.Status,
		CustomerID:       c.CustomerID(),
		Currency:         cur,
		Version:          c.Version,
		Items:            make([]cartdto.CartItem, 0, len(c.Items)),
		MergedIntoID:     c.MergedIntoID,
		ConvertedOrderID: c.ConvertedOrderID,
		CreatedAt:        c.CreatedAt,
		UpdatedAt:        c.LastMutatedAt,
		ExpiresAt:        c.ExpiresAt,
		Details: cartdto.Details{
			Email:          c.Details.Email,
			ShippingMethod: c.Details.ShippingMethod,
			Notes:          c.Details.Notes,
		},
		Totals: cartdto.Totals{
			Subtotal: money(c.Totals.SubtotalCents, cur),
			Discount: money(c.Totals.DiscountCents, cur),
			Tax:      money(c.Totals.TaxCents, cur),
			Shipping: money(c.Totals.ShippingCents, cur),
			Total:    money(c.Totals.TotalCents, cur),
		},
	}
	if c.Owner != nil {
		out.OwnerKind = c.Owner.Kind()
	}

	for _, item := range c.Items {
		out.ItemCount += item.Quantity
		out.Items = append(out.Items, cartdto.CartItem{
			ID:               item.ID,
			ProductID:        item.ProductID,
			VariantID:        item.VariantID,
			Title:            item.Title,
			Quantity:         item.Quantity,
			CustomAttributes: item.Attributes,
			UnitPrice:        money(item.UnitPriceCents, cur),
			OriginalPrice:    money(item.OriginalPriceCents, cur),
			Subtotal:         money(item.SubtotalCents(), cur),
			Discount:         money(item.DiscountCents, cur),
			RequiresShipping: item.RequiresShipping,
			IsGiftCard:       item.IsGiftCard,
			AddedAt:          item.AddedAt,
		})
	}

	if cp := c.Coupon; cp != nil {
		coupon := &cartdto.Coupon{
			Code:           cp.Code,
			Type:           cp.Type,
			Value:          cp.Value,
			Scope:          cp.Scope,
			Discount:       money(cp.DiscountCents, cur),
			WaivesShipping: cp.WaivesShipping,
		}
		if cp.MinimumSpendCents > 0 {
			minimum := money(cp.MinimumSpendCents, cur)
			coupon.MinimumSpend = &minimum
		}
		out.Coupon = coupon
	}
	return out
}

func newMergeResult(res *cartsvc.MergeResult) cartdto.MergeResult {
	out := cartdto.MergeResult{
		Cart:    newCart(res.Cart),
		Notices: make([]cartdto.MergeNotice, 0, len(res.Notices)),
	}
	if res.SourceCartID != uuid.Nil {
		id := res.SourceCartID
		out.SourceCartID = &id
	}
	for _, n := range res.Notices {
		out.Notices = append(out.Notices, cartdto.MergeNotice{
			Code:      n.Code,
			ItemID:    n.ItemID,
			ProductID: n.ProductID,
			VariantID: n.VariantID,
			Requested: n.Requested,
			Applied:   n.Applied,
		})
	}
	return out
}
