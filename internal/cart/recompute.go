package cart

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/cartcore-backend/internal/coupons"
	"github.com/angelmondragon/cartcore-backend/internal/pricing"
	"github.com/angelmondragon/cartcore-backend/internal/rates"
	pkgerrors "github.com/angelmondragon/cartcore-backend/pkg/errors"
)

// recompute rebuilds every derived amount on c from its lines, coupon and
// details. Nothing derived survives from the previous state.
func recompute(ctx context.Context, provider rates.Provider, c *Cart) error {
	snap := couponSnapshot(c)
	result := coupons.Price(c.Coupon.rule(), snap)

	lines := make([]pricing.Line, len(c.Items))
	var taxable int64
	for i := range c.Items {
		c.Items[i].DiscountCents = result.ItemDiscounts[i]
		item := c.Items[i]
		lines[i] = pricing.Line{
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
			DiscountCents:  item.DiscountCents,
		}
		if !item.IsGiftCard {
			taxable += item.SubtotalCents() - item.DiscountCents
		}
	}
	if c.Coupon != nil {
		c.Coupon.DiscountCents = result.DiscountCents
		c.Coupon.WaivesShipping = result.WaiveShipping
	}

	var quote rates.Quote
	if len(c.Items) > 0 {
		q, err := provider.Quote(ctx, rates.Request{
			Currency:         c.Currency,
			TaxableCents:     taxable,
			ShippingMethod:   c.Details.ShippingMethod,
			RequiresShipping: c.requiresShipping(),
		})
		if err != nil {
			if pkgerrors.As(err) != nil {
				return err
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate lookup failed")
		}
		quote = q
	}
	if result.WaiveShipping {
		quote.ShippingCents = 0
	}

	c.Totals = pricing.Calculate(pricing.Input{
		Lines:         lines,
		TaxCents:      quote.TaxCents,
		ShippingCents: quote.ShippingCents,
	})
	return nil
}

func couponSnapshot(c *Cart) coupons.Snapshot {
	snap := coupons.Snapshot{Lines: make([]coupons.Line, len(c.Items))}
	for i, item := range c.Items {
		snap.Lines[i] = coupons.Line{ProductID: item.ProductID, SubtotalCents: item.SubtotalCents()}
	}
	return snap
}

// rule rebuilds the pricing rule from the stored snapshot. Validity window
// and usage were checked when the coupon was applied.
func (a *AppliedCoupon) rule() *coupons.Rule {
	if a == nil {
		return nil
	}
	value, err := decimal.NewFromString(a.Value)
	if err != nil {
		value = decimal.Zero
	}
	return &coupons.Rule{
		Code:               a.Code,
		Type:               a.Type,
		Value:              value,
		Scope:              a.Scope,
		MinimumSpendCents:  a.MinimumSpendCents,
		EligibleProductIDs: a.EligibleProductIDs,
		Active:             true,
	}
}

func appliedFromRule(rule *coupons.Rule) *AppliedCoupon {
	if rule == nil {
		return nil
	}
	return &AppliedCoupon{
		Code:               rule.Code,
		Type:               rule.Type,
		Value:              rule.Value.String(),
		Scope:              rule.Scope,
		MinimumSpendCents:  rule.MinimumSpendCents,
		EligibleProductIDs: append([]string(nil), rule.EligibleProductIDs...),
	}
}
