// Package pricing derives cart totals from line items. Every function is pure;
// amounts are integer minor units of the cart currency.
package pricing

import (
	"sort"

	"github.com/angelmondragon/cartcore-backend/pkg/enums"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Line is the pricing view of one cart item.
type Line struct {
	Quantity       int
	UnitPriceCents int64
	DiscountCents  int64
}

// Input carries everything Calculate needs.
type Input struct {
	Lines         []Line
	TaxCents      int64
	ShippingCents int64
}

type Totals struct {
	SubtotalCents int64 `json:"subtotal"`
	DiscountCents int64 `json:"discountTotal"`
	TaxCents      int64 `json:"taxTotal"`
	ShippingCents int64 `json:"shippingTotal"`
	TotalCents    int64 `json:"total"`
}

// Calculate sums the lines and folds in tax and shipping. The total never
// goes below zero.
func Calculate(in Input) Totals {
	var out Totals
	for _, line := range in.Lines {
		out.SubtotalCents += LineSubtotal(line)
		out.DiscountCents += line.DiscountCents
	}
	out.TaxCents = in.TaxCents
	out.ShippingCents = in.ShippingCents
	out.TotalCents = out.SubtotalCents - out.DiscountCents + out.TaxCents + out.ShippingCents
	if out.TotalCents < 0 {
		out.TotalCents = 0
	}
	return out
}

// LineSubtotal is quantity times the unit price snapshot.
func LineSubtotal(line Line) int64 {
	return int64(line.Quantity) * line.UnitPriceCents
}

// PercentOf returns percent% of amount rounded half-to-even to a whole minor unit.
func PercentOf(amount int64, percent decimal.Decimal) int64 {
	if amount <= 0 || !percent.IsPositive() {
		return 0
	}
	if percent.GreaterThan(hundred) {
		percent = hundred
	}
	return decimal.NewFromInt(amount).Mul(percent).Div(hundred).RoundBank(0).IntPart()
}

// BasisPoints applies a rate expressed in 1/100 of a percent.
func BasisPoints(amount, bps int64) int64 {
	return PercentOf(amount, decimal.New(bps, -2))
}

// Allocate splits total across weights proportionally using the largest
// remainder method. The result always sums to total when any weight is
// positive; ties go to the earliest index.
func Allocate(total int64, weights []int64) []int64 {
	out := make([]int64, len(weights))
	if total <= 0 || len(weights) == 0 {
		return out
	}
	var sum int64
	for _, w := range weights {
		if w > 0 {
			sum += w
		}
	}
	if sum == 0 {
		return out
	}

	type remainder struct {
		index int
		rem   decimal.Decimal
	}
	totalDec := decimal.NewFromInt(total)
	sumDec := decimal.NewFromInt(sum)
	rems := make([]remainder, 0, len(weights))
	var assigned int64
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		share := totalDec.Mul(decimal.NewFromInt(w)).Div(sumDec)
		floor := share.Floor()
		out[i] = floor.IntPart()
		assigned += out[i]
		rems = append(rems, remainder{index: i, rem: share.Sub(floor)})
	}

	sort.SliceStable(rems, func(a, b int) bool {
		return rems[a].rem.GreaterThan(rems[b].rem)
	})
	for i := 0; assigned < total; i++ {
		out[rems[i%len(rems)].index]++
		assigned++
	}
	return out
}

// Format renders minor units as a decimal string in the currency's precision.
func Format(amount int64, currency enums.Currency) string {
	exp := currency.Exponent()
	return decimal.New(amount, -exp).StringFixed(exp)
}
