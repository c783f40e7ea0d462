package coupons

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/cartcore-backend/internal/pricing"
	"github.com/angelmondragon/cartcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/cartcore-backend/pkg/errors"
)

// ErrNotFound is returned by providers for unknown codes.
var ErrNotFound = errors.New("coupon not found")

// Line is the engine's view of a cart item.
type Line struct {
	ProductID     string
	SubtotalCents int64
}

// Snapshot is the cart state a coupon is evaluated against.
type Snapshot struct {
	Lines []Line
}

func (s Snapshot) subtotal() int64 {
	var total int64
	for _, line := range s.Lines {
		total += line.SubtotalCents
	}
	return total
}

// Result is the discount a rule yields for a snapshot. ItemDiscounts is
// index-aligned with Snapshot.Lines and sums to DiscountCents.
type Result struct {
	ItemDiscounts []int64
	DiscountCents int64
	WaiveShipping bool
}

type Engine struct {
	rules RuleProvider
	now   func() time.Time
}

func NewEngine(rules RuleProvider, now func() time.Time) (*Engine, error) {
	if rules == nil {
		return nil, errors.New("coupon rule provider required")
	}
	if now == nil {
		now = time.Now
	}
	return &Engine{rules: rules, now: now}, nil
}

// Validate resolves code and checks it against the snapshot in a fixed
// order: existence and validity window, usage limit, minimum spend, then
// exclusivity: any attached coupon, the same code included, is a conflict.
func (e *Engine) Validate(ctx context.Context, code string, snap Snapshot, attachedCode string) (*Rule, error) {
	code = NormalizeCode(code)
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupon code is required")
	}

	rule, err := e.rules.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeCouponInvalid, "coupon code not recognized")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup coupon")
	}
	if !rule.liveAt(e.now().UTC()) {
		return nil, pkgerrors.New(pkgerrors.CodeCouponInvalid, "coupon is expired or inactive")
	}
	if rule.usageExhausted() {
		return nil, pkgerrors.New(pkgerrors.CodeCouponUsageLimit, "coupon usage limit reached")
	}
	if subtotal := snap.subtotal(); subtotal < rule.MinimumSpendCents {
		return nil, pkgerrors.New(pkgerrors.CodeCouponMinimumNotMet, "cart subtotal below coupon minimum").
			WithDetails(map[string]any{
				"minimumSpend": rule.MinimumSpendCents,
				"subtotal":     subtotal,
			})
	}
	if attachedCode != "" {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "a coupon is already applied to this cart").
			WithDetails(map[string]any{"applied": NormalizeCode(attachedCode)})
	}
	return rule, nil
}

// Revalidate reports whether an attached rule still qualifies against snap,
// ignoring exclusivity. Used when carrying a coupon across a merge.
func (e *Engine) Revalidate(ctx context.Context, code string, snap Snapshot) (*Rule, bool, error) {
	rule, err := e.Validate(ctx, code, snap, "")
	if err == nil {
		return rule, true, nil
	}
	switch pkgerrors.CodeOf(err) {
	case pkgerrors.CodeCouponInvalid, pkgerrors.CodeCouponUsageLimit, pkgerrors.CodeCouponMinimumNotMet:
		return nil, false, nil
	}
	return nil, false, err
}

// RecordRedemption counts one use of code.
func (e *Engine) RecordRedemption(ctx context.Context, code string) error {
	return e.rules.RecordRedemption(ctx, NormalizeCode(code))
}

// Price computes the discount rule yields against snap. Below the minimum
// spend a rule yields nothing.
func Price(rule *Rule, snap Snapshot) Result {
	res := Result{ItemDiscounts: make([]int64, len(snap.Lines))}
	if rule == nil || len(snap.Lines) == 0 {
		return res
	}
	if snap.subtotal() < rule.MinimumSpendCents {
		return res
	}

	weights := make([]int64, len(snap.Lines))
	var eligible int64
	for i, line := range snap.Lines {
		if rule.appliesTo(line.ProductID) {
			weights[i] = line.SubtotalCents
			eligible += line.SubtotalCents
		}
	}

	var discount int64
	switch rule.Type {
	case enums.DiscountTypePercentage:
		discount = pricing.PercentOf(eligible, rule.Value)
	case enums.DiscountTypeFixedAmount:
		discount = rule.Value.IntPart()
		if discount > eligible {
			discount = eligible
		}
		if discount < 0 {
			discount = 0
		}
	case enums.DiscountTypeFreeShipping:
		res.WaiveShipping = eligible > 0 || rule.Scope == enums.CouponScopeCart
		return res
	}

	res.ItemDiscounts = pricing.Allocate(discount, weights)
	res.DiscountCents = discount
	return res
}
