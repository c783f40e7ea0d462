package coupons

import (
	"context"
	"strings"
	"time"

	"github.com/angelmondragon/cartcore-backend/pkg/enums"
	"github.com/shopspring/decimal"
)

// Rule is the discount definition behind a coupon code. Value is a percent
// for percentage coupons and minor units for fixed-amount coupons.
type Rule struct {
	Code               string
	Type               enums.DiscountType
	Value              decimal.Decimal
	Scope              enums.CouponScope
	MinimumSpendCents  int64
	UsageLimit         int
	UsageCount         int
	EligibleProductIDs []string
	StartsAt           *time.Time
	ExpiresAt          *time.Time
	Active             bool
}

// RuleProvider resolves coupon codes and tracks redemptions.
type RuleProvider interface {
	FindByCode(ctx context.Context, code string) (*Rule, error)
	RecordRedemption(ctx context.Context, code string) error
}

// NormalizeCode trims and upper-cases a user supplied code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (r *Rule) liveAt(now time.Time) bool {
	if r == nil || !r.Active {
		return false
	}
	if r.StartsAt != nil && now.Before(*r.StartsAt) {
		return false
	}
	if r.ExpiresAt != nil && !now.Before(*r.ExpiresAt) {
		return false
	}
	return true
}

func (r *Rule) usageExhausted() bool {
	return r.UsageLimit > 0 && r.UsageCount >= r.UsageLimit
}

func (r *Rule) appliesTo(productID string) bool {
	if r.Scope != enums.CouponScopeEligibleItems {
		return true
	}
	for _, id := range r.EligibleProductIDs {
		if id == productID {
			return true
		}
	}
	return false
}
