package enums

import "fmt"

// DiscountType enumerates how a coupon reduces the cart.
type DiscountType string

const (
	DiscountTypePercentage   DiscountType = "percentage"
	DiscountTypeFixedAmount  DiscountType = "fixed_amount"
	DiscountTypeFreeShipping DiscountType = "free_shipping"
)

var validDiscountTypes = []DiscountType{
	DiscountTypePercentage,
	DiscountTypeFixedAmount,
	DiscountTypeFreeShipping,
}

func (d DiscountType) String() string {
	return string(d)
}

func (d DiscountType) IsValid() bool {
	for _, candidate := range validDiscountTypes {
		if candidate == d {
			return true
		}
	}
	return false
}

// ParseDiscountType converts raw input into a DiscountType.
func ParseDiscountType(value string) (DiscountType, error) {
	for _, candidate := range validDiscountTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid discount type %q", value)
}

// CouponScope selects which items a coupon applies to.
type CouponScope string

const (
	CouponScopeCart          CouponScope = "cart"
	CouponScopeEligibleItems CouponScope = "eligible_items"
)

func (s CouponScope) String() string {
	return string(s)
}

func (s CouponScope) IsValid() bool {
	return s == CouponScopeCart || s == CouponScopeEligibleItems
}

// ParseCouponScope converts raw input into a CouponScope.
func ParseCouponScope(value string) (CouponScope, error) {
	scope := CouponScope(value)
	if !scope.IsValid() {
		return "", fmt.Errorf("invalid coupon scope %q", value)
	}
	return scope, nil
}
