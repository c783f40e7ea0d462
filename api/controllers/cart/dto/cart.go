package cartdto

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/cartcore-backend/pkg/enums"
)

// Money pairs an amount in minor units with its display form.
type Money struct {
	Amount    int64  `json:"amount"`
	Formatted string `json:"formatted"`
}

// Cart is the cart snapshot exposed through the API.
type Cart struct {
	ID               uuid.UUID        `json:"id"`
	Status           enums.CartStatus `json:"status"`
	OwnerKind        enums.OwnerKind  `json:"owner_kind"`
	CustomerID       string           `json:"customer_id,omitempty"`
	Currency         enums.Currency   `json:"currency"`
	Version          int64            `json:"version"`
	ItemCount        int              `json:"item_count"`
	Items            []CartItem       `json:"items"`
	Coupon           *Coupon          `json:"coupon,omitempty"`
	Details          Details          `json:"details"`
	Totals           Totals           `json:"totals"`
	MergedIntoID     *uuid.UUID       `json:"merged_into_id,omitempty"`
	ConvertedOrderID string           `json:"converted_order_id,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
	ExpiresAt        time.Time        `json:"expires_at"`
}

type CartItem struct {
	ID               uuid.UUID         `json:"id"`
	ProductID        string            `json:"product_id"`
	VariantID        string            `json:"variant_id,omitempty"`
	Title            string            `json:"title"`
	Quantity         int               `json:"quantity"`
	CustomAttributes map[string]string `json:"custom_attributes,omitempty"`
	UnitPrice        Money             `json:"unit_price"`
	OriginalPrice    Money             `json:"original_price"`
	Subtotal         Money             `json:"subtotal"`
	Discount         Money             `json:"discount"`
	RequiresShipping bool              `json:"requires_shipping"`
	IsGiftCard       bool              `json:"is_gift_card"`
	AddedAt          time.Time         `json:"added_at"`
}

type Coupon struct {
	Code           string             `json:"code"`
	Type           enums.DiscountType `json:"type"`
	Value          string             `json:"value"`
	Scope          enums.CouponScope  `json:"scope"`
	MinimumSpend   *Money             `json:"minimum_spend,omitempty"`
	Discount       Money              `json:"discount"`
	WaivesShipping bool               `json:"waives_shipping"`
}

type Details struct {
	Email          string `json:"email,omitempty"`
	ShippingMethod string `json:"shipping_method,omitempty"`
	Notes          string `json:"notes,omitempty"`
}

type Totals struct {
	Subtotal Money `json:"subtotal"`
	Discount Money `json:"discount"`
	Tax      Money `json:"tax"`
	Shipping Money `json:"shipping"`
	Total    Money `json:"total"`
}

// MergeResult is returned by the merge endpoint.
type MergeResult struct {
	Cart         Cart          `json:"cart"`
	SourceCartID *uuid.UUID    `json:"source_cart_id,omitempty"`
	Notices      []MergeNotice `json:"notices"`
}

type MergeNotice struct {
	Code      string    `json:"code"`
	ItemID    uuid.UUID `json:"item_id"`
	ProductID string    `json:"product_id"`
	VariantID string    `json:"variant_id,omitempty"`
	Requested int       `json:"requested"`
	Applied   int       `json:"applied"`
}
