package payloads

import (
	"github.com/google/uuid"
)

// CartEvent is the data section of every cart notification. Fields that do
// not apply to a given event type are omitted.
type CartEvent struct {
	CartID     uuid.UUID `json:"cartId"`
	Version    int64     `json:"version"`
	Status     string    `json:"status"`
	Currency   string    `json:"currency"`
	TotalCents int64     `json:"total"`
	ItemCount  int       `json:"itemCount"`

	ItemID       *uuid.UUID `json:"itemId,omitempty"`
	ProductID    string     `json:"productId,omitempty"`
	VariantID    string     `json:"variantId,omitempty"`
	Quantity     *int       `json:"quantity,omitempty"`
	CouponCode   string     `json:"couponCode,omitempty"`
	SourceCartID *uuid.UUID `json:"sourceCartId,omitempty"`
	TargetCartID *uuid.UUID `json:"targetCartId,omitempty"`
	OrderID      string     `json:"orderId,omitempty"`
}
