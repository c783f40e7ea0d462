package cartdto

// CreateCartRequest may be sent without a body; the configured default
// currency applies then.
type CreateCartRequest struct {
	Currency string `json:"currency" validate:"omitempty,currency"`
}

type AddItemRequest struct {
	ProductID        string            `json:"product_id" validate:"required,max=128"`
	VariantID        string            `json:"variant_id" validate:"omitempty,max=128"`
	Quantity         int               `json:"quantity"`
	CustomAttributes map[string]string `json:"custom_attributes" validate:"omitempty,max=32"`
}

// UpdateItemRequest changes the fields that are present. An empty
// custom_attributes object clears the attributes.
type UpdateItemRequest struct {
	Quantity         *int               `json:"quantity"`
	CustomAttributes *map[string]string `json:"custom_attributes"`
}

type UpdateDetailsRequest struct {
	Email          *string `json:"email" validate:"omitempty,max=320"`
	ShippingMethod *string `json:"shipping_method" validate:"omitempty,max=64"`
	Notes          *string `json:"notes"`
}

type ApplyCouponRequest struct {
	Code string `json:"code" validate:"required,max=64"`
}

// MergeRequest names the guest cart to fold in. The X-Cart-Session header is
// used when the body omits it.
type MergeRequest struct {
	SessionToken string `json:"session_token" validate:"omitempty,max=256"`
}

type ConvertRequest struct {
	OrderID string `json:"order_id" validate:"required,max=128"`
}
