// Package cart owns the cart aggregate: line items, owner rules, lifecycle,
// optimistic concurrency and guest-to-customer merge.
package cart

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/cartcore-backend/internal/pricing"
	"github.com/angelmondragon/cartcore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/cartcore-backend/pkg/errors"
)

const (
	MinQuantity = 1
	MaxQuantity = 9999

	maxAttributes   = 32
	maxNotesLength  = 2000
	maxAttributeLen = 256
)

// Owner identifies who a cart belongs to. The only implementations are
// SessionOwner and CustomerOwner.
type Owner interface {
	Kind() enums.OwnerKind
	Value() string
	sealed()
}

// SessionOwner owns a guest cart through an opaque session token.
type SessionOwner struct {
	Token string
}

func (SessionOwner) Kind() enums.OwnerKind { return enums.OwnerKindSession }
func (o SessionOwner) Value() string       { return o.Token }
func (SessionOwner) sealed()               {}

// CustomerOwner owns a cart through an authenticated customer id.
type CustomerOwner struct {
	CustomerID string
}

func (CustomerOwner) Kind() enums.OwnerKind { return enums.OwnerKindCustomer }
func (o CustomerOwner) Value() string       { return o.CustomerID }
func (CustomerOwner) sealed()               {}

func NewSessionOwner(token string) (Owner, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session token is required")
	}
	return SessionOwner{Token: token}, nil
}

func NewCustomerOwner(customerID string) (Owner, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id is required")
	}
	return CustomerOwner{CustomerID: customerID}, nil
}

func ownerFrom(kind enums.OwnerKind, value string) (Owner, error) {
	switch kind {
	case enums.OwnerKindSession:
		return NewSessionOwner(value)
	case enums.OwnerKindCustomer:
		return NewCustomerOwner(value)
	default:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "unknown owner kind")
	}
}

// Auth carries the caller credentials presented with a cart request.
type Auth struct {
	SessionToken string
	CustomerID   string
}

// Cart is the aggregate root.
type Cart struct {
	ID               uuid.UUID
	Owner            Owner
	Currency         enums.Currency
	Items            []Item
	Coupon           *AppliedCoupon
	Status           enums.CartStatus
	Version          int64
	Details          Details
	Totals           pricing.Totals
	MergedIntoID     *uuid.UUID
	ConvertedOrderID string
	CreatedAt        time.Time
	LastMutatedAt    time.Time
	ExpiresAt        time.Time
}

// Item is one cart line. DiscountCents is only ever written by recompute.
type Item struct {
	ID                 uuid.UUID
	ProductID          string
	VariantID          string
	AttributesHash     string
	Attributes         map[string]string
	Title              string
	Quantity           int
	UnitPriceCents     int64
	OriginalPriceCents int64
	DiscountCents      int64
	RequiresShipping   bool
	IsGiftCard         bool
	AddedAt            time.Time
}

// SubtotalCents is quantity times the unit price snapshot.
func (i Item) SubtotalCents() int64 {
	return pricing.LineSubtotal(pricing.Line{Quantity: i.Quantity, UnitPriceCents: i.UnitPriceCents})
}

type Details struct {
	Email          string
	ShippingMethod string
	Notes          string
}

// AppliedCoupon is the coupon attached to a cart plus the amounts it yielded
// on the last recompute.
type AppliedCoupon struct {
	Code               string
	Type               enums.DiscountType
	Value              string
	Scope              enums.CouponScope
	MinimumSpendCents  int64
	EligibleProductIDs []string
	DiscountCents      int64
	WaivesShipping     bool
}

// SessionToken returns the token of a guest cart, or "".
func (c *Cart) SessionToken() string {
	if owner, ok := c.Owner.(SessionOwner); ok {
		return owner.Token
	}
	return ""
}

// CustomerID returns the owning customer id, or "".
func (c *Cart) CustomerID() string {
	if owner, ok := c.Owner.(CustomerOwner); ok {
		return owner.CustomerID
	}
	return ""
}

// ItemCount sums quantities across lines.
func (c *Cart) ItemCount() int {
	total := 0
	for _, item := range c.Items {
		total += item.Quantity
	}
	return total
}

func (c *Cart) findItem(id uuid.UUID) int {
	for i := range c.Items {
		if c.Items[i].ID == id {
			return i
		}
	}
	return -1
}

func (c *Cart) findIdentity(productID, variantID, attrsHash string) int {
	for i := range c.Items {
		item := c.Items[i]
		if item.ProductID == productID && item.VariantID == variantID && item.AttributesHash == attrsHash {
			return i
		}
	}
	return -1
}

func (c *Cart) requiresShipping() bool {
	for _, item := range c.Items {
		if item.RequiresShipping {
			return true
		}
	}
	return false
}

// clone returns a deep copy so a failed mutation never leaks into the
// loaded snapshot.
func (c *Cart) clone() *Cart {
	out := *c
	out.Items = make([]Item, len(c.Items))
	for i, item := range c.Items {
		out.Items[i] = item
		out.Items[i].Attributes = copyAttributes(item.Attributes)
	}
	if c.Coupon != nil {
		coupon := *c.Coupon
		coupon.EligibleProductIDs = append([]string(nil), c.Coupon.EligibleProductIDs...)
		out.Coupon = &coupon
	}
	if c.MergedIntoID != nil {
		id := *c.MergedIntoID
		out.MergedIntoID = &id
	}
	return &out
}

func copyAttributes(attrs map[string]string) map[string]string {
	if attrs == nil {
		return nil
	}
	out := make(map[string]string, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}
	return out
}

// expired reports whether an active cart has outlived its inactivity window.
func (c *Cart) expired(now time.Time) bool {
	return c.Status == enums.CartStatusActive && !now.Before(c.ExpiresAt)
}

func (c *Cart) touch(now time.Time, ttl time.Duration) {
	c.Version++
	c.LastMutatedAt = now
	c.ExpiresAt = now.Add(ttl)
}
