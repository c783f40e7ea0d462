package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type column of outbox_events.
type OutboxAggregateType string

const (
	AggregateCart OutboxAggregateType = "cart"
)

// IsValid reports whether the value matches a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	return a == AggregateCart
}

// OutboxEventType maps to the event_type column of outbox_events.
type OutboxEventType string

const (
	EventCartCreated       OutboxEventType = "cart_created"
	EventCartUpdated       OutboxEventType = "cart_updated"
	EventCartItemAdded     OutboxEventType = "cart_item_added"
	EventCartItemUpdated   OutboxEventType = "cart_item_updated"
	EventCartItemRemoved   OutboxEventType = "cart_item_removed"
	EventCartCouponApplied OutboxEventType = "cart_coupon_applied"
	EventCartCouponRemoved OutboxEventType = "cart_coupon_removed"
	EventCartMerged        OutboxEventType = "cart_merged"
	EventCartConverted     OutboxEventType = "cart_converted"
	EventCartExpired       OutboxEventType = "cart_expired"
	EventCartDeleted       OutboxEventType = "cart_deleted"
)

var validOutboxEventTypes = []OutboxEventType{
	EventCartCreated,
	EventCartUpdated,
	EventCartItemAdded,
	EventCartItemUpdated,
	EventCartItemRemoved,
	EventCartCouponApplied,
	EventCartCouponRemoved,
	EventCartMerged,
	EventCartConverted,
	EventCartExpired,
	EventCartDeleted,
}

// CartEventTypes returns every event type a cart aggregate can emit.
func CartEventTypes() []OutboxEventType {
	return append([]OutboxEventType(nil), validOutboxEventTypes...)
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
