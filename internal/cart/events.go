package cart

import (
	"github.com/angelmondragon/cartcore-backend/pkg/enums"
	"github.com/angelmondragon/cartcore-backend/pkg/outbox"
	"github.com/angelmondragon/cartcore-backend/pkg/outbox/payloads"
)

func cartEvent(eventType enums.OutboxEventType, c *Cart, actor *outbox.ActorRef, mutate func(*payloads.CartEvent)) outbox.DomainEvent {
	data := payloads.CartEvent{
		CartID:     c.ID,
		Version:    c.Version,
		Status:     c.Status.String(),
		Currency:   c.Currency.String(),
		TotalCents: c.Totals.TotalCents,
		ItemCount:  c.ItemCount(),
	}
	if mutate != nil {
		mutate(&data)
	}
	return outbox.DomainEvent{
		EventType:        eventType,
		AggregateType:    enums.AggregateCart,
		AggregateID:      c.ID,
		AggregateVersion: c.Version,
		Actor:            actor,
		Data:             data,
		OccurredAt:       c.LastMutatedAt,
	}
}

func itemEvent(eventType enums.OutboxEventType, c *Cart, actor *outbox.ActorRef, item *Item) outbox.DomainEvent {
	return cartEvent(eventType, c, actor, func(p *payloads.CartEvent) {
		if item == nil {
			return
		}
		id := item.ID
		qty := item.Quantity
		p.ItemID = &id
		p.ProductID = item.ProductID
		p.VariantID = item.VariantID
		p.Quantity = &qty
	})
}

func couponEvent(eventType enums.OutboxEventType, c *Cart, actor *outbox.ActorRef, code string) outbox.DomainEvent {
	return cartEvent(eventType, c, actor, func(p *payloads.CartEvent) {
		p.CouponCode = code
	})
}

func mergeEvents(guest, target *Cart, actor *outbox.ActorRef) []outbox.DomainEvent {
	guestID := guest.ID
	targetID := target.ID
	return []outbox.DomainEvent{
		cartEvent(enums.EventCartMerged, guest, actor, func(p *payloads.CartEvent) {
			p.SourceCartID = &guestID
			p.TargetCartID = &targetID
		}),
		cartEvent(enums.EventCartUpdated, target, actor, func(p *payloads.CartEvent) {
			p.SourceCartID = &guestID
		}),
	}
}

// actorFor describes who performed a mutation.
func actorFor(auth Auth) *outbox.ActorRef {
	if auth.CustomerID != "" {
		return &outbox.ActorRef{Kind: outbox.ActorCustomer, ID: auth.CustomerID}
	}
	if auth.SessionToken != "" {
		return &outbox.ActorRef{Kind: outbox.ActorSession}
	}
	return nil
}

func systemActor(id string) *outbox.ActorRef {
	return &outbox.ActorRef{Kind: outbox.ActorSystem, ID: id}
}

func orderEvent(eventType enums.OutboxEventType, c *Cart, actor *outbox.ActorRef, orderID string) outbox.DomainEvent {
	return cartEvent(eventType, c, actor, func(p *payloads.CartEvent) {
		p.OrderID = orderID
	})
}
