// Package registry routes outbox rows to Pub/Sub topics and decodes the cart
// payload they carry.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/angelmondragon/cartcore-backend/pkg/config"
	"github.com/angelmondragon/cartcore-backend/pkg/db/models"
	"github.com/angelmondragon/cartcore-backend/pkg/enums"
	"github.com/angelmondragon/cartcore-backend/pkg/outbox"
	"github.com/angelmondragon/cartcore-backend/pkg/outbox/payloads"
)

// maxEnvelopeVersion is the newest envelope layout this build can decode.
const maxEnvelopeVersion = 1

// ErrUnroutable marks rows whose event type has no topic.
var ErrUnroutable = errors.New("event type not routable")

// NonRetryableError signals the dispatcher should stop retrying a row.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error {
	return e.Err
}

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

// Resolved is a decoded outbox row ready to publish.
type Resolved struct {
	Topic    string
	Envelope outbox.PayloadEnvelope
	Cart     payloads.CartEvent
}

// Attributes are the Pub/Sub message attributes subscribers filter on.
func (r *Resolved) Attributes(event models.OutboxEvent) map[string]string {
	attrs := map[string]string{
		"event_id":          r.Envelope.EventID,
		"event_type":        string(event.EventType),
		"aggregate_type":    string(event.AggregateType),
		"aggregate_id":      event.AggregateID.String(),
		"aggregate_version": strconv.FormatInt(r.Cart.Version, 10),
		"cart_status":       r.Cart.Status,
		"currency":          r.Cart.Currency,
	}
	if r.Envelope.Actor != nil {
		attrs["actor_kind"] = r.Envelope.Actor.Kind
	}
	return attrs
}

// EventRegistry knows which cart event types are published and where.
type EventRegistry struct {
	topics map[enums.OutboxEventType]string
}

// NewEventRegistry routes every cart event type to the configured cart topic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.CartTopic == "" {
		return nil, fmt.Errorf("cart topic is required")
	}
	reg := &EventRegistry{topics: make(map[enums.OutboxEventType]string)}
	for _, eventType := range enums.CartEventTypes() {
		reg.topics[eventType] = cfg.CartTopic
	}
	return reg, nil
}

// Resolve checks that the row is routable and that its payload describes the
// cart it is filed under.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*Resolved, error) {
	topic, ok := r.topics[event.EventType]
	if !ok {
		return nil, NewNonRetryableError(fmt.Errorf("%w: %s", ErrUnroutable, event.EventType))
	}
	if event.AggregateType != enums.AggregateCart {
		return nil, NewNonRetryableError(fmt.Errorf("%w: aggregate %s", ErrUnroutable, event.AggregateType))
	}
	if event.AggregateID == uuid.Nil {
		return nil, NewNonRetryableError(errors.New("missing aggregate_id"))
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode envelope: %w", err))
	}
	if envelope.Version < 1 || envelope.Version > maxEnvelopeVersion {
		return nil, NewNonRetryableError(fmt.Errorf("unsupported envelope version %d", envelope.Version))
	}

	var cart payloads.CartEvent
	if len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		return nil, NewNonRetryableError(fmt.Errorf("payload missing for %s", event.EventType))
	}
	if err := json.Unmarshal(envelope.Data, &cart); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode %s payload: %w", event.EventType, err))
	}
	if cart.CartID != event.AggregateID {
		return nil, NewNonRetryableError(fmt.Errorf("payload cart %s does not match aggregate %s", cart.CartID, event.AggregateID))
	}
	return &Resolved{Topic: topic, Envelope: envelope, Cart: cart}, nil
}
