package outbox

import (
	"encoding/json"
	"time"
)

// Actor kinds recorded on cart events.
const (
	ActorCustomer = "customer"
	ActorSession  = "session"
	ActorSystem   = "system"
)

// ActorRef identifies who caused the event. Session actors never carry the
// token itself.
type ActorRef struct {
	Kind string `json:"kind"`
	ID   string `json:"id,omitempty"`
}

// PayloadEnvelope is the stable payload stored in outbox_events and published
// verbatim. AggregateVersion is the cart version after the change, so
// consumers can drop stale or duplicate deliveries.
type PayloadEnvelope struct {
	Version          int             `json:"version"`
	EventID          string          `json:"eventId"`
	OccurredAt       time.Time       `json:"occurredAt"`
	AggregateVersion int64           `json:"aggregateVersion,omitempty"`
	Actor            *ActorRef       `json:"actor,omitempty"`
	Data             json.RawMessage `json:"data"`
}
