package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/cartcore-backend/pkg/db/models"
	"github.com/angelmondragon/cartcore-backend/pkg/enums"
	"github.com/angelmondragon/cartcore-backend/pkg/logger"
)

const currentPayloadVersion = 1

// DomainEvent is what callers hand to Emit. AggregateType defaults to cart.
type DomainEvent struct {
	EventType        enums.OutboxEventType
	AggregateType    enums.OutboxAggregateType
	AggregateID      uuid.UUID
	AggregateVersion int64
	Actor            *ActorRef
	Data             any
	OccurredAt       time.Time
}

type Service struct {
	repo *Repository
	logg *logger.Logger
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg}
}

// Emit queues event inside tx. The row becomes visible to the publisher only
// when tx commits.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if event.AggregateType == "" {
		event.AggregateType = enums.AggregateCart
	}
	payload, err := json.Marshal(event.Data)
	if err != nil {
		return err
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	envelope := PayloadEnvelope{
		Version:          currentPayloadVersion,
		EventID:          uuid.NewString(),
		OccurredAt:       event.OccurredAt,
		AggregateVersion: event.AggregateVersion,
		Actor:            event.Actor,
		Data:             payload,
	}
	payloadJSON, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	row := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       json.RawMessage(payloadJSON),
	}
	if err := s.repo.Insert(tx, row); err != nil {
		return err
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"event_id":       envelope.EventID,
			"event_type":     event.EventType,
			"aggregate_id":   event.AggregateID.String(),
			"aggregate_type": event.AggregateType,
		})
		s.logg.Debug(logCtx, "outbox event queued")
	}
	return nil
}

// EmitAll queues events in order, stopping at the first failure.
func (s *Service) EmitAll(ctx context.Context, tx *gorm.DB, events []DomainEvent) error {
	for _, event := range events {
		if err := s.Emit(ctx, tx, event); err != nil {
			return err
		}
	}
	return nil
}
