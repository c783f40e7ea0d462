package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/cartcore-backend/pkg/config"
	"github.com/angelmondragon/cartcore-backend/pkg/db/models"
	"github.com/angelmondragon/cartcore-backend/pkg/enums"
	"github.com/angelmondragon/cartcore-backend/pkg/logger"
	"github.com/angelmondragon/cartcore-backend/pkg/metrics"
	"github.com/angelmondragon/cartcore-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize      = 50
	defaultPollMs         = 500
	defaultPublishTimeout = 15 * time.Second
	defaultMaxAttempts    = 10
)

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pubSubClient interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type dlqRepository interface {
	DeadLetterTx(tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error, failedAt time.Time) (models.OutboxDLQ, error)
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.Resolved, error)
}

type ServiceParams struct {
	Config           *config.Config
	Logger           *logger.Logger
	DB               dbClient
	PubSub           pubSubClient
	Repository       outboxRepository
	Registry         registryResolver
	PublisherFactory publisherFactory
	DLQRepository    dlqRepository
	Metrics          *metrics.OutboxMetrics
}

// Service drains outbox_events to Pub/Sub. Rows are locked per batch so
// several publishers can run side by side.
type Service struct {
	logg             *logger.Logger
	db               dbClient
	repo             outboxRepository
	pubsub           pubSubClient
	registry         registryResolver
	dlq              dlqRepository
	metrics          *metrics.OutboxMetrics
	publisherFactory publisherFactory
	dlqTopic         string
	batchSize        int
	maxAttempts      int
	pollInterval     time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Config == nil:
		return nil, errors.New("config is required")
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.PubSub == nil:
		return nil, errors.New("pubsub client is required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository is required")
	case params.Registry == nil:
		return nil, errors.New("event registry is required")
	case params.DLQRepository == nil:
		return nil, errors.New("dlq repository is required")
	}

	factory := params.PublisherFactory
	if factory == nil {
		factory = newTopicPublishers(params.PubSub).get
	}

	outboxCfg := params.Config.Outbox
	batch := outboxCfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	pollMs := outboxCfg.PollIntervalMS
	if pollMs <= 0 {
		pollMs = defaultPollMs
	}
	maxAttempts := outboxCfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	return &Service{
		logg:             params.Logger,
		db:               params.DB,
		repo:             params.Repository,
		pubsub:           params.PubSub,
		registry:         params.Registry,
		dlq:              params.DLQRepository,
		metrics:          params.Metrics,
		publisherFactory: factory,
		dlqTopic:         params.Config.PubSub.DLQTopic,
		batchSize:        batch,
		maxAttempts:      maxAttempts,
		pollInterval:     time.Duration(pollMs) * time.Millisecond,
	}, nil
}

// checkDependencies pings the database and Pub/Sub and reports every
// failure, not just the first.
func (s *Service) checkDependencies(ctx context.Context) error {
	var errs error
	if err := s.db.Ping(ctx); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("database: %w", err))
	}
	if err := s.pubsub.Ping(ctx); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("pubsub: %w", err))
	}
	return errs
}

// Run drains the outbox until ctx is canceled. A full batch is followed
// straight away by the next one; an idle poll waits one interval and a
// failed batch waits an increasing delay.
func (s *Service) Run(ctx context.Context) error {
	if err := s.checkDependencies(ctx); err != nil {
		s.logg.Error(ctx, "outbox publisher dependencies unavailable", err)
		return err
	}

	delay := newPollBackoff(s.pollInterval, maxBackoff)
	for {
		if err := ctx.Err(); err != nil {
			s.logg.Info(ctx, "outbox publisher stopping")
			return err
		}

		processed, err := s.processBatch(ctx)
		switch {
		case err != nil:
			s.logg.Error(ctx, "outbox publisher batch error", err)
			if err := sleepCtx(ctx, delay.fail()); err != nil {
				return err
			}
		case processed == s.batchSize:
			delay.reset()
		default:
			delay.reset()
			if err := sleepCtx(ctx, delay.idle()); err != nil {
				return err
			}
		}
	}
}

// processBatch returns how many rows it fetched.
func (s *Service) processBatch(ctx context.Context) (int, error) {
	var fetched int
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return err
		}
		fetched = len(events)
		for _, event := range events {
			if err := s.dispatch(ctx, tx, event); err != nil {
				return err
			}
		}
		return nil
	})
	return fetched, err
}

// dispatch publishes one row and records the outcome. Only bookkeeping
// failures are returned; publish failures are recorded on the row.
func (s *Service) dispatch(ctx context.Context, tx *gorm.DB, event models.OutboxEvent) error {
	resolved, err := s.registry.Resolve(event)
	if err != nil {
		reason := enums.OutboxDLQReasonNonRetryable
		if errors.Is(err, registry.ErrUnroutable) {
			reason = enums.OutboxDLQReasonUnroutable
		}
		return s.handleTerminal(ctx, tx, event, reason, err, s.eventFields(event, nil))
	}

	fields := s.eventFields(event, resolved)
	pubErr := s.publishResolved(ctx, event, resolved)
	if pubErr == nil {
		if err := s.repo.MarkPublishedTx(tx, event.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		s.metrics.Published(string(event.EventType))
		s.logg.Info(s.logg.WithFields(ctx, fields), "outbox event published")
		return nil
	}

	var nonRetry registry.NonRetryableError
	if errors.As(pubErr, &nonRetry) {
		return s.handleTerminal(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, pubErr, fields)
	}

	nextAttempt := event.AttemptCount + 1
	fields["attempt_count"] = nextAttempt
	if nextAttempt >= s.maxAttempts {
		terminalErr := fmt.Errorf("max publish attempts reached: %w", pubErr)
		return s.handleTerminal(ctx, tx, event, enums.OutboxDLQReasonMaxAttempts, terminalErr, fields)
	}

	s.metrics.Failed(string(event.EventType), false)
	warnCtx := s.logg.WithFields(ctx, fields)
	s.logg.Warn(s.logg.WithField(warnCtx, "error", pubErr.Error()), "outbox publish failed")
	if err := s.repo.MarkFailedTx(tx, event.ID, pubErr); err != nil {
		return fmt.Errorf("mark failure %s: %w", event.ID, err)
	}
	return nil
}

func (s *Service) handleTerminal(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error, fields map[string]any) error {
	fields["error_reason"] = reason
	logCtx := s.logg.WithField(s.logg.WithFields(ctx, fields), "error", cause.Error())
	s.logg.Warn(logCtx, "outbox event moved to dlq")

	entry, err := s.dlq.DeadLetterTx(tx, event, reason, cause, time.Now())
	if err != nil {
		return fmt.Errorf("insert dlq %s: %w", event.ID, err)
	}
	if err := s.repo.MarkTerminalTx(tx, event.ID, cause, s.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, err)
	}
	s.metrics.Failed(string(event.EventType), true)
	s.notifyDLQ(logCtx, entry)
	return nil
}

// notifyDLQ announces a dead-lettered row on the DLQ topic. The DLQ table
// is the record of truth, so a failed notice is only logged.
func (s *Service) notifyDLQ(ctx context.Context, entry models.OutboxDLQ) {
	if s.dlqTopic == "" {
		return
	}
	pub := s.publisherFactory(s.dlqTopic)
	if pub == nil {
		return
	}
	body, err := json.Marshal(map[string]any{
		"eventId":      entry.EventID,
		"eventType":    entry.EventType,
		"aggregateId":  entry.AggregateID,
		"errorReason":  entry.ErrorReason,
		"attemptCount": entry.AttemptCount,
		"failedAt":     entry.FailedAt,
	})
	if err != nil {
		s.logg.Error(ctx, "encode dlq notice", err)
		return
	}
	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	result := pub.Publish(publishCtx, &gcppubsub.Message{
		Data:       body,
		Attributes: map[string]string{"event_type": string(entry.EventType), "error_reason": string(entry.ErrorReason)},
	})
	if result == nil {
		return
	}
	if _, err := result.Get(publishCtx); err != nil {
		s.logg.Error(ctx, "publish dlq notice", err)
	}
}

// publishResolved sends the envelope with the cart id as ordering key so
// subscribers see each cart's events in commit order.
func (s *Service) publishResolved(ctx context.Context, event models.OutboxEvent, resolved *registry.Resolved) error {
	topic := resolved.Topic
	pub := s.publisherFactory(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", topic))
	}

	attrs := resolved.Attributes(event)
	attrs["created_at"] = event.CreatedAt.Format(time.RFC3339Nano)
	msg := &gcppubsub.Message{
		Data:        event.Payload,
		OrderingKey: event.AggregateID.String(),
		Attributes:  attrs,
	}

	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	result := pub.Publish(publishCtx, msg)
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher returned nil for topic %s", topic))
	}
	_, err := result.Get(publishCtx)
	return err
}

func (s *Service) eventFields(event models.OutboxEvent, resolved *registry.Resolved) map[string]any {
	fields := map[string]any{
		"outbox_id":     event.ID.String(),
		"event_type":    event.EventType,
		"cart_id":       event.AggregateID.String(),
		"attempt_count": event.AttemptCount,
	}
	if resolved != nil {
		fields["topic"] = resolved.Topic
		fields["cart_status"] = resolved.Cart.Status
		if resolved.Envelope.EventID != "" {
			fields["event_id"] = resolved.Envelope.EventID
			fields["occurred_at"] = resolved.Envelope.OccurredAt.Format(time.RFC3339Nano)
		}
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	return fields
}
