package outbox

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/cartcore-backend/pkg/db/models"
	"github.com/angelmondragon/cartcore-backend/pkg/enums"
)

// DLQRepository parks outbox rows the publisher gave up on. The parked copy
// keeps the original payload so an operator can replay it verbatim.
type DLQRepository struct{}

func NewDLQRepository() *DLQRepository {
	return &DLQRepository{}
}

// DeadLetterTx copies event into outbox_dlq inside tx and returns the stored
// entry.
func (r *DLQRepository) DeadLetterTx(tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error, failedAt time.Time) (models.OutboxDLQ, error) {
	if tx == nil {
		return models.OutboxDLQ{}, errors.New("transaction required")
	}
	if !reason.IsValid() {
		return models.OutboxDLQ{}, fmt.Errorf("unknown dlq reason %q", reason)
	}
	entry := models.OutboxDLQ{
		ID:            uuid.New(),
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		ErrorReason:   reason,
		AttemptCount:  event.AttemptCount,
		FailedAt:      failedAt.UTC(),
	}
	if cause != nil {
		msg := truncateError(cause)
		entry.ErrorMessage = &msg
	}
	if err := tx.Create(&entry).Error; err != nil {
		return models.OutboxDLQ{}, err
	}
	return entry, nil
}
