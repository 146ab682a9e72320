package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/atelier-backend/pkg/db/models"
	"github.com/angelmondragon/atelier-backend/pkg/enums"
)

const maxDeadLetterMessage = 1024

// DeadLetters keeps the events the publisher gave up on, for replay by an operator.
type DeadLetters struct {
	db *gorm.DB
}

func NewDeadLetters(db *gorm.DB) *DeadLetters {
	return &DeadLetters{db: db}
}

// DeadLetterFor builds the dead-letter row for event. The failed attempt counts.
func DeadLetterFor(event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error) models.OutboxDLQ {
	entry := models.OutboxDLQ{
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		ErrorReason:   reason,
		AttemptCount:  event.AttemptCount + 1,
		FailedAt:      time.Now().UTC(),
	}
	if cause != nil {
		msg := cause.Error()
		if len(msg) > maxDeadLetterMessage {
			msg = msg[:maxDeadLetterMessage]
		}
		entry.ErrorMessage = &msg
	}
	return entry
}

// Record writes the dead-letter row inside tx, next to the outbox row update.
func (d *DeadLetters) Record(tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if !reason.IsValid() {
		return errors.New("unknown dead-letter reason")
	}
	entry := DeadLetterFor(event, reason, cause)
	return tx.Create(&entry).Error
}

// ForEvent returns the dead-letter row of eventID, or nil when none exists.
func (d *DeadLetters) ForEvent(ctx context.Context, eventID uuid.UUID) (*models.OutboxDLQ, error) {
	var entry models.OutboxDLQ
	err := d.db.WithContext(ctx).Where("event_id = ?", eventID).Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}
