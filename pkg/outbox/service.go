package outbox

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/atelier-backend/pkg/logger"
)

// Emitter queues events inside the caller's transaction.
type Emitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event Event) error
}

// Writer is the Emitter the domain services share.
type Writer struct {
	repo *Repository
	logg *logger.Logger
	now  func() time.Time
}

func NewWriter(repo *Repository, logg *logger.Logger) *Writer {
	return &Writer{repo: repo, logg: logg, now: time.Now}
}

// Emit fails without a transaction: an event written outside the change it
// describes could be published for a write that later rolls back.
func (w *Writer) Emit(ctx context.Context, tx *gorm.DB, event Event) error {
	if tx == nil {
		return errors.New("outbox emit requires a transaction")
	}
	if err := event.validate(); err != nil {
		return err
	}
	row, env, err := event.row(w.now())
	if err != nil {
		return err
	}
	if err := w.repo.Insert(tx, row); err != nil {
		return err
	}
	if w.logg != nil {
		w.logg.Debug(w.logg.WithFields(ctx, map[string]any{
			"event_id":     env.EventID,
			"event_type":   event.EventType,
			"aggregate_id": event.AggregateID,
		}), "outbox event queued")
	}
	return nil
}
