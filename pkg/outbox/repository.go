package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/atelier-backend/pkg/db/models"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Insert(tx *gorm.DB, event models.OutboxEvent) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	return tx.Create(&event).Error
}

// Pending returns up to limit unpublished rows in commit order.
func (r *Repository) Pending(ctx context.Context, limit int) ([]models.OutboxEvent, error) {
	var rows []models.OutboxEvent
	err := unpublished(r.db.WithContext(ctx)).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// Backlog reports how many rows wait for publishing and when the oldest was
// written. oldest is zero when the backlog is empty.
func (r *Repository) Backlog(ctx context.Context) (count int64, oldest time.Time, err error) {
	q := unpublished(r.db.WithContext(ctx).Model(&models.OutboxEvent{}))
	if err = q.Count(&count).Error; err != nil || count == 0 {
		return count, time.Time{}, err
	}
	var first models.OutboxEvent
	err = unpublished(r.db.WithContext(ctx)).Order("created_at ASC").Take(&first).Error
	return count, first.CreatedAt, err
}

func (r *Repository) MarkPublished(ctx context.Context, id uuid.UUID) error {
	return stamp(r.db.WithContext(ctx), id, map[string]any{"published_at": time.Now().UTC()})
}

func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, cause error) error {
	return stamp(r.db.WithContext(ctx), id, map[string]any{
		"last_error":    cause.Error(),
		"attempt_count": gorm.Expr("attempt_count + 1"),
	})
}

// MarkDeadLettered retires the row in the transaction that wrote its
// dead-letter entry, so the poller stops picking it up.
func (r *Repository) MarkDeadLettered(tx *gorm.DB, id uuid.UUID, cause error) error {
	return stamp(tx, id, map[string]any{
		"published_at":  time.Now().UTC(),
		"last_error":    cause.Error(),
		"attempt_count": gorm.Expr("attempt_count + 1"),
	})
}

func unpublished(db *gorm.DB) *gorm.DB {
	return db.Where("published_at IS NULL")
}

func stamp(db *gorm.DB, id uuid.UUID, fields map[string]any) error {
	res := db.Model(&models.OutboxEvent{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
