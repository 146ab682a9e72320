package messages

import (
	"context"

	"gorm.io/gorm"

	"github.com/angelmondragon/atelier-backend/pkg/db/models"
	"github.com/angelmondragon/atelier-backend/pkg/pagination"
)

// Repository persists direct messages.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a messages repository bound to the provided gorm DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, tx *gorm.DB, msg *models.Message) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(msg).Error
}

// ListThread pages through the messages exchanged by a and b, newest first.
func (r *Repository) ListThread(ctx context.Context, a, b string, params pagination.Params) (pagination.Page[models.Message], error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return pagination.Page[models.Message]{}, err
	}
	query := r.db.WithContext(ctx).
		Where("(sender_uid = ? AND recipient_uid = ?) OR (sender_uid = ? AND recipient_uid = ?)", a, b, b, a)
	if cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.Key)
	}
	var rows []models.Message
	if err := query.Order("created_at DESC").Order("id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Find(&rows).Error; err != nil {
		return pagination.Page[models.Message]{}, err
	}
	return pagination.Trim(rows, params.Limit, func(m models.Message) pagination.Cursor {
		return pagination.Cursor{CreatedAt: m.CreatedAt, Key: m.ID.String()}
	}), nil
}
