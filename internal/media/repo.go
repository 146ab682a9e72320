package media

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/atelier-backend/pkg/db/models"
	"github.com/angelmondragon/atelier-backend/pkg/enums"
	"github.com/angelmondragon/atelier-backend/pkg/pagination"
)

// postMediaKinds are the kinds a post may carry.
var postMediaKinds = []enums.MediaKind{enums.MediaKindPostImage, enums.MediaKindPostVideo}

// Repository exposes media metadata persistence operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a media repository bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) conn(ctx context.Context, tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx.WithContext(ctx)
	}
	return r.db.WithContext(ctx)
}

// Create persists a media record.
func (r *Repository) Create(ctx context.Context, tx *gorm.DB, media *models.Media) error {
	return r.conn(ctx, tx).Create(media).Error
}

// FindByID retrieves a media record by ID.
func (r *Repository) FindByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Media, error) {
	var m models.Media
	if err := r.conn(ctx, tx).First(&m, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// AttachToPost claims the owner's unattached post uploads for postID and
// returns how many rows it claimed.
func (r *Repository) AttachToPost(ctx context.Context, tx *gorm.DB, ownerUID string, postID uuid.UUID, mediaIDs []uuid.UUID) (int64, error) {
	if len(mediaIDs) == 0 {
		return 0, nil
	}
	res := r.conn(ctx, tx).
		Model(&models.Media{}).
		Where("id IN ? AND owner_uid = ? AND post_id IS NULL AND kind IN ?", mediaIDs, ownerUID, postMediaKinds).
		UpdateColumn("post_id", postID)
	return res.RowsAffected, res.Error
}

// ListByOwner pages through ownerUID's uploads, newest first.
func (r *Repository) ListByOwner(ctx context.Context, ownerUID string, kind *enums.MediaKind, params pagination.Params) (pagination.Page[models.Media], error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return pagination.Page[models.Media]{}, err
	}
	query := r.conn(ctx, nil).Where("owner_uid = ?", ownerUID)
	if kind != nil {
		query = query.Where("kind = ?", *kind)
	}
	if cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.Key)
	}
	var rows []models.Media
	if err := query.Order("created_at DESC").Order("id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Find(&rows).Error; err != nil {
		return pagination.Page[models.Media]{}, err
	}
	return pagination.Trim(rows, params.Limit, func(m models.Media) pagination.Cursor {
		return pagination.Cursor{CreatedAt: m.CreatedAt, Key: m.ID.String()}
	}), nil
}
