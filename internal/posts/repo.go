package posts

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/atelier-backend/pkg/db/models"
	"github.com/angelmondragon/atelier-backend/pkg/pagination"
)

// Repository persists posts, comments and likes. Methods take the
// transaction they run on; a nil tx falls back to the root connection.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a posts repository bound to the provided gorm DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) conn(ctx context.Context, tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx.WithContext(ctx)
	}
	return r.db.WithContext(ctx)
}

func (r *Repository) CreatePost(ctx context.Context, tx *gorm.DB, post *models.Post) error {
	return r.conn(ctx, tx).Create(post).Error
}

// FindPost returns the post including soft-deleted rows.
func (r *Repository) FindPost(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Post, error) {
	var post models.Post
	if err := r.conn(ctx, tx).First(&post, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &post, nil
}

// SoftDeletePost stamps deleted_at once and reports whether this call did it.
func (r *Repository) SoftDeletePost(ctx context.Context, tx *gorm.DB, id uuid.UUID, at time.Time) (bool, error) {
	res := r.conn(ctx, tx).
		Model(&models.Post{}).
		Where("id = ? AND deleted_at IS NULL", id).
		UpdateColumn("deleted_at", at)
	return res.RowsAffected == 1, res.Error
}

func (r *Repository) CreateComment(ctx context.Context, tx *gorm.DB, comment *models.Comment) error {
	return r.conn(ctx, tx).Create(comment).Error
}

func (r *Repository) FindComment(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Comment, error) {
	var comment models.Comment
	if err := r.conn(ctx, tx).First(&comment, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &comment, nil
}

// SoftDeleteComment stamps deleted_at once and reports whether this call did it.
func (r *Repository) SoftDeleteComment(ctx context.Context, tx *gorm.DB, id uuid.UUID, at time.Time) (bool, error) {
	res := r.conn(ctx, tx).
		Model(&models.Comment{}).
		Where("id = ? AND deleted_at IS NULL", id).
		UpdateColumn("deleted_at", at)
	return res.RowsAffected == 1, res.Error
}

// InsertLike reports whether the like row was new.
func (r *Repository) InsertLike(ctx context.Context, tx *gorm.DB, postID uuid.UUID, uid string) (bool, error) {
	like := models.Like{PostID: postID, UID: uid}
	res := r.conn(ctx, tx).Clauses(clause.OnConflict{DoNothing: true}).Create(&like)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// DeleteLike reports whether a like row was removed.
func (r *Repository) DeleteLike(ctx context.Context, tx *gorm.DB, postID uuid.UUID, uid string) (bool, error) {
	res := r.conn(ctx, tx).
		Where("post_id = ? AND uid = ?", postID, uid).
		Delete(&models.Like{})
	return res.RowsAffected > 0, res.Error
}

// HasLiked reports whether uid currently likes the post.
func (r *Repository) HasLiked(ctx context.Context, tx *gorm.DB, postID uuid.UUID, uid string) (bool, error) {
	var count int64
	err := r.conn(ctx, tx).
		Model(&models.Like{}).
		Where("post_id = ? AND uid = ?", postID, uid).
		Count(&count).Error
	return count > 0, err
}

// ListComments pages through a post's live comments, oldest first. When
// viewerUID is set, comments by users in a block pair with the viewer are
// left out.
func (r *Repository) ListComments(ctx context.Context, postID uuid.UUID, viewerUID string, params pagination.Params) (pagination.Page[models.Comment], error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return pagination.Page[models.Comment]{}, err
	}
	query := r.conn(ctx, nil).
		Where("post_id = ? AND deleted_at IS NULL", postID)
	if viewerUID != "" {
		query = query.Where(`NOT EXISTS (
			SELECT 1 FROM blocks b
			WHERE (b.blocker_uid = ? AND b.blocked_uid = comments.author_uid)
			   OR (b.blocker_uid = comments.author_uid AND b.blocked_uid = ?))`, viewerUID, viewerUID)
	}
	if cursor != nil {
		query = query.Where("(created_at > ?) OR (created_at = ? AND id > ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.Key)
	}
	var rows []models.Comment
	if err := query.Order("created_at ASC").Order("id ASC").
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Find(&rows).Error; err != nil {
		return pagination.Page[models.Comment]{}, err
	}
	return pagination.Trim(rows, params.Limit, func(c models.Comment) pagination.Cursor {
		return pagination.Cursor{CreatedAt: c.CreatedAt, Key: c.ID.String()}
	}), nil
}
