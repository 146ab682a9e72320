package graph

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/atelier-backend/pkg/db/models"
	"github.com/angelmondragon/atelier-backend/pkg/enums"
	"github.com/angelmondragon/atelier-backend/pkg/pagination"
)

// Repository persists block edges, follow requests and follow edges. Methods
// take the transaction they run on; a nil tx falls back to the root connection.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a graph repository bound to the provided gorm DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) conn(ctx context.Context, tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx.WithContext(ctx)
	}
	return r.db.WithContext(ctx)
}

// IsBlockedPair reports whether a block row exists in either direction.
func (r *Repository) IsBlockedPair(ctx context.Context, tx *gorm.DB, a, b string) (bool, error) {
	var count int64
	err := r.conn(ctx, tx).
		Model(&models.BlockEdge{}).
		Where("(blocker_uid = ? AND blocked_uid = ?) OR (blocker_uid = ? AND blocked_uid = ?)", a, b, b, a).
		Count(&count).Error
	return count > 0, err
}

// InsertBlock writes blocker's edge and reports whether it was new.
func (r *Repository) InsertBlock(ctx context.Context, tx *gorm.DB, blockerUID, blockedUID string) (bool, error) {
	edge := models.BlockEdge{BlockerUID: blockerUID, BlockedUID: blockedUID}
	res := r.conn(ctx, tx).Clauses(clause.OnConflict{DoNothing: true}).Create(&edge)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// DeleteBlock removes blocker's edge only.
func (r *Repository) DeleteBlock(ctx context.Context, tx *gorm.DB, blockerUID, blockedUID string) (bool, error) {
	res := r.conn(ctx, tx).
		Where("blocker_uid = ? AND blocked_uid = ?", blockerUID, blockedUID).
		Delete(&models.BlockEdge{})
	return res.RowsAffected > 0, res.Error
}

// IsFollowing reports whether follower currently follows followee.
func (r *Repository) IsFollowing(ctx context.Context, tx *gorm.DB, followerUID, followeeUID string) (bool, error) {
	var count int64
	err := r.conn(ctx, tx).
		Model(&models.FollowEdge{}).
		Where("follower_uid = ? AND followee_uid = ?", followerUID, followeeUID).
		Count(&count).Error
	return count > 0, err
}

// InsertFollowEdge writes the edge and reports whether it was new.
func (r *Repository) InsertFollowEdge(ctx context.Context, tx *gorm.DB, followerUID, followeeUID string) (bool, error) {
	edge := models.FollowEdge{FollowerUID: followerUID, FolloweeUID: followeeUID}
	res := r.conn(ctx, tx).Clauses(clause.OnConflict{DoNothing: true}).Create(&edge)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// DeleteFollowEdge removes the edge and reports whether one existed.
func (r *Repository) DeleteFollowEdge(ctx context.Context, tx *gorm.DB, followerUID, followeeUID string) (bool, error) {
	res := r.conn(ctx, tx).
		Where("follower_uid = ? AND followee_uid = ?", followerUID, followeeUID).
		Delete(&models.FollowEdge{})
	return res.RowsAffected > 0, res.Error
}

// FindOpenRequest returns the pair's non-rejected request.
func (r *Repository) FindOpenRequest(ctx context.Context, tx *gorm.DB, fromUID, toUID string) (*models.FollowRequest, error) {
	var req models.FollowRequest
	err := r.conn(ctx, tx).
		Where("from_uid = ? AND to_uid = ? AND status <> ?", fromUID, toUID, enums.FollowRequestRejected).
		First(&req).Error
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// CreateRequest inserts a request and reports whether it was written. A false
// result means a concurrent transaction already holds the open request.
func (r *Repository) CreateRequest(ctx context.Context, tx *gorm.DB, req *models.FollowRequest) (bool, error) {
	res := r.conn(ctx, tx).Clauses(clause.OnConflict{DoNothing: true}).Create(req)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// DecideRequest moves a pending request to status.
func (r *Repository) DecideRequest(ctx context.Context, tx *gorm.DB, req *models.FollowRequest, status enums.FollowRequestStatus, at time.Time) (bool, error) {
	res := r.conn(ctx, tx).
		Model(&models.FollowRequest{}).
		Where("id = ? AND status = ?", req.ID, enums.FollowRequestPending).
		Updates(map[string]any{"status": status, "decided_at": at})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 1 {
		req.Status = status
		req.DecidedAt = &at
	}
	return res.RowsAffected == 1, nil
}

// DeleteOpenRequests removes the pair's non-rejected requests.
func (r *Repository) DeleteOpenRequests(ctx context.Context, tx *gorm.DB, fromUID, toUID string) (int64, error) {
	res := r.conn(ctx, tx).
		Where("from_uid = ? AND to_uid = ? AND status <> ?", fromUID, toUID, enums.FollowRequestRejected).
		Delete(&models.FollowRequest{})
	return res.RowsAffected, res.Error
}

// DeletePairRequests removes every request between a and b, both directions.
func (r *Repository) DeletePairRequests(ctx context.Context, tx *gorm.DB, a, b string) error {
	return r.conn(ctx, tx).
		Where("(from_uid = ? AND to_uid = ?) OR (from_uid = ? AND to_uid = ?)", a, b, b, a).
		Delete(&models.FollowRequest{}).Error
}

// ListBlocked pages through the uids blocked by uid, newest first.
func (r *Repository) ListBlocked(ctx context.Context, uid string, params pagination.Params) (pagination.Page[models.BlockEdge], error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return pagination.Page[models.BlockEdge]{}, err
	}
	query := r.conn(ctx, nil).Where("blocker_uid = ?", uid)
	if cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND blocked_uid < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.Key)
	}
	var rows []models.BlockEdge
	if err := query.Order("created_at DESC").Order("blocked_uid DESC").
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Find(&rows).Error; err != nil {
		return pagination.Page[models.BlockEdge]{}, err
	}
	return pagination.Trim(rows, params.Limit, func(e models.BlockEdge) pagination.Cursor {
		return pagination.Cursor{CreatedAt: e.CreatedAt, Key: e.BlockedUID}
	}), nil
}

// ListPendingRequests pages through requests waiting on uid's decision.
func (r *Repository) ListPendingRequests(ctx context.Context, uid string, params pagination.Params) (pagination.Page[models.FollowRequest], error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return pagination.Page[models.FollowRequest]{}, err
	}
	query := r.conn(ctx, nil).Where("to_uid = ? AND status = ?", uid, enums.FollowRequestPending)
	if cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.Key)
	}
	var rows []models.FollowRequest
	if err := query.Order("created_at DESC").Order("id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Find(&rows).Error; err != nil {
		return pagination.Page[models.FollowRequest]{}, err
	}
	return pagination.Trim(rows, params.Limit, func(req models.FollowRequest) pagination.Cursor {
		return pagination.Cursor{CreatedAt: req.CreatedAt, Key: req.ID.String()}
	}), nil
}

// ListFollowers pages through the followers of uid, newest first.
func (r *Repository) ListFollowers(ctx context.Context, uid string, params pagination.Params) (pagination.Page[models.FollowEdge], error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return pagination.Page[models.FollowEdge]{}, err
	}
	query := r.conn(ctx, nil).Where("followee_uid = ?", uid)
	if cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND follower_uid < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.Key)
	}
	var rows []models.FollowEdge
	if err := query.Order("created_at DESC").Order("follower_uid DESC").
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Find(&rows).Error; err != nil {
		return pagination.Page[models.FollowEdge]{}, err
	}
	return pagination.Trim(rows, params.Limit, func(e models.FollowEdge) pagination.Cursor {
		return pagination.Cursor{CreatedAt: e.CreatedAt, Key: e.FollowerUID}
	}), nil
}
