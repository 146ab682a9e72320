package users

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/atelier-backend/pkg/db/models"
	"github.com/angelmondragon/atelier-backend/pkg/enums"
)

// Repository exposes user, profile and verification persistence. Methods take
// the transaction they run on; a nil tx falls back to the root connection.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a users repo bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) conn(ctx context.Context, tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx.WithContext(ctx)
	}
	return r.db.WithContext(ctx)
}

// FindByUID loads a user by identity provider uid.
func (r *Repository) FindByUID(ctx context.Context, tx *gorm.DB, uid string) (*models.User, error) {
	var user models.User
	if err := r.conn(ctx, tx).First(&user, "uid = ?", uid).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// CreateIfAbsent inserts the user unless the uid already exists and reports
// whether a row was written.
func (r *Repository) CreateIfAbsent(ctx context.Context, tx *gorm.DB, user *models.User) (bool, error) {
	res := r.conn(ctx, tx).Clauses(clause.OnConflict{DoNothing: true}).Create(user)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// UpdateEmailVerified refreshes the email verification flag.
func (r *Repository) UpdateEmailVerified(ctx context.Context, tx *gorm.DB, uid string, verified bool) error {
	return r.conn(ctx, tx).
		Model(&models.User{}).
		Where("uid = ?", uid).
		Updates(map[string]any{"email_verified": verified, "updated_at": time.Now().UTC()}).Error
}

// UpdateRoleFrom moves the user to next only while the role still equals
// from, and reports whether the row changed.
func (r *Repository) UpdateRoleFrom(ctx context.Context, tx *gorm.DB, uid string, from, next enums.Role) (bool, error) {
	res := r.conn(ctx, tx).
		Model(&models.User{}).
		Where("uid = ? AND role = ?", uid, from).
		Updates(map[string]any{"role": next, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// UpdateVerificationStatus mirrors a verification decision onto the user.
func (r *Repository) UpdateVerificationStatus(ctx context.Context, tx *gorm.DB, uid string, status enums.VerificationStatus) error {
	return r.conn(ctx, tx).
		Model(&models.User{}).
		Where("uid = ?", uid).
		Updates(map[string]any{"verification_status": status, "updated_at": time.Now().UTC()}).Error
}

// FindProfile loads the public profile for uid.
func (r *Repository) FindProfile(ctx context.Context, tx *gorm.DB, uid string) (*models.PublicProfile, error) {
	var profile models.PublicProfile
	if err := r.conn(ctx, tx).First(&profile, "uid = ?", uid).Error; err != nil {
		return nil, err
	}
	return &profile, nil
}

// CreateProfile inserts a profile row.
func (r *Repository) CreateProfile(ctx context.Context, tx *gorm.DB, profile *models.PublicProfile) error {
	return r.conn(ctx, tx).Create(profile).Error
}

// HandleTaken reports whether another user already owns handle.
func (r *Repository) HandleTaken(ctx context.Context, tx *gorm.DB, handle, exceptUID string) (bool, error) {
	var count int64
	if err := r.conn(ctx, tx).
		Model(&models.PublicProfile{}).
		Where("handle = ? AND uid <> ?", handle, exceptUID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// UpdateProfile applies the given column updates.
func (r *Repository) UpdateProfile(ctx context.Context, tx *gorm.DB, uid string, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	updates["updated_at"] = time.Now().UTC()
	return r.conn(ctx, tx).
		Model(&models.PublicProfile{}).
		Where("uid = ?", uid).
		Updates(updates).Error
}

// CreateVerification inserts a creator verification request.
func (r *Repository) CreateVerification(ctx context.Context, tx *gorm.DB, v *models.CreatorVerification) error {
	return r.conn(ctx, tx).Create(v).Error
}

// FindPendingVerification returns the user's pending request, if any.
func (r *Repository) FindPendingVerification(ctx context.Context, tx *gorm.DB, uid string) (*models.CreatorVerification, error) {
	var v models.CreatorVerification
	if err := r.conn(ctx, tx).
		Where("uid = ? AND status = ?", uid, enums.VerificationPending).
		First(&v).Error; err != nil {
		return nil, err
	}
	return &v, nil
}

// FindVerification loads a verification request by id.
func (r *Repository) FindVerification(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.CreatorVerification, error) {
	var v models.CreatorVerification
	if err := r.conn(ctx, tx).First(&v, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &v, nil
}

// DecideVerification stamps the decision on a pending request and reports
// whether it was still pending.
func (r *Repository) DecideVerification(ctx context.Context, tx *gorm.DB, id uuid.UUID, status enums.VerificationStatus, decidedBy string, at time.Time) (bool, error) {
	res := r.conn(ctx, tx).
		Model(&models.CreatorVerification{}).
		Where("id = ? AND status = ?", id, enums.VerificationPending).
		Updates(map[string]any{"status": status, "decided_by": decidedBy, "decided_at": at})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ListVerifications returns requests with the given status, oldest first.
func (r *Repository) ListVerifications(ctx context.Context, status enums.VerificationStatus, limit int) ([]models.CreatorVerification, error) {
	var rows []models.CreatorVerification
	err := r.conn(ctx, nil).
		Where("status = ?", status).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
