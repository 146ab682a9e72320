package models

import (
	"time"

	"github.com/angelmondragon/atelier-backend/pkg/enums"
)

// User is the identity record keyed by the identity provider's uid.
type User struct {
	UID                string                   `gorm:"column:uid;type:text;primaryKey"`
	Role               enums.Role               `gorm:"column:role;type:text;not null;default:unassigned"`
	EmailVerified      bool                     `gorm:"column:email_verified;not null;default:false"`
	VerificationStatus enums.VerificationStatus `gorm:"column:verification_status;type:text;not null;default:none"`
	CreatedAt          time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

// PublicProfile is the social projection of a user.
type PublicProfile struct {
	UID              string    `gorm:"column:uid;type:text;primaryKey"`
	Handle           string    `gorm:"column:handle;type:text;not null;uniqueIndex:idx_public_profiles_handle"`
	DisplayName      string    `gorm:"column:display_name;type:text;not null;default:''"`
	Bio              string    `gorm:"column:bio;type:text;not null;default:''"`
	IsPrivateAccount bool      `gorm:"column:is_private_account;not null;default:false"`
	FollowerCount    int64     `gorm:"column:follower_count;not null;default:0"`
	AvatarAssetID    *string   `gorm:"column:avatar_asset_id;type:text"`
	CreatedAt        time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// CreatorVerification is a user's request to be verified as a creator.
type CreatorVerification struct {
	Base
	UID           string                   `gorm:"column:uid;type:text;not null;index:idx_creator_verifications_uid;uniqueIndex:idx_creator_verifications_pending,where:status = 'pending'"`
	EvidencePaths StringList               `gorm:"column:evidence_paths;type:jsonb;not null"`
	Notes         *string                  `gorm:"column:notes;type:text"`
	Status        enums.VerificationStatus `gorm:"column:status;type:text;not null"`
	DecidedBy     *string                  `gorm:"column:decided_by;type:text"`
	DecidedAt     *time.Time               `gorm:"column:decided_at"`
	CreatedAt     time.Time                `gorm:"column:created_at;autoCreateTime"`
}
