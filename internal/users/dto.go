package users

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/atelier-backend/pkg/db/models"
	"github.com/angelmondragon/atelier-backend/pkg/enums"
)

// UserDTO is the caller's own identity record.
type UserDTO struct {
	UID                string                   `json:"uid"`
	Role               enums.Role               `json:"role"`
	EmailVerified      bool                     `json:"email_verified"`
	VerificationStatus enums.VerificationStatus `json:"verification_status"`
	CreatedAt          time.Time                `json:"created_at"`
}

// ProfileDTO is the public projection of a user.
type ProfileDTO struct {
	UID              string  `json:"uid"`
	Handle           string  `json:"handle"`
	DisplayName      string  `json:"display_name"`
	Bio              string  `json:"bio"`
	IsPrivateAccount bool    `json:"is_private_account"`
	FollowerCount    int64   `json:"follower_count"`
	AvatarAssetID    *string `json:"avatar_asset_id,omitempty"`
}

// UpdateProfileInput carries the editable profile fields; nil leaves a field unchanged.
type UpdateProfileInput struct {
	Handle           *string `json:"handle" validate:"omitempty,handle"`
	DisplayName      *string `json:"displayName" validate:"omitempty,max=80"`
	Bio              *string `json:"bio" validate:"omitempty,max=500"`
	IsPrivateAccount *bool   `json:"isPrivateAccount"`
	AvatarAssetID    *string `json:"avatarAssetId"`
}

// VerificationDTO describes a creator verification request.
type VerificationDTO struct {
	ID            uuid.UUID                `json:"id"`
	UID           string                   `json:"uid"`
	EvidencePaths []string                 `json:"evidence_paths"`
	Notes         *string                  `json:"notes,omitempty"`
	Status        enums.VerificationStatus `json:"status"`
	DecidedBy     *string                  `json:"decided_by,omitempty"`
	DecidedAt     *time.Time               `json:"decided_at,omitempty"`
	CreatedAt     time.Time                `json:"created_at"`
}

func FromModel(u *models.User) UserDTO {
	return UserDTO{
		UID:                u.UID,
		Role:               u.Role,
		EmailVerified:      u.EmailVerified,
		VerificationStatus: u.VerificationStatus,
		CreatedAt:          u.CreatedAt,
	}
}

func profileFromModel(p *models.PublicProfile) ProfileDTO {
	return ProfileDTO{
		UID:              p.UID,
		Handle:           p.Handle,
		DisplayName:      p.DisplayName,
		Bio:              p.Bio,
		IsPrivateAccount: p.IsPrivateAccount,
		FollowerCount:    p.FollowerCount,
		AvatarAssetID:    p.AvatarAssetID,
	}
}

func verificationFromModel(v *models.CreatorVerification) VerificationDTO {
	return VerificationDTO{
		ID:            v.ID,
		UID:           v.UID,
		EvidencePaths: append([]string(nil), v.EvidencePaths...),
		Notes:         v.Notes,
		Status:        v.Status,
		DecidedBy:     v.DecidedBy,
		DecidedAt:     v.DecidedAt,
		CreatedAt:     v.CreatedAt,
	}
}
