package graph

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/atelier-backend/pkg/enums"
)

// BlockedDTO is one entry of a user's block list.
type BlockedDTO struct {
	UID       string    `json:"uid"`
	BlockedAt time.Time `json:"blocked_at"`
}

// FollowRequestDTO is a follow request as shown to its target.
type FollowRequestDTO struct {
	ID        uuid.UUID                 `json:"id"`
	FromUID   string                    `json:"from_uid"`
	ToUID     string                    `json:"to_uid"`
	Status    enums.FollowRequestStatus `json:"status"`
	CreatedAt time.Time                 `json:"created_at"`
}

// FollowerDTO is one follower of a user.
type FollowerDTO struct {
	UID        string    `json:"uid"`
	FollowedAt time.Time `json:"followed_at"`
}
