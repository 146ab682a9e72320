package models

import (
	"time"

	"github.com/angelmondragon/atelier-backend/pkg/enums"
)

// BlockEdge is stored in the blocker's direction only.
type BlockEdge struct {
	BlockerUID string    `gorm:"column:blocker_uid;type:text;primaryKey"`
	BlockedUID string    `gorm:"column:blocked_uid;type:text;primaryKey;index:idx_blocks_blocked"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (BlockEdge) TableName() string { return "blocks" }

// FollowRequest tracks the lifecycle of an ask to follow. At most one
// non-rejected request exists per pair.
type FollowRequest struct {
	Base
	FromUID   string                    `gorm:"column:from_uid;type:text;not null;uniqueIndex:idx_follow_requests_open_pair,where:status <> 'rejected'"`
	ToUID     string                    `gorm:"column:to_uid;type:text;not null;uniqueIndex:idx_follow_requests_open_pair,where:status <> 'rejected';index:idx_follow_requests_to_status"`
	Status    enums.FollowRequestStatus `gorm:"column:status;type:text;not null;index:idx_follow_requests_to_status"`
	CreatedAt time.Time                 `gorm:"column:created_at;autoCreateTime"`
	DecidedAt *time.Time                `gorm:"column:decided_at"`
}

// FollowEdge exists while follower follows followee.
type FollowEdge struct {
	FollowerUID string    `gorm:"column:follower_uid;type:text;primaryKey"`
	FolloweeUID string    `gorm:"column:followee_uid;type:text;primaryKey;index:idx_follow_edges_followee"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}
