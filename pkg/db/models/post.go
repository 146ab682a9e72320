package models

import (
	"time"

	"github.com/angelmondragon/atelier-backend/pkg/enums"
	"github.com/google/uuid"
)

// Post is author-owned content; deleted posts keep their row.
type Post struct {
	Base
	AuthorUID    string           `gorm:"column:author_uid;type:text;not null;index:idx_posts_author"`
	Visibility   enums.Visibility `gorm:"column:visibility;type:text;not null"`
	Body         string           `gorm:"column:body;type:text;not null;default:''"`
	Tags         StringList       `gorm:"column:tags;type:jsonb;not null"`
	MediaIDs     StringList       `gorm:"column:media_ids;type:jsonb;not null"`
	LikeCount    int64            `gorm:"column:like_count;not null;default:0"`
	CommentCount int64            `gorm:"column:comment_count;not null;default:0"`
	CreatedAt    time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time        `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt    *time.Time       `gorm:"column:deleted_at"`
}

// IsDeleted reports whether the post has been taken down.
func (p Post) IsDeleted() bool {
	return p.DeletedAt != nil
}

// Comment supports a single reply level through ParentCommentID.
type Comment struct {
	Base
	PostID          uuid.UUID  `gorm:"column:post_id;type:uuid;not null;index:idx_comments_post"`
	AuthorUID       string     `gorm:"column:author_uid;type:text;not null"`
	ParentCommentID *uuid.UUID `gorm:"column:parent_comment_id;type:uuid"`
	Body            string     `gorm:"column:body;type:text;not null"`
	CreatedAt       time.Time  `gorm:"column:created_at;autoCreateTime"`
	DeletedAt       *time.Time `gorm:"column:deleted_at"`
}

// Like is keyed by (post, user); its existence is the source of truth for likeCount.
type Like struct {
	PostID    uuid.UUID `gorm:"column:post_id;type:uuid;primaryKey"`
	UID       string    `gorm:"column:uid;type:text;primaryKey"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}
