package models

import (
	"time"

	"github.com/angelmondragon/atelier-backend/pkg/enums"
	"github.com/google/uuid"
)

// Media captures metadata for uploaded objects.
type Media struct {
	Base
	OwnerUID  string          `gorm:"column:owner_uid;type:text;not null;index:idx_media_owner"`
	Kind      enums.MediaKind `gorm:"column:kind;type:text;not null"`
	GCSKey    string          `gorm:"column:gcs_key;type:text;not null;uniqueIndex:idx_media_gcs_key"`
	FileName  string          `gorm:"column:file_name;type:text;not null"`
	MimeType  string          `gorm:"column:mime_type;type:text;not null"`
	SizeBytes int64           `gorm:"column:size_bytes;not null"`
	PostID    *uuid.UUID      `gorm:"column:post_id;type:uuid"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
}
