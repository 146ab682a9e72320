package posts

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/atelier-backend/pkg/db/models"
	"github.com/angelmondragon/atelier-backend/pkg/enums"
	"github.com/angelmondragon/atelier-backend/pkg/visibility"
)

// CreatePostInput is the payload for a new post.
type CreatePostInput struct {
	Visibility string      `json:"visibility" validate:"required,oneof=public followers private"`
	Body       string      `json:"body" validate:"max=5000"`
	Tags       []string    `json:"tags" validate:"max=20,dive,max=40"`
	MediaIDs   []uuid.UUID `json:"mediaIds" validate:"max=10"`
}

// CreateCommentInput is the createComment payload.
type CreateCommentInput struct {
	PostID          uuid.UUID  `json:"postId" validate:"required"`
	Body            string     `json:"body" validate:"required,notblank,max=2000"`
	ParentCommentID *uuid.UUID `json:"parentCommentId,omitempty"`
}

// PostDTO is the API representation of a post.
type PostDTO struct {
	ID            uuid.UUID        `json:"id"`
	AuthorUID     string           `json:"author_uid"`
	Visibility    enums.Visibility `json:"visibility"`
	Body          string           `json:"body"`
	Tags          []string         `json:"tags"`
	MediaIDs      []string         `json:"media_ids"`
	LikeCount     int64            `json:"like_count"`
	CommentCount  int64            `json:"comment_count"`
	LikedByViewer bool             `json:"liked_by_viewer"`
	CreatedAt     time.Time        `json:"created_at"`
	DeletedAt     *time.Time       `json:"deleted_at,omitempty"`
}

// CommentDTO is the API representation of a comment.
type CommentDTO struct {
	ID              uuid.UUID  `json:"id"`
	PostID          uuid.UUID  `json:"post_id"`
	AuthorUID       string     `json:"author_uid"`
	ParentCommentID *uuid.UUID `json:"parent_comment_id,omitempty"`
	Body            string     `json:"body"`
	CreatedAt       time.Time  `json:"created_at"`
}

func postFromModel(p *models.Post) *PostDTO {
	return &PostDTO{
		ID:           p.ID,
		AuthorUID:    p.AuthorUID,
		Visibility:   p.Visibility,
		Body:         p.Body,
		Tags:         append([]string{}, p.Tags...),
		MediaIDs:     append([]string{}, p.MediaIDs...),
		LikeCount:    p.LikeCount,
		CommentCount: p.CommentCount,
		CreatedAt:    p.CreatedAt,
		DeletedAt:    p.DeletedAt,
	}
}

func commentFromModel(c models.Comment) CommentDTO {
	return CommentDTO{
		ID:              c.ID,
		PostID:          c.PostID,
		AuthorUID:       c.AuthorUID,
		ParentCommentID: c.ParentCommentID,
		Body:            c.Body,
		CreatedAt:       c.CreatedAt,
	}
}

// ContentOf is the slice of a post the visibility resolver reads.
func ContentOf(p *models.Post) visibility.Content {
	return visibility.Content{
		AuthorUID:  p.AuthorUID,
		Visibility: p.Visibility,
		Deleted:    p.IsDeleted(),
	}
}
