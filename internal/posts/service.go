package posts

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/angelmondragon/atelier-backend/internal/counters"
	"github.com/angelmondragon/atelier-backend/internal/gate"
	"github.com/angelmondragon/atelier-backend/pkg/db"
	"github.com/angelmondragon/atelier-backend/pkg/db/models"
	"github.com/angelmondragon/atelier-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/atelier-backend/pkg/errors"
	"github.com/angelmondragon/atelier-backend/pkg/logger"
	"github.com/angelmondragon/atelier-backend/pkg/outbox"
	"github.com/angelmondragon/atelier-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/atelier-backend/pkg/pagination"
	"github.com/angelmondragon/atelier-backend/pkg/tracing"
	"github.com/angelmondragon/atelier-backend/pkg/visibility"
)

type identityStore interface {
	FindByUID(ctx context.Context, tx *gorm.DB, uid string) (*models.User, error)
}

type interactionGate interface {
	Check(ctx context.Context, tx *gorm.DB, req gate.Request) (gate.Result, error)
	CheckPair(ctx context.Context, tx *gorm.DB, action gate.Action, a, b string) error
	Read(ctx context.Context, tx *gorm.DB, viewer visibility.Viewer, content visibility.Content) (visibility.Decision, error)
}

type counterMaintainer interface {
	Adjust(ctx context.Context, tx *gorm.DB, counter counters.Counter, key any, delta int64) (int64, error)
}

// mediaAttacher binds uploaded assets to a post. It returns how many of the
// ids were attachable (owned by ownerUID, post media, not yet attached).
type mediaAttacher interface {
	AttachToPost(ctx context.Context, tx *gorm.DB, ownerUID string, postID uuid.UUID, mediaIDs []uuid.UUID) (int64, error)
}

// Service covers posts and their comments and likes.
type Service interface {
	CreatePost(ctx context.Context, authorUID string, input CreatePostInput) (*PostDTO, error)
	GetPost(ctx context.Context, viewer visibility.Viewer, postID uuid.UUID) (*PostDTO, error)
	DeletePost(ctx context.Context, actorUID string, postID uuid.UUID) error
	CreateComment(ctx context.Context, authorUID string, input CreateCommentInput) (*CommentDTO, error)
	DeleteComment(ctx context.Context, actorUID string, commentID uuid.UUID) error
	ListComments(ctx context.Context, viewer visibility.Viewer, postID uuid.UUID, params pagination.Params) (pagination.Page[CommentDTO], error)
	ToggleLike(ctx context.Context, uid string, postID uuid.UUID, like bool) (int64, error)

	// TakedownPostTx and TakedownCommentTx soft delete content on a
	// caller-owned transaction. Author deletes and moderation sanctions both
	// use them.
	TakedownPostTx(ctx context.Context, tx *gorm.DB, actor *outbox.Actor, postID uuid.UUID) error
	TakedownCommentTx(ctx context.Context, tx *gorm.DB, actor *outbox.Actor, commentID uuid.UUID) error
}

// ServiceParams groups dependencies for the posts service.
type ServiceParams struct {
	Repo       *Repository
	Identities identityStore
	Gate       interactionGate
	Counters   counterMaintainer
	Media      mediaAttacher
	Tx         db.Txer
	Outbox     outbox.Emitter
	Logger     *logger.Logger
}

type service struct {
	repo       *Repository
	identities identityStore
	gate       interactionGate
	counters   counterMaintainer
	media      mediaAttacher
	tx         db.Txer
	outbox     outbox.Emitter
	logg       *logger.Logger
}

// NewService builds a posts service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Repo == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "posts repo is required")
	case params.Identities == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "identity store is required")
	case params.Gate == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "interaction gate is required")
	case params.Counters == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "counter maintainer is required")
	case params.Media == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "media attacher is required")
	case params.Tx == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner is required")
	case params.Outbox == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox emitter is required")
	}
	return &service{
		repo:       params.Repo,
		identities: params.Identities,
		gate:       params.Gate,
		counters:   params.Counters,
		media:      params.Media,
		tx:         params.Tx,
		outbox:     params.Outbox,
		logg:       params.Logger,
	}, nil
}

func startOp(ctx context.Context, op string) (context.Context, trace.Span) {
	ctx = db.WithOperation(ctx, "posts."+op)
	return tracing.Start(ctx, "posts", op)
}

func (s *service) CreatePost(ctx context.Context, authorUID string, input CreatePostInput) (dto *PostDTO, err error) {
	ctx, span := startOp(ctx, "create_post")
	defer func() { tracing.End(span, err) }()

	vis, parseErr := enums.ParseVisibility(strings.TrimSpace(input.Visibility))
	if parseErr != nil {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidArgument, parseErr.Error())
	}
	body := strings.TrimSpace(input.Body)
	mediaIDs := dedupeIDs(input.MediaIDs)
	if body == "" && len(mediaIDs) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidArgument, "post needs a body or media")
	}

	post := &models.Post{
		AuthorUID:  authorUID,
		Visibility: vis,
		Body:       body,
		Tags:       normalizeTags(input.Tags),
		MediaIDs:   models.StringList{},
	}
	for _, id := range mediaIDs {
		post.MediaIDs = append(post.MediaIDs, id.String())
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.gate.Check(ctx, tx, gate.Request{Action: gate.ActionPost, ActorUID: authorUID}); err != nil {
			return err
		}
		if err := s.repo.CreatePost(ctx, tx, post); err != nil {
			return err
		}
		if len(mediaIDs) == 0 {
			return nil
		}
		attached, err := s.media.AttachToPost(ctx, tx, authorUID, post.ID, mediaIDs)
		if err != nil {
			return err
		}
		if attached != int64(len(mediaIDs)) {
			return pkgerrors.New(pkgerrors.CodeInvalidArgument, "media must be unattached post uploads owned by the author")
		}
		return nil
	})
	if err != nil {
		return nil, mapStoreErr(err, "post")
	}
	return postFromModel(post), nil
}

// GetPost runs the visibility resolver for viewer; anonymous viewers see
// public posts only.
func (s *service) GetPost(ctx context.Context, viewer visibility.Viewer, postID uuid.UUID) (*PostDTO, error) {
	post, err := s.repo.FindPost(ctx, nil, postID)
	if err != nil {
		return nil, mapStoreErr(err, "post")
	}
	decision, err := s.gate.Read(ctx, nil, viewer, ContentOf(post))
	if err != nil {
		return nil, err
	}
	if err := decision.Err(); err != nil {
		return nil, err
	}

	dto := postFromModel(post)
	if !viewer.IsAnonymous() {
		if dto.LikedByViewer, err = s.repo.HasLiked(ctx, nil, post.ID, viewer.UID); err != nil {
			return nil, mapStoreErr(err, "post")
		}
	}
	return dto, nil
}

// DeletePost is open to the author and to admins.
func (s *service) DeletePost(ctx context.Context, actorUID string, postID uuid.UUID) (err error) {
	ctx, span := startOp(ctx, "delete_post")
	defer func() { tracing.End(span, err) }()

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		post, err := s.repo.FindPost(ctx, tx, postID)
		if err != nil {
			return err
		}
		actor, err := s.identities.FindByUID(ctx, tx, actorUID)
		if err != nil {
			return err
		}
		if post.AuthorUID != actor.UID && !actor.Role.IsAdmin() {
			return pkgerrors.New(pkgerrors.CodePermissionDenied, "only the author can delete this post")
		}
		return s.TakedownPostTx(ctx, tx, &outbox.Actor{UID: actor.UID, Role: string(actor.Role)}, postID)
	})
	return mapStoreErr(err, "post")
}

func (s *service) TakedownPostTx(ctx context.Context, tx *gorm.DB, actor *outbox.Actor, postID uuid.UUID) error {
	post, err := s.repo.FindPost(ctx, tx, postID)
	if err != nil {
		return mapStoreErr(err, "post")
	}
	now := time.Now().UTC()
	changed, err := s.repo.SoftDeletePost(ctx, tx, post.ID, now)
	if err != nil || !changed {
		return err
	}
	return s.outbox.Emit(ctx, tx, outbox.Event{
		EventType:     enums.EventPostTakenDown,
		AggregateType: enums.AggregatePost,
		AggregateID:   post.ID.String(),
		Actor:         actor,
		Data:          payloads.TakedownEvent{ContentID: post.ID.String(), AuthorUID: post.AuthorUID, DeletedBy: actorUID(actor), DeletedAt: now},
	})
}

// CreateComment requires the post to be visible to the commenter and neither
// side of the pair to have blocked the other. Replies are one level deep.
func (s *service) CreateComment(ctx context.Context, authorUID string, input CreateCommentInput) (dto *CommentDTO, err error) {
	ctx, span := startOp(ctx, "create_comment")
	defer func() { tracing.End(span, err) }()

	body := strings.TrimSpace(input.Body)
	if body == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidArgument, "comment body is required")
	}
	if input.PostID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidArgument, "postId is required")
	}

	var comment *models.Comment
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		post, err := s.repo.FindPost(ctx, tx, input.PostID)
		if err != nil {
			return mapStoreErr(err, "post")
		}
		content := ContentOf(post)
		if _, err := s.gate.Check(ctx, tx, gate.Request{Action: gate.ActionComment, ActorUID: authorUID, Content: &content}); err != nil {
			return err
		}

		if input.ParentCommentID != nil {
			parent, err := s.repo.FindComment(ctx, tx, *input.ParentCommentID)
			switch {
			case db.IsNotFound(err):
				return pkgerrors.New(pkgerrors.CodeInvalidArgument, "parent comment does not exist")
			case err != nil:
				return err
			}
			if parent.PostID != post.ID || parent.ParentCommentID != nil || parent.DeletedAt != nil {
				return pkgerrors.New(pkgerrors.CodeInvalidArgument, "replies must target a live top-level comment on the same post")
			}
			if err := s.gate.CheckPair(ctx, tx, gate.ActionComment, authorUID, parent.AuthorUID); err != nil {
				return err
			}
		}

		comment = &models.Comment{
			PostID:          post.ID,
			AuthorUID:       authorUID,
			ParentCommentID: input.ParentCommentID,
			Body:            body,
		}
		if err := s.repo.CreateComment(ctx, tx, comment); err != nil {
			return err
		}
		_, err = s.counters.Adjust(ctx, tx, counters.CommentCount, post.ID, 1)
		return err
	})
	if err != nil {
		return nil, mapStoreErr(err, "comment")
	}
	out := commentFromModel(*comment)
	return &out, nil
}

// DeleteComment is open to the comment author, the post author and admins.
func (s *service) DeleteComment(ctx context.Context, actorUID string, commentID uuid.UUID) (err error) {
	ctx, span := startOp(ctx, "delete_comment")
	defer func() { tracing.End(span, err) }()

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		comment, err := s.repo.FindComment(ctx, tx, commentID)
		if err != nil {
			return err
		}
		post, err := s.repo.FindPost(ctx, tx, comment.PostID)
		if err != nil {
			return err
		}
		actor, err := s.identities.FindByUID(ctx, tx, actorUID)
		if err != nil {
			return err
		}
		if actor.UID != comment.AuthorUID && actor.UID != post.AuthorUID && !actor.Role.IsAdmin() {
			return pkgerrors.New(pkgerrors.CodePermissionDenied, "not allowed to delete this comment")
		}
		return s.TakedownCommentTx(ctx, tx, &outbox.Actor{UID: actor.UID, Role: string(actor.Role)}, commentID)
	})
	return mapStoreErr(err, "comment")
}

// TakedownCommentTx decrements the post's comment count only on the call
// that actually stamps deleted_at.
func (s *service) TakedownCommentTx(ctx context.Context, tx *gorm.DB, actor *outbox.Actor, commentID uuid.UUID) error {
	comment, err := s.repo.FindComment(ctx, tx, commentID)
	if err != nil {
		return mapStoreErr(err, "comment")
	}
	now := time.Now().UTC()
	changed, err := s.repo.SoftDeleteComment(ctx, tx, comment.ID, now)
	if err != nil || !changed {
		return err
	}
	if _, err := s.counters.Adjust(ctx, tx, counters.CommentCount, comment.PostID, -1); err != nil {
		return err
	}
	return s.outbox.Emit(ctx, tx, outbox.Event{
		EventType:     enums.EventCommentTakenDown,
		AggregateType: enums.AggregateComment,
		AggregateID:   comment.ID.String(),
		Actor:         actor,
		Data:          payloads.TakedownEvent{ContentID: comment.ID.String(), AuthorUID: comment.AuthorUID, DeletedBy: actorUID(actor), DeletedAt: now},
	})
}

func (s *service) ListComments(ctx context.Context, viewer visibility.Viewer, postID uuid.UUID, params pagination.Params) (pagination.Page[CommentDTO], error) {
	post, err := s.repo.FindPost(ctx, nil, postID)
	if err != nil {
		return pagination.Page[CommentDTO]{}, mapStoreErr(err, "post")
	}
	decision, err := s.gate.Read(ctx, nil, viewer, ContentOf(post))
	if err != nil {
		return pagination.Page[CommentDTO]{}, err
	}
	if err := decision.Err(); err != nil {
		return pagination.Page[CommentDTO]{}, err
	}

	hideFor := viewer.UID
	if viewer.IsAdmin {
		hideFor = ""
	}
	page, err := s.repo.ListComments(ctx, post.ID, hideFor, params)
	if err != nil {
		return pagination.Page[CommentDTO]{}, mapStoreErr(err, "comments")
	}
	items := make([]CommentDTO, 0, len(page.Items))
	for _, c := range page.Items {
		items = append(items, commentFromModel(c))
	}
	return pagination.Page[CommentDTO]{Items: items, NextCursor: page.NextCursor}, nil
}

// ToggleLike sets uid's like on the post to the requested state and returns
// the resulting count. The count only moves when the like row actually
// appears or disappears.
func (s *service) ToggleLike(ctx context.Context, uid string, postID uuid.UUID, like bool) (count int64, err error) {
	ctx, span := startOp(ctx, "toggle_like")
	defer func() { tracing.End(span, err) }()

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		post, err := s.repo.FindPost(ctx, tx, postID)
		if err != nil {
			return mapStoreErr(err, "post")
		}
		content := ContentOf(post)
		if _, err := s.gate.Check(ctx, tx, gate.Request{Action: gate.ActionLike, ActorUID: uid, Content: &content}); err != nil {
			return err
		}

		var changed bool
		delta := int64(1)
		if like {
			changed, err = s.repo.InsertLike(ctx, tx, post.ID, uid)
		} else {
			delta = -1
			changed, err = s.repo.DeleteLike(ctx, tx, post.ID, uid)
		}
		if err != nil {
			return err
		}
		if !changed {
			count, err = counters.Read(ctx, tx, counters.LikeCount, post.ID)
			return err
		}
		count, err = s.counters.Adjust(ctx, tx, counters.LikeCount, post.ID, delta)
		return err
	})
	if err != nil {
		return 0, mapStoreErr(err, "like")
	}
	return count, nil
}

func actorUID(actor *outbox.Actor) string {
	if actor == nil {
		return ""
	}
	return actor.UID
}

func dedupeIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func normalizeTags(tags []string) models.StringList {
	out := models.StringList{}
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(tag), "#"))
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

func mapStoreErr(err error, entity string) error {
	if err == nil {
		return nil
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	if db.IsNotFound(err) {
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, entity+" not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, entity+" store failure")
}
