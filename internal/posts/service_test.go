package posts

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/atelier-backend/internal/counters"
	"github.com/angelmondragon/atelier-backend/internal/gate"
	"github.com/angelmondragon/atelier-backend/internal/graph"
	"github.com/angelmondragon/atelier-backend/internal/media"
	"github.com/angelmondragon/atelier-backend/internal/users"
	"github.com/angelmondragon/atelier-backend/pkg/db"
	"github.com/angelmondragon/atelier-backend/pkg/db/dbtest"
	"github.com/angelmondragon/atelier-backend/pkg/db/models"
	"github.com/angelmondragon/atelier-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/atelier-backend/pkg/errors"
	"github.com/angelmondragon/atelier-backend/pkg/outbox"
	"github.com/angelmondragon/atelier-backend/pkg/pagination"
	"github.com/angelmondragon/atelier-backend/pkg/visibility"
)

type fixture struct {
	svc    Service
	graph  graph.Service
	client *db.Client
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	client := dbtest.Open(t)
	userRepo := users.NewRepository(client.DB())
	graphRepo := graph.NewRepository(client.DB())
	g, err := gate.New(gate.Params{Identities: userRepo, Relations: graphRepo})
	require.NoError(t, err)
	maintainer := counters.New(nil, nil)
	emitter := outbox.NewWriter(outbox.NewRepository(client.DB()), nil)

	graphSvc, err := graph.NewService(graph.ServiceParams{
		Repo:       graphRepo,
		Identities: userRepo,
		Gate:       g,
		Counters:   maintainer,
		Tx:         client,
		Outbox:     emitter,
	})
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{
		Repo:       NewRepository(client.DB()),
		Identities: userRepo,
		Gate:       g,
		Counters:   maintainer,
		Media:      media.NewRepository(client.DB()),
		Tx:         client,
		Outbox:     emitter,
	})
	require.NoError(t, err)
	return fixture{svc: svc, graph: graphSvc, client: client}
}

func (f fixture) post(t *testing.T, author string, vis enums.Visibility) uuid.UUID {
	t.Helper()
	post, err := f.svc.CreatePost(context.Background(), author, CreatePostInput{Visibility: string(vis), Body: "new piece"})
	require.NoError(t, err)
	return post.ID
}

func (f fixture) reload(t *testing.T, id uuid.UUID) models.Post {
	t.Helper()
	var post models.Post
	require.NoError(t, f.client.DB().First(&post, "id = ?", id).Error)
	return post
}

func TestLikeThenBlockScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dbtest.SeedUser(t, f.client, "A", enums.RoleArtist, false)
	dbtest.SeedUser(t, f.client, "B", enums.RoleCreator, false)

	postID := f.post(t, "A", enums.VisibilityPublic)

	_, err := f.svc.GetPost(ctx, visibility.Viewer{UID: "B"}, postID)
	require.NoError(t, err)
	count, err := f.svc.ToggleLike(ctx, "B", postID, true)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)

	require.NoError(t, f.graph.Block(ctx, "A", "B"))

	_, err = f.svc.ToggleLike(ctx, "B", postID, true)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodePermissionDenied))
	require.Contains(t, err.Error(), "BLOCKED")
	_, err = f.svc.ToggleLike(ctx, "B", postID, false)
	require.True(t, pkgerrors.HasReason(err, pkgerrors.ReasonBlocked))

	require.EqualValues(t, 1, f.reload(t, postID).LikeCount)
}

func TestToggleLikeIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dbtest.SeedUser(t, f.client, "A", enums.RoleArtist, false)
	dbtest.SeedUser(t, f.client, "B", enums.RoleCreator, false)
	postID := f.post(t, "A", enums.VisibilityPublic)

	for i := 0; i < 2; i++ {
		count, err := f.svc.ToggleLike(ctx, "B", postID, true)
		require.NoError(t, err)
		require.EqualValues(t, 1, count)
	}
	post, err := f.svc.GetPost(ctx, visibility.Viewer{UID: "B"}, postID)
	require.NoError(t, err)
	require.True(t, post.LikedByViewer)
	post, err = f.svc.GetPost(ctx, visibility.Anonymous, postID)
	require.NoError(t, err)
	require.False(t, post.LikedByViewer)

	count, err := f.svc.ToggleLike(ctx, "B", postID, false)
	require.NoError(t, err)
	require.EqualValues(t, 0, count)
	post, err = f.svc.GetPost(ctx, visibility.Viewer{UID: "B"}, postID)
	require.NoError(t, err)
	require.False(t, post.LikedByViewer)
	count, err = f.svc.ToggleLike(ctx, "B", postID, false)
	require.NoError(t, err)
	require.EqualValues(t, 0, count)

	_, err = f.svc.ToggleLike(ctx, "B", uuid.New(), true)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestGetPostVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dbtest.SeedUser(t, f.client, "author", enums.RoleArtist, false)
	dbtest.SeedUser(t, f.client, "fan", enums.RoleCreator, false)
	dbtest.SeedUser(t, f.client, "stranger", enums.RoleCreator, false)
	_, err := f.graph.RequestFollow(ctx, "fan", "author")
	require.NoError(t, err)

	followersOnly := f.post(t, "author", enums.VisibilityFollowers)
	private := f.post(t, "author", enums.VisibilityPrivate)
	public := f.post(t, "author", enums.VisibilityPublic)

	cases := []struct {
		name   string
		viewer visibility.Viewer
		postID uuid.UUID
		reason string
	}{
		{"follower sees followers post", visibility.Viewer{UID: "fan"}, followersOnly, ""},
		{"author sees followers post", visibility.Viewer{UID: "author"}, followersOnly, ""},
		{"stranger misses followers post", visibility.Viewer{UID: "stranger"}, followersOnly, pkgerrors.ReasonNotVisible},
		{"follower misses private post", visibility.Viewer{UID: "fan"}, private, pkgerrors.ReasonNotVisible},
		{"author sees private post", visibility.Viewer{UID: "author"}, private, ""},
		{"admin sees private post", visibility.Viewer{UID: "ops", IsAdmin: true}, private, ""},
		{"anonymous sees public post", visibility.Anonymous, public, ""},
		{"anonymous misses followers post", visibility.Anonymous, followersOnly, pkgerrors.ReasonNotVisible},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.GetPost(ctx, tc.viewer, tc.postID)
			if tc.reason == "" {
				require.NoError(t, err)
				return
			}
			require.True(t, pkgerrors.HasReason(err, tc.reason), "got %v", err)
		})
	}
}

func TestCreateCommentCountsAndGates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dbtest.SeedUser(t, f.client, "author", enums.RoleArtist, false)
	dbtest.SeedUser(t, f.client, "fan", enums.RoleCreator, false)
	dbtest.SeedUser(t, f.client, "troll", enums.RoleCreator, false)
	postID := f.post(t, "author", enums.VisibilityPublic)
	hidden := f.post(t, "author", enums.VisibilityFollowers)

	comment, err := f.svc.CreateComment(ctx, "fan", CreateCommentInput{PostID: postID, Body: " lovely linework "})
	require.NoError(t, err)
	require.Equal(t, "lovely linework", comment.Body)
	require.EqualValues(t, 1, f.reload(t, postID).CommentCount)

	require.NoError(t, f.graph.Block(ctx, "troll", "author"))
	_, err = f.svc.CreateComment(ctx, "troll", CreateCommentInput{PostID: postID, Body: "hi"})
	require.True(t, pkgerrors.HasReason(err, pkgerrors.ReasonBlocked))

	_, err = f.svc.CreateComment(ctx, "fan", CreateCommentInput{PostID: hidden, Body: "hi"})
	require.True(t, pkgerrors.HasReason(err, pkgerrors.ReasonNotVisible))

	_, err = f.svc.CreateComment(ctx, "fan", CreateCommentInput{PostID: uuid.New(), Body: "hi"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = f.svc.CreateComment(ctx, "fan", CreateCommentInput{PostID: postID, Body: "   "})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidArgument))

	require.EqualValues(t, 1, f.reload(t, postID).CommentCount)
}

func TestRepliesAreOneLevelDeep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dbtest.SeedUser(t, f.client, "author", enums.RoleArtist, false)
	dbtest.SeedUser(t, f.client, "fan", enums.RoleCreator, false)
	postID := f.post(t, "author", enums.VisibilityPublic)
	otherPost := f.post(t, "author", enums.VisibilityPublic)

	top, err := f.svc.CreateComment(ctx, "fan", CreateCommentInput{PostID: postID, Body: "question"})
	require.NoError(t, err)
	reply, err := f.svc.CreateComment(ctx, "author", CreateCommentInput{PostID: postID, Body: "answer", ParentCommentID: &top.ID})
	require.NoError(t, err)
	require.Equal(t, top.ID, *reply.ParentCommentID)

	_, err = f.svc.CreateComment(ctx, "fan", CreateCommentInput{PostID: postID, Body: "deeper", ParentCommentID: &reply.ID})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidArgument))

	_, err = f.svc.CreateComment(ctx, "fan", CreateCommentInput{PostID: otherPost, Body: "wrong post", ParentCommentID: &top.ID})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidArgument))

	missing := uuid.New()
	_, err = f.svc.CreateComment(ctx, "fan", CreateCommentInput{PostID: postID, Body: "ghost", ParentCommentID: &missing})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidArgument))

	require.EqualValues(t, 2, f.reload(t, postID).CommentCount)
}

func TestDeleteCommentDecrementsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dbtest.SeedUser(t, f.client, "author", enums.RoleArtist, false)
	dbtest.SeedUser(t, f.client, "fan", enums.RoleCreator, false)
	dbtest.SeedUser(t, f.client, "stranger", enums.RoleCreator, false)
	postID := f.post(t, "author", enums.VisibilityPublic)
	comment, err := f.svc.CreateComment(ctx, "fan", CreateCommentInput{PostID: postID, Body: "first"})
	require.NoError(t, err)

	err = f.svc.DeleteComment(ctx, "stranger", comment.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodePermissionDenied))

	require.NoError(t, f.svc.DeleteComment(ctx, "author", comment.ID))
	require.NoError(t, f.svc.DeleteComment(ctx, "fan", comment.ID))
	require.EqualValues(t, 0, f.reload(t, postID).CommentCount)

	var events int64
	require.NoError(t, f.client.DB().Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventCommentTakenDown).Count(&events).Error)
	require.EqualValues(t, 1, events)

	err = f.svc.DeleteComment(ctx, "author", uuid.New())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestDeletePostHidesIt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dbtest.SeedUser(t, f.client, "author", enums.RoleArtist, false)
	dbtest.SeedUser(t, f.client, "fan", enums.RoleCreator, false)
	dbtest.SeedUser(t, f.client, "ops", enums.RoleAdmin, false)
	postID := f.post(t, "author", enums.VisibilityPublic)

	err := f.svc.DeletePost(ctx, "fan", postID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodePermissionDenied))

	require.NoError(t, f.svc.DeletePost(ctx, "ops", postID))
	require.NotNil(t, f.reload(t, postID).DeletedAt)

	_, err = f.svc.GetPost(ctx, visibility.Viewer{UID: "author"}, postID)
	require.True(t, pkgerrors.HasReason(err, pkgerrors.ReasonNotVisible))
	_, err = f.svc.GetPost(ctx, visibility.Viewer{UID: "ops", IsAdmin: true}, postID)
	require.NoError(t, err)

	_, err = f.svc.CreateComment(ctx, "fan", CreateCommentInput{PostID: postID, Body: "too late"})
	require.True(t, pkgerrors.HasReason(err, pkgerrors.ReasonNotVisible))
	_, err = f.svc.ToggleLike(ctx, "fan", postID, true)
	require.True(t, pkgerrors.HasReason(err, pkgerrors.ReasonNotVisible))
}

func TestCreatePostValidatesMedia(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dbtest.SeedUser(t, f.client, "author", enums.RoleArtist, false)
	dbtest.SeedUser(t, f.client, "other", enums.RoleArtist, false)
	dbtest.SeedUser(t, f.client, "newbie", enums.RoleUnassigned, false)

	owned := models.Media{OwnerUID: "author", Kind: enums.MediaKindPostImage, GCSKey: "k1", FileName: "a.png", MimeType: "image/png", SizeBytes: 1}
	foreign := models.Media{OwnerUID: "other", Kind: enums.MediaKindPostImage, GCSKey: "k2", FileName: "b.png", MimeType: "image/png", SizeBytes: 1}
	require.NoError(t, f.client.DB().Create(&owned).Error)
	require.NoError(t, f.client.DB().Create(&foreign).Error)

	_, err := f.svc.CreatePost(ctx, "author", CreatePostInput{Visibility: "public", MediaIDs: []uuid.UUID{owned.ID, foreign.ID}})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidArgument))
	var posts int64
	require.NoError(t, f.client.DB().Model(&models.Post{}).Count(&posts).Error)
	require.Zero(t, posts)

	post, err := f.svc.CreatePost(ctx, "author", CreatePostInput{Visibility: "public", Tags: []string{"#Ink", "ink", " sketch "}, MediaIDs: []uuid.UUID{owned.ID}})
	require.NoError(t, err)
	require.Equal(t, []string{"ink", "sketch"}, post.Tags)
	require.Equal(t, []string{owned.ID.String()}, post.MediaIDs)

	_, err = f.svc.CreatePost(ctx, "author", CreatePostInput{Visibility: "everyone", Body: "x"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidArgument))
	_, err = f.svc.CreatePost(ctx, "author", CreatePostInput{Visibility: "public"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidArgument))
	_, err = f.svc.CreatePost(ctx, "newbie", CreatePostInput{Visibility: "public", Body: "hello"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodePermissionDenied))
}

func TestListCommentsHidesBlockedAuthors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dbtest.SeedUser(t, f.client, "author", enums.RoleArtist, false)
	dbtest.SeedUser(t, f.client, "fan", enums.RoleCreator, false)
	dbtest.SeedUser(t, f.client, "troll", enums.RoleCreator, false)
	postID := f.post(t, "author", enums.VisibilityPublic)

	_, err := f.svc.CreateComment(ctx, "fan", CreateCommentInput{PostID: postID, Body: "nice"})
	require.NoError(t, err)
	_, err = f.svc.CreateComment(ctx, "troll", CreateCommentInput{PostID: postID, Body: "meh"})
	require.NoError(t, err)
	require.NoError(t, f.graph.Block(ctx, "fan", "troll"))

	page, err := f.svc.ListComments(ctx, visibility.Viewer{UID: "fan"}, postID, pagination.Params{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	require.Equal(t, "fan", page.Items[0].AuthorUID)

	page, err = f.svc.ListComments(ctx, visibility.Anonymous, postID, pagination.Params{})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
}
