package media

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/atelier-backend/internal/gate"
	"github.com/angelmondragon/atelier-backend/internal/graph"
	"github.com/angelmondragon/atelier-backend/internal/posts"
	"github.com/angelmondragon/atelier-backend/internal/users"
	"github.com/angelmondragon/atelier-backend/pkg/db"
	"github.com/angelmondragon/atelier-backend/pkg/db/dbtest"
	"github.com/angelmondragon/atelier-backend/pkg/db/models"
	"github.com/angelmondragon/atelier-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/atelier-backend/pkg/errors"
	"github.com/angelmondragon/atelier-backend/pkg/pagination"
	"github.com/angelmondragon/atelier-backend/pkg/visibility"
)

type stubSigner struct {
	url          string
	err          error
	lastObject   string
	lastMimeType string
}

func (s *stubSigner) SignedUploadURL(_ context.Context, key, contentType string, _ time.Duration) (string, error) {
	s.lastObject = key
	s.lastMimeType = contentType
	if s.err != nil {
		return "", s.err
	}
	return s.url + "/put/" + key, nil
}

func (s *stubSigner) SignedDownloadURL(_ context.Context, key string, _ time.Duration) (string, error) {
	s.lastObject = key
	if s.err != nil {
		return "", s.err
	}
	return s.url + "/get/" + key, nil
}

type fixture struct {
	svc    Service
	client *db.Client
	repo   *Repository
	signer *stubSigner
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	client := dbtest.Open(t)
	repo := NewRepository(client.DB())
	g, err := gate.New(gate.Params{Identities: users.NewRepository(client.DB()), Relations: graph.NewRepository(client.DB())})
	require.NoError(t, err)

	signer := &stubSigner{url: "https://signed.example"}
	svc, err := NewService(ServiceParams{
		Repo:        repo,
		Posts:       posts.NewRepository(client.DB()),
		Gate:        g,
		Signer:      signer,
		Tx:          client,
		UploadTTL:   time.Minute,
		DownloadTTL: time.Minute,
	})
	require.NoError(t, err)
	return fixture{svc: svc, client: client, repo: repo, signer: signer}
}

func (f fixture) upload(t *testing.T, owner string, kind enums.MediaKind, mimeType string) uuid.UUID {
	t.Helper()
	out, err := f.svc.PresignUpload(context.Background(), owner, PresignInput{
		Kind:      kind,
		MimeType:  mimeType,
		FileName:  "file name.bin",
		SizeBytes: 1024,
	})
	require.NoError(t, err)
	return out.MediaID
}

func (f fixture) attach(t *testing.T, owner string, mediaID uuid.UUID, vis enums.Visibility) uuid.UUID {
	t.Helper()
	post := models.Post{AuthorUID: owner, Visibility: vis, Body: "work in progress", Tags: models.StringList{}, MediaIDs: models.StringList{mediaID.String()}}
	require.NoError(t, f.client.DB().Create(&post).Error)
	n, err := f.repo.AttachToPost(context.Background(), nil, owner, post.ID, []uuid.UUID{mediaID})
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
	return post.ID
}

func TestPresignUploadSuccess(t *testing.T) {
	f := newFixture(t)
	dbtest.SeedUser(t, f.client, "artist1", enums.RoleArtist, false)

	res, err := f.svc.PresignUpload(context.Background(), "artist1", PresignInput{
		Kind:      enums.MediaKindPostImage,
		MimeType:  "image/PNG; charset=binary",
		FileName:  "my sketch.png",
		SizeBytes: 2048,
	})
	require.NoError(t, err)
	require.Equal(t, "image/png", res.ContentType)
	require.True(t, strings.Contains(res.GCSKey, res.MediaID.String()))
	require.True(t, strings.HasSuffix(res.GCSKey, "/my-sketch.png"))
	require.Equal(t, res.GCSKey, f.signer.lastObject)
	require.Equal(t, "image/png", f.signer.lastMimeType)

	stored, err := f.repo.FindByID(context.Background(), nil, res.MediaID)
	require.NoError(t, err)
	require.Equal(t, "artist1", stored.OwnerUID)
	require.EqualValues(t, 2048, stored.SizeBytes)
}

func TestPresignUploadValidation(t *testing.T) {
	f := newFixture(t)
	dbtest.SeedUser(t, f.client, "artist1", enums.RoleArtist, false)

	cases := []struct {
		name  string
		input PresignInput
	}{
		{"size too large", PresignInput{Kind: enums.MediaKindPostImage, MimeType: "image/png", FileName: "a.png", SizeBytes: uploadPolicies[enums.MediaKindPostImage].maxBytes + 1}},
		{"mime not allowed for kind", PresignInput{Kind: enums.MediaKindAvatar, MimeType: "application/pdf", FileName: "a.pdf", SizeBytes: 10}},
		{"unknown kind", PresignInput{Kind: "poster", MimeType: "image/png", FileName: "a.png", SizeBytes: 10}},
		{"missing file name", PresignInput{Kind: enums.MediaKindPostImage, MimeType: "image/png", SizeBytes: 10}},
		{"garbage mime", PresignInput{Kind: enums.MediaKindPostImage, MimeType: ";;", FileName: "a.png", SizeBytes: 10}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.PresignUpload(context.Background(), "artist1", tc.input)
			require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidArgument), "got %v", err)
		})
	}
}

func TestPresignUploadStanding(t *testing.T) {
	f := newFixture(t)
	dbtest.SeedUser(t, f.client, "newbie", enums.RoleUnassigned, false)

	_, err := f.svc.PresignUpload(context.Background(), "newbie", PresignInput{
		Kind: enums.MediaKindPostImage, MimeType: "image/png", FileName: "a.png", SizeBytes: 10,
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodePermissionDenied))

	_, err = f.svc.PresignUpload(context.Background(), "newbie", PresignInput{
		Kind: enums.MediaKindEvidence, MimeType: "application/pdf", FileName: "portfolio.pdf", SizeBytes: 10,
	})
	require.NoError(t, err)
}

func TestPresignUploadSignerErrorRollsBack(t *testing.T) {
	f := newFixture(t)
	dbtest.SeedUser(t, f.client, "artist1", enums.RoleArtist, false)
	f.signer.err = fmt.Errorf("boom")

	_, err := f.svc.PresignUpload(context.Background(), "artist1", PresignInput{
		Kind: enums.MediaKindPostImage, MimeType: "image/png", FileName: "a.png", SizeBytes: 10,
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnavailable))

	var count int64
	require.NoError(t, f.client.DB().Model(&models.Media{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestFetchEvidenceIsPrivate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dbtest.SeedUser(t, f.client, "owner", enums.RoleUnassigned, false)
	dbtest.SeedUser(t, f.client, "other", enums.RoleCreator, false)
	dbtest.SeedUser(t, f.client, "root", enums.RoleAdmin, false)
	id := f.upload(t, "owner", enums.MediaKindEvidence, "application/pdf")

	_, err := f.svc.FetchMedia(ctx, visibility.Viewer{UID: "other"}, id)
	require.True(t, pkgerrors.HasReason(err, pkgerrors.ReasonNotVisible))

	_, err = f.svc.FetchMedia(ctx, visibility.Viewer{UID: "root", IsAdmin: true}, id)
	require.NoError(t, err)

	out, err := f.svc.FetchMedia(ctx, visibility.Viewer{UID: "owner"}, id)
	require.NoError(t, err)
	require.Contains(t, out.SignedGETURL, "/get/")
}

func TestFetchPostMediaFollowsPostVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dbtest.SeedUser(t, f.client, "artist1", enums.RoleArtist, false)
	dbtest.SeedUser(t, f.client, "fan", enums.RoleCreator, false)
	dbtest.SeedUser(t, f.client, "stranger", enums.RoleCreator, false)

	id := f.upload(t, "artist1", enums.MediaKindPostImage, "image/png")
	f.attach(t, "artist1", id, enums.VisibilityFollowers)
	require.NoError(t, f.client.DB().Create(&models.FollowEdge{FollowerUID: "fan", FolloweeUID: "artist1"}).Error)

	_, err := f.svc.FetchMedia(ctx, visibility.Viewer{UID: "fan"}, id)
	require.NoError(t, err)

	_, err = f.svc.FetchMedia(ctx, visibility.Viewer{UID: "stranger"}, id)
	require.True(t, pkgerrors.HasReason(err, pkgerrors.ReasonNotVisible))

	_, err = f.svc.FetchMedia(ctx, visibility.Anonymous, id)
	require.True(t, pkgerrors.HasReason(err, pkgerrors.ReasonNotVisible))

	require.NoError(t, f.client.DB().Create(&models.BlockEdge{BlockerUID: "artist1", BlockedUID: "fan"}).Error)
	_, err = f.svc.FetchMedia(ctx, visibility.Viewer{UID: "fan"}, id)
	require.True(t, pkgerrors.HasReason(err, pkgerrors.ReasonBlocked))
}

func TestFetchPublicPostMediaAnonymously(t *testing.T) {
	f := newFixture(t)
	dbtest.SeedUser(t, f.client, "artist1", enums.RoleArtist, false)
	id := f.upload(t, "artist1", enums.MediaKindPostVideo, "video/mp4")
	f.attach(t, "artist1", id, enums.VisibilityPublic)

	out, err := f.svc.FetchMedia(context.Background(), visibility.Anonymous, id)
	require.NoError(t, err)
	require.Equal(t, "video/mp4", out.MimeType)

	_, err = f.svc.FetchMedia(context.Background(), visibility.Anonymous, uuid.New())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestFetchUnattachedUploadStaysWithOwner(t *testing.T) {
	f := newFixture(t)
	dbtest.SeedUser(t, f.client, "artist1", enums.RoleArtist, false)
	dbtest.SeedUser(t, f.client, "fan", enums.RoleCreator, false)
	draft := f.upload(t, "artist1", enums.MediaKindPostImage, "image/png")
	avatar := f.upload(t, "artist1", enums.MediaKindAvatar, "image/webp")

	_, err := f.svc.FetchMedia(context.Background(), visibility.Viewer{UID: "fan"}, draft)
	require.True(t, pkgerrors.HasReason(err, pkgerrors.ReasonNotVisible))

	_, err = f.svc.FetchMedia(context.Background(), visibility.Viewer{UID: "fan"}, avatar)
	require.NoError(t, err)
}

func TestListMine(t *testing.T) {
	f := newFixture(t)
	dbtest.SeedUser(t, f.client, "artist1", enums.RoleArtist, false)
	f.upload(t, "artist1", enums.MediaKindPostImage, "image/png")
	f.upload(t, "artist1", enums.MediaKindPostImage, "image/png")
	f.upload(t, "artist1", enums.MediaKindAvatar, "image/png")

	page, err := f.svc.ListMine(context.Background(), "artist1", "post_image", pagination.Params{})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	for _, item := range page.Items {
		require.NotEmpty(t, item.SignedURL)
	}

	_, err = f.svc.ListMine(context.Background(), "artist1", "poster", pagination.Params{})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidArgument))
}
