package media

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/atelier-backend/internal/gate"
	"github.com/angelmondragon/atelier-backend/pkg/db"
	"github.com/angelmondragon/atelier-backend/pkg/db/models"
	"github.com/angelmondragon/atelier-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/atelier-backend/pkg/errors"
	"github.com/angelmondragon/atelier-backend/pkg/pagination"
	"github.com/angelmondragon/atelier-backend/pkg/tracing"
	"github.com/angelmondragon/atelier-backend/pkg/visibility"
)

type mediaRepository interface {
	Create(ctx context.Context, tx *gorm.DB, media *models.Media) error
	FindByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Media, error)
	ListByOwner(ctx context.Context, ownerUID string, kind *enums.MediaKind, params pagination.Params) (pagination.Page[models.Media], error)
}

type postLookup interface {
	FindPost(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Post, error)
}

type interactionGate interface {
	Check(ctx context.Context, tx *gorm.DB, req gate.Request) (gate.Result, error)
	Read(ctx context.Context, tx *gorm.DB, viewer visibility.Viewer, content visibility.Content) (visibility.Decision, error)
}

// Signer issues V4 signed URLs for bucket objects.
type Signer interface {
	SignedUploadURL(ctx context.Context, key, contentType string, ttl time.Duration) (string, error)
	SignedDownloadURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// Service exposes media upload and access semantics.
type Service interface {
	PresignUpload(ctx context.Context, ownerUID string, input PresignInput) (*PresignOutput, error)
	FetchMedia(ctx context.Context, viewer visibility.Viewer, mediaID uuid.UUID) (*FetchOutput, error)
	ListMine(ctx context.Context, ownerUID string, kind string, params pagination.Params) (pagination.Page[ListItem], error)
}

// ServiceParams groups dependencies for the media service.
type ServiceParams struct {
	Repo        mediaRepository
	Posts       postLookup
	Gate        interactionGate
	Signer      Signer
	Tx          db.Txer
	UploadTTL   time.Duration
	DownloadTTL time.Duration
}

type service struct {
	repo        mediaRepository
	posts       postLookup
	gate        interactionGate
	signer      Signer
	tx          db.Txer
	uploadTTL   time.Duration
	downloadTTL time.Duration
}

// NewService constructs a media service backed by the provided repositories and GCS signer.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("media repository required")
	}
	if params.Posts == nil {
		return nil, fmt.Errorf("post lookup required")
	}
	if params.Gate == nil {
		return nil, fmt.Errorf("interaction gate required")
	}
	if params.Signer == nil {
		return nil, fmt.Errorf("gcs signer required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.UploadTTL <= 0 || params.DownloadTTL <= 0 {
		return nil, fmt.Errorf("signed url ttls must be positive")
	}
	return &service{
		repo:        params.Repo,
		posts:       params.Posts,
		gate:        params.Gate,
		signer:      params.Signer,
		tx:          params.Tx,
		uploadTTL:   params.UploadTTL,
		downloadTTL: params.DownloadTTL,
	}, nil
}

// PresignInput models the payload required to request an upload URL.
type PresignInput struct {
	Kind      enums.MediaKind
	MimeType  string
	FileName  string
	SizeBytes int64
}

// PresignOutput contains the data returned to the client after creating a media record.
type PresignOutput struct {
	MediaID      uuid.UUID `json:"media_id"`
	GCSKey       string    `json:"gcs_key"`
	SignedPUTURL string    `json:"signed_put_url"`
	ContentType  string    `json:"content_type"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// FetchOutput is a short lived read URL for one asset.
type FetchOutput struct {
	MediaID      uuid.UUID       `json:"media_id"`
	Kind         enums.MediaKind `json:"kind"`
	MimeType     string          `json:"mime_type"`
	SignedGETURL string          `json:"signed_get_url"`
	ExpiresAt    time.Time       `json:"expires_at"`
}

// ListItem represents returned media metadata.
type ListItem struct {
	ID        uuid.UUID       `json:"id"`
	Kind      enums.MediaKind `json:"kind"`
	FileName  string          `json:"file_name"`
	MimeType  string          `json:"mime_type"`
	SizeBytes int64           `json:"size_bytes"`
	PostID    *uuid.UUID      `json:"post_id,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	SignedURL string          `json:"signed_url,omitempty"`
}

// PresignUpload records the asset and returns a PUT URL for it. Evidence
// uploads skip the standing check so unassigned users can apply for
// verification.
func (s *service) PresignUpload(ctx context.Context, ownerUID string, input PresignInput) (out *PresignOutput, err error) {
	ctx, span := tracing.Start(db.WithOperation(ctx, "media.presign_upload"), "media", "presign_upload")
	defer func() { tracing.End(span, err) }()

	policy, ok := uploadPolicies[input.Kind]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidArgument, "invalid media kind")
	}
	fileName := strings.TrimSpace(input.FileName)
	if fileName == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidArgument, "file_name is required")
	}
	mimeType, err := policy.check(input.Kind, input.MimeType, input.SizeBytes)
	if err != nil {
		return nil, err
	}

	action := gate.ActionMediaUpload
	if input.Kind == enums.MediaKindEvidence {
		action = gate.ActionUploadEvidence
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.gate.Check(ctx, tx, gate.Request{Action: action, ActorUID: ownerUID}); err != nil {
			return err
		}

		mediaID := uuid.New()
		row := &models.Media{
			Base:      models.Base{ID: mediaID},
			OwnerUID:  ownerUID,
			Kind:      input.Kind,
			GCSKey:    buildGCSKey(input.Kind, ownerUID, mediaID, fileName),
			FileName:  fileName,
			MimeType:  mimeType,
			SizeBytes: input.SizeBytes,
		}
		if err := s.repo.Create(ctx, tx, row); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist media row")
		}

		// signing failure rolls the row back
		signedURL, err := s.signer.SignedUploadURL(ctx, row.GCSKey, mimeType, s.uploadTTL)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeUnavailable, err, "sign upload url")
		}
		out = &PresignOutput{
			MediaID:      mediaID,
			GCSKey:       row.GCSKey,
			SignedPUTURL: signedURL,
			ContentType:  mimeType,
			ExpiresAt:    time.Now().Add(s.uploadTTL),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// FetchMedia applies the same trust rules as the content the asset belongs
// to: evidence is private to its owner and admins, post media follows the
// post's visibility, and any asset is out of reach across a block.
func (s *service) FetchMedia(ctx context.Context, viewer visibility.Viewer, mediaID uuid.UUID) (out *FetchOutput, err error) {
	ctx, span := tracing.Start(db.WithOperation(ctx, "media.fetch"), "media", "fetch")
	defer func() { tracing.End(span, err) }()

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		row, err := s.repo.FindByID(ctx, tx, mediaID)
		if err != nil {
			if db.IsNotFound(err) {
				return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "media not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load media")
		}
		if err := s.authorizeFetch(ctx, tx, viewer, row); err != nil {
			return err
		}

		signedURL, err := s.signer.SignedDownloadURL(ctx, row.GCSKey, s.downloadTTL)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeUnavailable, err, "sign download url")
		}
		out = &FetchOutput{
			MediaID:      row.ID,
			Kind:         row.Kind,
			MimeType:     row.MimeType,
			SignedGETURL: signedURL,
			ExpiresAt:    time.Now().Add(s.downloadTTL),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *service) authorizeFetch(ctx context.Context, tx *gorm.DB, viewer visibility.Viewer, row *models.Media) error {
	if !viewer.IsAnonymous() && viewer.UID == row.OwnerUID {
		return nil
	}
	if row.Kind == enums.MediaKindEvidence {
		if viewer.IsAdmin && !viewer.IsAnonymous() {
			return nil
		}
		return pkgerrors.NotVisible("evidence is private")
	}

	var content *visibility.Content
	if row.PostID != nil {
		post, err := s.posts.FindPost(ctx, tx, *row.PostID)
		if err != nil {
			if db.IsNotFound(err) {
				return pkgerrors.NotVisible("")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load post")
		}
		content = &visibility.Content{AuthorUID: post.AuthorUID, Visibility: post.Visibility, Deleted: post.IsDeleted()}
	} else if row.Kind != enums.MediaKindAvatar {
		// unattached uploads stay with their owner
		return pkgerrors.NotVisible("")
	}

	if viewer.IsAnonymous() || viewer.IsAdmin {
		if content == nil {
			content = &visibility.Content{AuthorUID: row.OwnerUID, Visibility: enums.VisibilityPublic}
		}
		decision, err := s.gate.Read(ctx, tx, viewer, *content)
		if err != nil {
			return err
		}
		return decision.Err()
	}

	_, err := s.gate.Check(ctx, tx, gate.Request{
		Action:         gate.ActionMediaFetch,
		ActorUID:       viewer.UID,
		CounterpartUID: row.OwnerUID,
		Content:        content,
	})
	return err
}

// ListMine pages through the caller's own uploads with short lived read URLs.
func (s *service) ListMine(ctx context.Context, ownerUID string, kind string, params pagination.Params) (pagination.Page[ListItem], error) {
	var kindFilter *enums.MediaKind
	if kind = strings.TrimSpace(kind); kind != "" {
		parsed, err := enums.ParseMediaKind(kind)
		if err != nil {
			return pagination.Page[ListItem]{}, pkgerrors.New(pkgerrors.CodeInvalidArgument, err.Error())
		}
		kindFilter = &parsed
	}

	page, err := s.repo.ListByOwner(ctx, ownerUID, kindFilter, params)
	if err != nil {
		if pkgerrors.As(err) != nil {
			return pagination.Page[ListItem]{}, err
		}
		return pagination.Page[ListItem]{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list media")
	}

	items := make([]ListItem, len(page.Items))
	for i, m := range page.Items {
		url, err := s.signer.SignedDownloadURL(ctx, m.GCSKey, s.downloadTTL)
		if err != nil {
			return pagination.Page[ListItem]{}, pkgerrors.Wrap(pkgerrors.CodeUnavailable, err, "generate signed read url")
		}
		items[i] = toListItem(m)
		items[i].SignedURL = url
	}
	return pagination.Page[ListItem]{Items: items, NextCursor: page.NextCursor}, nil
}

func toListItem(m models.Media) ListItem {
	return ListItem{
		ID:        m.ID,
		Kind:      m.Kind,
		FileName:  m.FileName,
		MimeType:  m.MimeType,
		SizeBytes: m.SizeBytes,
		PostID:    m.PostID,
		CreatedAt: m.CreatedAt,
	}
}

func buildGCSKey(kind enums.MediaKind, ownerUID string, id uuid.UUID, fileName string) string {
	cleanName := sanitizeFileName(fileName)
	if cleanName == "" {
		cleanName = id.String()
	}
	return fmt.Sprintf("media/%s/%s/%s/%s", kind, sanitizeFileName(ownerUID), id.String(), cleanName)
}

func sanitizeFileName(name string) string {
	if name == "" {
		return ""
	}
	clean := path.Base(strings.TrimSpace(name))
	if clean == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(clean))
	for _, r := range clean {
		switch {
		case r == '/' || r == '\\' || unicode.IsControl(r):
			continue
		case unicode.IsSpace(r):
			b.WriteRune('-')
		default:
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), "-_.")
}
