package controllers

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/atelier-backend/api/responses"
	"github.com/angelmondragon/atelier-backend/api/validators"
	"github.com/angelmondragon/atelier-backend/internal/media"
	"github.com/angelmondragon/atelier-backend/pkg/enums"
	"github.com/angelmondragon/atelier-backend/pkg/logger"
)

type mediaPresignRequest struct {
	MediaKind string `json:"mediaKind" validate:"required,mediakind"`
	MimeType  string `json:"mimeType" validate:"required,max=127"`
	FileName  string `json:"fileName" validate:"required,notblank,max=255"`
	SizeBytes int64  `json:"sizeBytes" validate:"required,gt=0"`
}

// MediaPresign reserves a media row for the caller and returns a signed PUT
// URL; size and type limits per kind are enforced by the service.
func MediaPresign(svc media.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, err := callerUID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req mediaPresignRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		resp, err := svc.PresignUpload(r.Context(), uid, media.PresignInput{
			Kind:      enums.MediaKind(strings.TrimSpace(req.MediaKind)),
			MimeType:  req.MimeType,
			FileName:  req.FileName,
			SizeBytes: req.SizeBytes,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, resp)
	}
}

// MediaFetch returns a signed GET URL when the viewer may see the asset.
// Evidence stays private to its owner and admins.
func MediaFetch(svc media.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathUUID(r, "mediaId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		resp, err := svc.FetchMedia(r.Context(), viewerFrom(r), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, resp)
	}
}

func MediaList(svc media.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, err := callerUID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		kind := strings.TrimSpace(r.URL.Query().Get("kind"))
		page, err := svc.ListMine(r.Context(), uid, kind, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}
