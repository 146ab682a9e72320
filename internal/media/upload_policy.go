package media

import (
	"fmt"
	"mime"
	"strings"

	"github.com/angelmondragon/atelier-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/atelier-backend/pkg/errors"
)

const mb = 1 << 20

var (
	imageTypes = []string{"image/gif", "image/jpeg", "image/png", "image/webp"}
	videoTypes = []string{"video/mp4", "video/webm"}
	pdfTypes   = []string{"application/pdf"}
)

// uploadPolicy bounds what a presigned upload of one kind may carry.
type uploadPolicy struct {
	accepts  string
	types    []string
	maxBytes int64
}

var uploadPolicies = map[enums.MediaKind]uploadPolicy{
	enums.MediaKindPostImage: {accepts: "images", types: imageTypes, maxBytes: 20 * mb},
	enums.MediaKindPostVideo: {accepts: "videos", types: videoTypes, maxBytes: 200 * mb},
	enums.MediaKindAvatar:    {accepts: "images", types: imageTypes, maxBytes: 5 * mb},
	enums.MediaKindEvidence:  {accepts: "PDFs or images", types: concat(pdfTypes, imageTypes), maxBytes: 20 * mb},
	enums.MediaKindMessage:   {accepts: "images, videos or PDFs", types: concat(imageTypes, videoTypes, pdfTypes), maxBytes: 50 * mb},
}

func concat(groups ...[]string) []string {
	var out []string
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

// check normalizes the declared mime type and returns it when the upload fits.
func (p uploadPolicy) check(kind enums.MediaKind, declaredMime string, size int64) (string, error) {
	if size <= 0 {
		return "", pkgerrors.New(pkgerrors.CodeInvalidArgument, "size_bytes must be positive")
	}
	if size > p.maxBytes {
		return "", pkgerrors.New(pkgerrors.CodeInvalidArgument, fmt.Sprintf("%s uploads are limited to %d bytes", kind, p.maxBytes))
	}
	mediaType, _, err := mime.ParseMediaType(strings.TrimSpace(declaredMime))
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInvalidArgument, err, "mime_type is invalid")
	}
	mediaType = strings.ToLower(mediaType)
	for _, allowed := range p.types {
		if allowed == mediaType {
			return mediaType, nil
		}
	}
	return "", pkgerrors.New(pkgerrors.CodeInvalidArgument, fmt.Sprintf("%s uploads accept %s", kind, p.accepts))
}
