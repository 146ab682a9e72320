package enums

import "fmt"

// MediaKind says what an uploaded object is attached to. It also picks the
// object prefix and the mime types accepted at presign time.
type MediaKind string

const (
	MediaKindPostImage MediaKind = "post_image"
	MediaKindPostVideo MediaKind = "post_video"
	MediaKindAvatar    MediaKind = "avatar"
	MediaKindEvidence  MediaKind = "evidence"
	MediaKindMessage   MediaKind = "message"
)

func (m MediaKind) String() string {
	return string(m)
}

func (m MediaKind) IsValid() bool {
	switch m {
	case MediaKindPostImage, MediaKindPostVideo, MediaKindAvatar, MediaKindEvidence, MediaKindMessage:
		return true
	}
	return false
}

func ParseMediaKind(value string) (MediaKind, error) {
	kind := MediaKind(value)
	if !kind.IsValid() {
		return "", fmt.Errorf("invalid media kind %q", value)
	}
	return kind, nil
}
