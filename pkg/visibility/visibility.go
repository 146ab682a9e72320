package visibility

import (
	"strings"

	"github.com/angelmondragon/atelier-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/atelier-backend/pkg/errors"
)

// Viewer is the identity a visibility decision is made for. An empty UID is
// the anonymous viewer.
type Viewer struct {
	UID     string
	IsAdmin bool
}

// Anonymous is the viewer used for unauthenticated reads.
var Anonymous = Viewer{}

func (v Viewer) IsAnonymous() bool {
	return strings.TrimSpace(v.UID) == ""
}

// Content is the slice of a post (or anything post-like) the resolver needs.
type Content struct {
	AuthorUID  string
	Visibility enums.Visibility
	Deleted    bool
}

// Relationship carries the graph facts between viewer and author. Callers load
// them inside the same transaction as the action being gated.
type Relationship struct {
	Blocked       bool
	FollowsAuthor bool
}

// Decision is the resolver output; Reason is empty when Visible.
type Decision struct {
	Visible bool
	Reason  string
}

var allowed = Decision{Visible: true}

func deny(reason string) Decision {
	return Decision{Reason: reason}
}

// Resolve decides whether viewer may read content.
func Resolve(viewer Viewer, content Content, rel Relationship) Decision {
	if viewer.IsAdmin && !viewer.IsAnonymous() {
		return allowed
	}
	if content.Deleted {
		return deny(pkgerrors.ReasonNotVisible)
	}
	if viewer.IsAnonymous() {
		if content.Visibility == enums.VisibilityPublic {
			return allowed
		}
		return deny(pkgerrors.ReasonNotVisible)
	}
	if viewer.UID == content.AuthorUID {
		return allowed
	}
	if rel.Blocked {
		return deny(pkgerrors.ReasonBlocked)
	}

	switch content.Visibility {
	case enums.VisibilityPublic:
		return allowed
	case enums.VisibilityFollowers:
		if rel.FollowsAuthor {
			return allowed
		}
	}
	return deny(pkgerrors.ReasonNotVisible)
}

// Err converts a denial into the permission-denied error carrying its reason token.
func (d Decision) Err() error {
	if d.Visible {
		return nil
	}
	if d.Reason == pkgerrors.ReasonBlocked {
		return pkgerrors.Blocked("")
	}
	return pkgerrors.NotVisible("")
}

// EnsureVisible is Resolve followed by Err.
func EnsureVisible(viewer Viewer, content Content, rel Relationship) error {
	return Resolve(viewer, content, rel).Err()
}
