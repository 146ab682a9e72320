package visibility

import (
	"testing"

	"github.com/angelmondragon/atelier-backend/pkg/enums"
	"github.com/angelmondragon/atelier-backend/pkg/errors"
)

const author = "uid-author"

func post(v enums.Visibility) Content {
	return Content{AuthorUID: author, Visibility: v}
}

func TestResolve(t *testing.T) {
	viewer := Viewer{UID: "uid-viewer"}
	admin := Viewer{UID: "uid-admin", IsAdmin: true}
	self := Viewer{UID: author}
	follower := Relationship{FollowsAuthor: true}
	blocked := Relationship{Blocked: true, FollowsAuthor: true}

	deleted := post(enums.VisibilityPublic)
	deleted.Deleted = true

	tests := []struct {
		name    string
		viewer  Viewer
		content Content
		rel     Relationship
		visible bool
		reason  string
	}{
		{"public to stranger", viewer, post(enums.VisibilityPublic), Relationship{}, true, ""},
		{"public to anonymous", Anonymous, post(enums.VisibilityPublic), Relationship{}, true, ""},
		{"public blocked", viewer, post(enums.VisibilityPublic), blocked, false, errors.ReasonBlocked},
		{"anonymous ignores block facts", Anonymous, post(enums.VisibilityPublic), blocked, true, ""},
		{"followers to non-follower", viewer, post(enums.VisibilityFollowers), Relationship{}, false, errors.ReasonNotVisible},
		{"followers to follower", viewer, post(enums.VisibilityFollowers), follower, true, ""},
		{"followers to author", self, post(enums.VisibilityFollowers), Relationship{}, true, ""},
		{"followers to anonymous", Anonymous, post(enums.VisibilityFollowers), Relationship{}, false, errors.ReasonNotVisible},
		{"followers to blocked follower", viewer, post(enums.VisibilityFollowers), blocked, false, errors.ReasonBlocked},
		{"private to follower", viewer, post(enums.VisibilityPrivate), follower, false, errors.ReasonNotVisible},
		{"private to author", self, post(enums.VisibilityPrivate), Relationship{}, true, ""},
		{"private to admin", admin, post(enums.VisibilityPrivate), Relationship{}, true, ""},
		{"deleted to stranger", viewer, deleted, Relationship{}, false, errors.ReasonNotVisible},
		{"deleted to author", self, deleted, Relationship{}, false, errors.ReasonNotVisible},
		{"deleted to anonymous", Anonymous, deleted, Relationship{}, false, errors.ReasonNotVisible},
		{"deleted to admin", admin, deleted, blocked, true, ""},
		{"admin flag without identity", Viewer{IsAdmin: true}, post(enums.VisibilityPrivate), Relationship{}, false, errors.ReasonNotVisible},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(tt.viewer, tt.content, tt.rel)
			if got.Visible != tt.visible {
				t.Fatalf("expected visible=%v, got %v", tt.visible, got.Visible)
			}
			if got.Reason != tt.reason {
				t.Fatalf("expected reason %q, got %q", tt.reason, got.Reason)
			}
		})
	}
}

func TestEnsureVisibleErrors(t *testing.T) {
	t.Run("visible", func(t *testing.T) {
		if err := EnsureVisible(Anonymous, post(enums.VisibilityPublic), Relationship{}); err != nil {
			t.Fatalf("expected nil, got %v", err)
		}
	})
	t.Run("blocked", func(t *testing.T) {
		err := EnsureVisible(Viewer{UID: "x"}, post(enums.VisibilityPublic), Relationship{Blocked: true})
		if !errors.HasReason(err, errors.ReasonBlocked) {
			t.Fatalf("expected BLOCKED, got %v", err)
		}
		if errors.As(err).Code() != errors.CodePermissionDenied {
			t.Fatalf("expected permission-denied, got %s", errors.As(err).Code())
		}
	})
	t.Run("not visible", func(t *testing.T) {
		err := EnsureVisible(Viewer{UID: "x"}, post(enums.VisibilityPrivate), Relationship{})
		if !errors.HasReason(err, errors.ReasonNotVisible) {
			t.Fatalf("expected NOT_VISIBLE, got %v", err)
		}
	})
}
