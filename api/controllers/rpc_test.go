package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/atelier-backend/api/middleware"
	"github.com/angelmondragon/atelier-backend/internal/graph"
	"github.com/angelmondragon/atelier-backend/internal/posts"
	"github.com/angelmondragon/atelier-backend/internal/users"
	"github.com/angelmondragon/atelier-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/atelier-backend/pkg/errors"
)

type stubGraph struct {
	graph.Service
	blockFn  func(ctx context.Context, blocker, target string) error
	followFn func(ctx context.Context, from, to string) (enums.FollowRequestStatus, error)
	decideFn func(ctx context.Context, to, from, decision string) error
}

func (s stubGraph) Block(ctx context.Context, blocker, target string) error {
	return s.blockFn(ctx, blocker, target)
}

func (s stubGraph) RequestFollow(ctx context.Context, from, to string) (enums.FollowRequestStatus, error) {
	return s.followFn(ctx, from, to)
}

func (s stubGraph) DecideFollowRequest(ctx context.Context, to, from, decision string) error {
	return s.decideFn(ctx, to, from, decision)
}

type stubPosts struct {
	posts.Service
	commentFn func(ctx context.Context, uid string, input posts.CreateCommentInput) (*posts.CommentDTO, error)
	likeFn    func(ctx context.Context, uid string, postID uuid.UUID, like bool) (int64, error)
}

func (s stubPosts) CreateComment(ctx context.Context, uid string, input posts.CreateCommentInput) (*posts.CommentDTO, error) {
	return s.commentFn(ctx, uid, input)
}

func (s stubPosts) ToggleLike(ctx context.Context, uid string, postID uuid.UUID, like bool) (int64, error) {
	return s.likeFn(ctx, uid, postID, like)
}

type stubUsers struct {
	users.Service
	roleFn func(ctx context.Context, uid, role string) error
}

func (s stubUsers) SetInitialRole(ctx context.Context, uid, role string) error {
	return s.roleFn(ctx, uid, role)
}

func callRPC(t *testing.T, svcs RPCServices, uid, op, body string) *httptest.ResponseRecorder {
	t.Helper()
	router := chi.NewRouter()
	router.Post("/rpc/{operation}", RPC(svcs, nil))

	req := httptest.NewRequest(http.MethodPost, "/rpc/"+op, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if uid != "" {
		req = req.WithContext(middleware.WithUserID(req.Context(), uid))
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func decodeError(t *testing.T, resp *httptest.ResponseRecorder) (string, string) {
	t.Helper()
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	return envelope.Error.Code, envelope.Error.Message
}

func TestRPCBlockUser(t *testing.T) {
	var gotBlocker, gotTarget string
	svcs := RPCServices{Graph: stubGraph{blockFn: func(ctx context.Context, blocker, target string) error {
		gotBlocker, gotTarget = blocker, target
		return nil
	}}}

	resp := callRPC(t, svcs, "alice", "blockUser", `{"targetUid":"bob"}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if gotBlocker != "alice" || gotTarget != "bob" {
		t.Fatalf("unexpected pair %q -> %q", gotBlocker, gotTarget)
	}
}

func TestRPCBlockedTokenReachesClient(t *testing.T) {
	postID := uuid.New()
	svcs := RPCServices{Posts: stubPosts{commentFn: func(ctx context.Context, uid string, input posts.CreateCommentInput) (*posts.CommentDTO, error) {
		if input.PostID != postID {
			t.Fatalf("unexpected post %s", input.PostID)
		}
		return nil, pkgerrors.Blocked("")
	}}}

	resp := callRPC(t, svcs, "alice", "createComment", `{"postId":"`+postID.String()+`","body":"hi"}`)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", resp.Code)
	}
	code, msg := decodeError(t, resp)
	if code != string(pkgerrors.CodePermissionDenied) {
		t.Fatalf("unexpected code %s", code)
	}
	if !strings.Contains(msg, pkgerrors.ReasonBlocked) {
		t.Fatalf("expected BLOCKED token in %q", msg)
	}
}

func TestRPCCreateCommentReturnsID(t *testing.T) {
	postID, parentID, commentID := uuid.New(), uuid.New(), uuid.New()
	svcs := RPCServices{Posts: stubPosts{commentFn: func(ctx context.Context, uid string, input posts.CreateCommentInput) (*posts.CommentDTO, error) {
		if input.ParentCommentID == nil || *input.ParentCommentID != parentID {
			t.Fatalf("parent not forwarded: %v", input.ParentCommentID)
		}
		return &posts.CommentDTO{ID: commentID, PostID: postID, AuthorUID: uid}, nil
	}}}

	body := `{"postId":"` + postID.String() + `","body":"reply","parentCommentId":"` + parentID.String() + `"}`
	resp := callRPC(t, svcs, "alice", "createComment", body)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	var envelope struct {
		Data struct {
			CommentID string `json:"commentId"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Data.CommentID != commentID.String() {
		t.Fatalf("unexpected comment id %q", envelope.Data.CommentID)
	}
}

func TestRPCToggleLikeRequiresFlag(t *testing.T) {
	svcs := RPCServices{Posts: stubPosts{likeFn: func(ctx context.Context, uid string, postID uuid.UUID, like bool) (int64, error) {
		t.Fatal("service must not be called")
		return 0, nil
	}}}

	resp := callRPC(t, svcs, "alice", "toggleLike", `{"postId":"`+uuid.NewString()+`"}`)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestRPCToggleLikeCount(t *testing.T) {
	svcs := RPCServices{Posts: stubPosts{likeFn: func(ctx context.Context, uid string, postID uuid.UUID, like bool) (int64, error) {
		if like {
			t.Fatal("expected unlike")
		}
		return 4, nil
	}}}

	resp := callRPC(t, svcs, "alice", "toggleLike", `{"postId":"`+uuid.NewString()+`","like":false}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), `"likeCount":4`) {
		t.Fatalf("unexpected body %s", resp.Body.String())
	}
}

func TestRPCRequestFollowStatus(t *testing.T) {
	svcs := RPCServices{Graph: stubGraph{followFn: func(ctx context.Context, from, to string) (enums.FollowRequestStatus, error) {
		return enums.FollowRequestApproved, nil
	}}}

	resp := callRPC(t, svcs, "alice", "requestFollow", `{"targetUid":"bob"}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), `"status":"approved"`) {
		t.Fatalf("unexpected body %s", resp.Body.String())
	}
}

func TestRPCDecisionValidated(t *testing.T) {
	svcs := RPCServices{Graph: stubGraph{decideFn: func(ctx context.Context, to, from, decision string) error {
		t.Fatal("service must not be called")
		return nil
	}}}

	resp := callRPC(t, svcs, "bob", "decideFollowRequest", `{"fromUid":"alice","decision":"maybe"}`)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestRPCSetInitialRoleConflict(t *testing.T) {
	svcs := RPCServices{Users: stubUsers{roleFn: func(ctx context.Context, uid, role string) error {
		return pkgerrors.New(pkgerrors.CodeFailedPrecondition, "role already set")
	}}}

	resp := callRPC(t, svcs, "alice", "setInitialRole", `{"role":"artist"}`)
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", resp.Code)
	}
	code, _ := decodeError(t, resp)
	if code != string(pkgerrors.CodeFailedPrecondition) {
		t.Fatalf("unexpected code %s", code)
	}
}

func TestRPCUnknownOperation(t *testing.T) {
	resp := callRPC(t, RPCServices{}, "alice", "dropTables", `{}`)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
}

func TestRPCRequiresCaller(t *testing.T) {
	resp := callRPC(t, RPCServices{}, "", "blockUser", `{"targetUid":"bob"}`)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}
