package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/atelier-backend/api/responses"
	"github.com/angelmondragon/atelier-backend/api/validators"
	"github.com/angelmondragon/atelier-backend/internal/graph"
	"github.com/angelmondragon/atelier-backend/internal/posts"
	"github.com/angelmondragon/atelier-backend/internal/users"
	pkgerrors "github.com/angelmondragon/atelier-backend/pkg/errors"
	"github.com/angelmondragon/atelier-backend/pkg/logger"
)

// RPCServices are the services behind the named remote procedures.
type RPCServices struct {
	Graph graph.Service
	Posts posts.Service
	Users users.Service
}

type rpcHandler func(ctx context.Context, uid string, r *http.Request) (any, error)

type targetRequest struct {
	TargetUID string `json:"targetUid" validate:"required,uid"`
}

type createCommentRequest struct {
	PostID          string  `json:"postId" validate:"required,uuid"`
	Body            string  `json:"body" validate:"required,notblank,max=2000"`
	ParentCommentID *string `json:"parentCommentId,omitempty" validate:"omitempty,uuid"`
}

type toggleLikeRequest struct {
	PostID string `json:"postId" validate:"required,uuid"`
	Like   *bool  `json:"like" validate:"required"`
}

type decideFollowRequest struct {
	FromUID  string `json:"fromUid" validate:"required,uid"`
	Decision string `json:"decision" validate:"required,oneof=approve reject"`
}

// RPC dispatches POST /rpc/{operation} to the matching service call. Every
// operation answers with the usual envelopes.
func RPC(svcs RPCServices, logg *logger.Logger) http.HandlerFunc {
	table := rpcTable(svcs)
	return func(w http.ResponseWriter, r *http.Request) {
		op := strings.TrimSpace(chi.URLParam(r, "operation"))
		handler, ok := table[op]
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "unknown operation "+op))
			return
		}
		uid, err := callerUID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithOperation(ctx, op)
		}
		result, err := handler(ctx, uid, r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func rpcTable(svcs RPCServices) map[string]rpcHandler {
	return map[string]rpcHandler{
		"blockUser": func(ctx context.Context, uid string, r *http.Request) (any, error) {
			var req targetRequest
			if err := validators.DecodeJSONBody(r, &req); err != nil {
				return nil, err
			}
			return struct{}{}, svcs.Graph.Block(ctx, uid, req.TargetUID)
		},
		"unblockUser": func(ctx context.Context, uid string, r *http.Request) (any, error) {
			var req targetRequest
			if err := validators.DecodeJSONBody(r, &req); err != nil {
				return nil, err
			}
			return struct{}{}, svcs.Graph.Unblock(ctx, uid, req.TargetUID)
		},
		"requestFollow": func(ctx context.Context, uid string, r *http.Request) (any, error) {
			var req targetRequest
			if err := validators.DecodeJSONBody(r, &req); err != nil {
				return nil, err
			}
			status, err := svcs.Graph.RequestFollow(ctx, uid, req.TargetUID)
			if err != nil {
				return nil, err
			}
			return map[string]string{"status": string(status)}, nil
		},
		"unfollow": func(ctx context.Context, uid string, r *http.Request) (any, error) {
			var req targetRequest
			if err := validators.DecodeJSONBody(r, &req); err != nil {
				return nil, err
			}
			return struct{}{}, svcs.Graph.Unfollow(ctx, uid, req.TargetUID)
		},
		"decideFollowRequest": func(ctx context.Context, uid string, r *http.Request) (any, error) {
			var req decideFollowRequest
			if err := validators.DecodeJSONBody(r, &req); err != nil {
				return nil, err
			}
			return struct{}{}, svcs.Graph.DecideFollowRequest(ctx, uid, req.FromUID, req.Decision)
		},
		"createComment": func(ctx context.Context, uid string, r *http.Request) (any, error) {
			var req createCommentRequest
			if err := validators.DecodeJSONBody(r, &req); err != nil {
				return nil, err
			}
			postID, err := parseUUID(req.PostID, "postId")
			if err != nil {
				return nil, err
			}
			input := posts.CreateCommentInput{PostID: postID, Body: req.Body}
			if req.ParentCommentID != nil {
				parent, err := parseUUID(*req.ParentCommentID, "parentCommentId")
				if err != nil {
					return nil, err
				}
				input.ParentCommentID = &parent
			}
			comment, err := svcs.Posts.CreateComment(ctx, uid, input)
			if err != nil {
				return nil, err
			}
			return map[string]string{"commentId": comment.ID.String()}, nil
		},
		"toggleLike": func(ctx context.Context, uid string, r *http.Request) (any, error) {
			var req toggleLikeRequest
			if err := validators.DecodeJSONBody(r, &req); err != nil {
				return nil, err
			}
			postID, err := parseUUID(req.PostID, "postId")
			if err != nil {
				return nil, err
			}
			count, err := svcs.Posts.ToggleLike(ctx, uid, postID, *req.Like)
			if err != nil {
				return nil, err
			}
			return map[string]int64{"likeCount": count}, nil
		},
		"setInitialRole": func(ctx context.Context, uid string, r *http.Request) (any, error) {
			var req setRoleRequest
			if err := validators.DecodeJSONBody(r, &req); err != nil {
				return nil, err
			}
			return struct{}{}, svcs.Users.SetInitialRole(ctx, uid, req.Role)
		},
		"requestCreatorVerification": func(ctx context.Context, uid string, r *http.Request) (any, error) {
			var req verificationRequest
			if err := validators.DecodeJSONBody(r, &req); err != nil {
				return nil, err
			}
			if _, err := svcs.Users.RequestCreatorVerification(ctx, uid, req.EvidencePaths, req.Notes); err != nil {
				return nil, err
			}
			return struct{}{}, nil
		},
	}
}
