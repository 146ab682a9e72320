package controllers

import (
	"net/http"

	"github.com/angelmondragon/atelier-backend/api/middleware"
	"github.com/angelmondragon/atelier-backend/api/responses"
)

type pingResponse struct {
	Scope         string `json:"scope"`
	RequestID     string `json:"request_id,omitempty"`
	UID           string `json:"uid,omitempty"`
	Role          string `json:"role,omitempty"`
	EmailVerified bool   `json:"email_verified,omitempty"`
}

// Ping echoes back what the middleware chain of its route group resolved
// for the caller, so clients can check their session and role.
func Ping(scope string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		responses.WriteSuccess(w, pingResponse{
			Scope:         scope,
			RequestID:     middleware.RequestIDFromContext(ctx),
			UID:           middleware.UserIDFromContext(ctx),
			Role:          middleware.RoleFromContext(ctx),
			EmailVerified: middleware.EmailVerifiedFromContext(ctx),
		})
	}
}
