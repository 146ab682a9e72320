package middleware

import (
	"context"
	"net/http"

	"github.com/angelmondragon/atelier-backend/api/responses"
	"github.com/angelmondragon/atelier-backend/internal/users"
	pkgerrors "github.com/angelmondragon/atelier-backend/pkg/errors"
	"github.com/angelmondragon/atelier-backend/pkg/logger"
)

type identityEnsurer interface {
	EnsureUser(ctx context.Context, uid string, emailVerified bool) (users.UserDTO, error)
}

// EnsureIdentity is the first-login trigger: every authenticated request makes
// sure the role store has a row for the caller, then carries the stored role
// forward. Anonymous requests pass through untouched.
func EnsureIdentity(store identityEnsurer, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			uid := UserIDFromContext(r.Context())
			if uid == "" || store == nil {
				next.ServeHTTP(w, r)
				return
			}
			user, err := store.EnsureUser(r.Context(), uid, EmailVerifiedFromContext(r.Context()))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			ctx := WithRole(r.Context(), string(user.Role))
			if logg != nil {
				ctx = logg.WithActorRole(ctx, string(user.Role))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole rejects callers whose stored role is not role. Services still
// re-check admin rights inside their transactions.
func RequireRole(role string, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if RoleFromContext(r.Context()) != role {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodePermissionDenied, role+" role required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
