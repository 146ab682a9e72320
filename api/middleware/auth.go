package middleware

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/atelier-backend/api/responses"
	pkgAuth "github.com/angelmondragon/atelier-backend/pkg/auth"
	"github.com/angelmondragon/atelier-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/atelier-backend/pkg/errors"
	"github.com/angelmondragon/atelier-backend/pkg/logger"
)

// Auth validates a bearer token from the identity provider and seeds the
// request context with the uid and email verification flag.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return authenticate(cfg, logg, false)
}

// OptionalAuth is Auth for routes that also serve anonymous viewers. A
// missing header passes through; a bad token is still rejected.
func OptionalAuth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return authenticate(cfg, logg, true)
}

func authenticate(cfg config.JWTConfig, logg *logger.Logger, optional bool) func(http.Handler) http.Handler {
	verifier := pkgAuth.NewVerifier(cfg)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get("Authorization"))
			if raw == "" && optional {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := bearerToken(raw)
			if !ok {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthenticated, "missing bearer credentials"))
				return
			}

			id, err := verifier.Verify(token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthenticated, err, "invalid token"))
				return
			}

			c := callerFrom(r.Context())
			c.uid, c.emailVerified = id.UID, id.EmailVerified
			ctx := withCaller(r.Context(), c)
			if logg != nil {
				ctx = logg.WithUserID(ctx, id.UID)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken accepts only the Bearer scheme, case-insensitively.
func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
