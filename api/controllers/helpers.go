package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/atelier-backend/api/middleware"
	"github.com/angelmondragon/atelier-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/atelier-backend/pkg/errors"
	"github.com/angelmondragon/atelier-backend/pkg/visibility"
)

func callerUID(r *http.Request) (string, error) {
	uid := middleware.UserIDFromContext(r.Context())
	if uid == "" {
		return "", pkgerrors.New(pkgerrors.CodeUnauthenticated, "user context missing")
	}
	return uid, nil
}

// viewerFrom builds the read viewer; requests without a token are anonymous.
func viewerFrom(r *http.Request) visibility.Viewer {
	uid := middleware.UserIDFromContext(r.Context())
	if uid == "" {
		return visibility.Anonymous
	}
	return visibility.Viewer{UID: uid, IsAdmin: middleware.RoleFromContext(r.Context()) == string(enums.RoleAdmin)}
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, name))
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeInvalidArgument, err, "invalid "+name)
	}
	return id, nil
}

func pathUID(r *http.Request, name string) (string, error) {
	uid := strings.TrimSpace(chi.URLParam(r, name))
	if uid == "" {
		return "", pkgerrors.New(pkgerrors.CodeInvalidArgument, name+" is required")
	}
	return uid, nil
}

func parseUUID(raw, field string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeInvalidArgument, err, "invalid "+field)
	}
	return id, nil
}
