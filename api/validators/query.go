package validators

import (
	"net/http"
	"strconv"
	"strings"

	pkgerrors "github.com/angelmondragon/atelier-backend/pkg/errors"
	"github.com/angelmondragon/atelier-backend/pkg/pagination"
)

// ParsePagination reads ?limit= and ?cursor=. A malformed cursor is rejected
// here so services only ever see cursors they issued.
func ParsePagination(r *http.Request) (pagination.Params, error) {
	q := r.URL.Query()
	params := pagination.Params{Limit: pagination.DefaultLimit, Cursor: strings.TrimSpace(q.Get("cursor"))}

	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > pagination.MaxLimit {
			return pagination.Params{}, pkgerrors.New(pkgerrors.CodeInvalidArgument, "limit out of range").
				WithDetails(map[string]any{"field": "limit", "min": 1, "max": pagination.MaxLimit})
		}
		params.Limit = limit
	}
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return pagination.Params{}, err
	}
	return params, nil
}
