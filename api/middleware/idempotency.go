package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/atelier-backend/api/responses"
	pkgerrors "github.com/angelmondragon/atelier-backend/pkg/errors"
	"github.com/angelmondragon/atelier-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/atelier-backend/pkg/redis"
)

// IdempotencyHeader carries the client-chosen key for a retried write.
const IdempotencyHeader = "Idempotency-Key"

const (
	defaultIdempotencyTTL  = 24 * time.Hour
	criticalIdempotencyTTL = 7 * 24 * time.Hour
	inFlightTTL            = time.Minute
)

type routeMatcher func(string) bool

type idempotencyRule struct {
	method   string
	matcher  routeMatcher
	critical bool
}

var idempotencyRules = []idempotencyRule{
	{method: http.MethodPost, matcher: matchTemplate("/api/v1/posts")},
	{method: http.MethodPost, matcher: matchTemplate("/api/v1/posts/{postId}/comments")},
	{method: http.MethodPost, matcher: matchTemplate("/api/v1/messages")},
	{method: http.MethodPost, matcher: matchTemplate("/api/v1/media/presign")},
	{method: http.MethodPost, matcher: matchTemplate("/api/v1/rpc/createComment")},
	{method: http.MethodPost, matcher: matchTemplate("/api/v1/me/verification")},
	{method: http.MethodPost, matcher: matchTemplate("/api/v1/rpc/requestCreatorVerification")},
	{method: http.MethodPost, matcher: matchTemplate("/api/v1/reports")},
	// moderation decisions move money or write sanctions; keep their keys longer
	{method: http.MethodPost, matcher: matchTemplate("/api/v1/disputes"), critical: true},
	{method: http.MethodPost, matcher: matchPrefixSuffix("/api/admin/v1/disputes/", "/resolve"), critical: true},
	{method: http.MethodPost, matcher: matchPrefixSuffix("/api/admin/v1/reports/", "/resolve"), critical: true},
}

type idempotencyRecord struct {
	Status      int               `json:"status"`
	Body        string            `json:"body"`
	Headers     map[string]string `json:"headers,omitempty"`
	RequestHash string            `json:"request_hash"`
}

// Idempotency runs a keyed write at most once per caller and replays its
// stored response afterwards. A duplicate that arrives while the first request
// is running gets an aborted error; a 5xx releases the key for a retry.
// baseTTL sets how long ordinary records live; zero selects the default.
func Idempotency(store pkgredis.IdempotencyStore, baseTTL time.Duration, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			pattern := routePattern(r)
			ttl, ok := routeTTL(r.Method, pattern, baseTTL)
			if !ok || store == nil {
				next.ServeHTTP(w, r)
				return
			}

			idempotencyKey := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
			if idempotencyKey == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInvalidArgument, IdempotencyHeader+" header required"))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnavailable, err, "read request"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			requestHash := hashBody(body)
			key := store.IdempotencyKey(buildScope(r), idempotencyKey)

			claimed, existing, err := store.Claim(r.Context(), key, inFlightTTL)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnavailable, err, "claim idempotency key"))
				return
			}
			if !claimed {
				replayOrReject(w, r, logg, existing, requestHash)
				return
			}

			rec := &responseCapture{ResponseWriter: w}
			defer func() {
				// a panicking handler must not leave the key pending
				if p := recover(); p != nil {
					releaseClaim(r.Context(), store, key, logg)
					panic(p)
				}
			}()
			next.ServeHTTP(rec, r)

			status := defaultStatus(rec.status)
			if status >= http.StatusInternalServerError {
				releaseClaim(r.Context(), store, key, logg)
				return
			}

			record := idempotencyRecord{
				Status:      status,
				Body:        base64.StdEncoding.EncodeToString(rec.body.Bytes()),
				RequestHash: requestHash,
			}
			if ct := rec.Header().Get("Content-Type"); ct != "" {
				record.Headers = map[string]string{"Content-Type": ct}
			}
			payload, err := json.Marshal(record)
			if err != nil {
				logError(r.Context(), logg, "marshal idempotency record", err)
				releaseClaim(r.Context(), store, key, logg)
				return
			}
			// the response is already written; keep serving if the store is down
			if err := store.Complete(context.WithoutCancel(r.Context()), key, string(payload), ttl); err != nil {
				logError(r.Context(), logg, "persist idempotency record", err)
			}
		})
	}
}

func replayOrReject(w http.ResponseWriter, r *http.Request, logg *logger.Logger, existing, requestHash string) {
	if existing == "" || existing == pkgredis.ClaimPending {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeAborted, "request with this idempotency key is still in progress"))
		return
	}
	record, err := decodeRecord(existing)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnavailable, err, "decode idempotency record"))
		return
	}
	if record.RequestHash != requestHash {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeFailedPrecondition, "idempotency key reused with different request body"))
		return
	}
	writeStoredResponse(w, record)
}

func releaseClaim(ctx context.Context, store pkgredis.IdempotencyStore, key string, logg *logger.Logger) {
	if err := store.Release(context.WithoutCancel(ctx), key); err != nil {
		logError(ctx, logg, "release idempotency key", err)
	}
}

func buildScope(r *http.Request) string {
	parts := []string{
		UserIDFromContext(r.Context()),
		r.Method,
		r.URL.Path,
	}
	return strings.Join(parts, "|")
}

func decodeRecord(payload string) (*idempotencyRecord, error) {
	var record idempotencyRecord
	if err := json.Unmarshal([]byte(payload), &record); err != nil {
		return nil, err
	}
	return &record, nil
}

func writeStoredResponse(w http.ResponseWriter, record *idempotencyRecord) {
	if record == nil {
		return
	}
	if ct, ok := record.Headers["Content-Type"]; ok && ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(record.Status)
	if decoded, err := base64.StdEncoding.DecodeString(record.Body); err == nil {
		_, _ = w.Write(decoded)
	}
}

func hashBody(payload []byte) string {
	sum := sha256.Sum256(payload)
	return base64.StdEncoding.EncodeToString(sum[:])
}

func defaultStatus(value int) int {
	if value == 0 {
		return http.StatusOK
	}
	return value
}

func routePattern(r *http.Request) string {
	if r == nil {
		return ""
	}
	// a group middleware only sees the pattern up to its mount point
	if ctx := chi.RouteContext(r.Context()); ctx != nil {
		if pattern := ctx.RoutePattern(); pattern != "" && !strings.Contains(pattern, "*") {
			return pattern
		}
	}
	return r.URL.Path
}

func routeTTL(method, pattern string, base time.Duration) (time.Duration, bool) {
	if pattern == "" {
		return 0, false
	}
	if base <= 0 {
		base = defaultIdempotencyTTL
	}
	for _, rule := range idempotencyRules {
		if rule.method != method {
			continue
		}
		if rule.matcher(pattern) {
			if rule.critical {
				return criticalIdempotencyTTL, true
			}
			return base, true
		}
	}
	return 0, false
}

// matchTemplate matches a route pattern or a concrete path against tmpl,
// where {param} segments match any non-empty segment.
func matchTemplate(tmpl string) routeMatcher {
	want := strings.Split(strings.Trim(tmpl, "/"), "/")
	return func(pattern string) bool {
		got := strings.Split(strings.Trim(pattern, "/"), "/")
		if len(got) != len(want) {
			return false
		}
		for i, seg := range want {
			if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
				if got[i] == "" {
					return false
				}
				continue
			}
			if got[i] != seg {
				return false
			}
		}
		return true
	}
}

func matchPrefixSuffix(prefix, suffix string) routeMatcher {
	return func(pattern string) bool {
		return strings.HasPrefix(pattern, prefix) && strings.HasSuffix(pattern, suffix)
	}
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (r *responseCapture) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseCapture) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func logError(ctx context.Context, logg *logger.Logger, msg string, err error) {
	if logg == nil || err == nil {
		return
	}
	logg.Error(ctx, msg, err)
}
