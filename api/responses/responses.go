// Package responses renders the JSON envelopes shared by every endpoint.
package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	pkgerrors "github.com/angelmondragon/atelier-backend/pkg/errors"
	"github.com/angelmondragon/atelier-backend/pkg/logger"
)

type Envelope struct {
	Data any `json:"data"`
}

// ErrorBody is the client-facing error. Reason repeats the BLOCKED or
// NOT_VISIBLE token of a permission denial so clients need not parse Message.
type ErrorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Reason    string `json:"reason,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
	Details   any    `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}

const fallbackBody = `{"error":{"code":"internal","message":"internal server error","retryable":true}}`

// codes whose own message is safe to show the caller
var passThrough = map[pkgerrors.Code]bool{
	pkgerrors.CodeInvalidArgument:    true,
	pkgerrors.CodeUnauthenticated:    true,
	pkgerrors.CodePermissionDenied:   true,
	pkgerrors.CodeNotFound:           true,
	pkgerrors.CodeAlreadyExists:      true,
	pkgerrors.CodeFailedPrecondition: true,
	pkgerrors.CodeResourceExhausted:  true,
}

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, Envelope{Data: data})
}

// WriteError renders err as the error envelope and logs it: internal failures
// at error level with a stack, caller mistakes and denials at warn.
func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("nil error written")
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}
	meta := pkgerrors.MetadataFor(typed.Code())

	body := ErrorBody{
		Code:      string(typed.Code()),
		Message:   meta.PublicMessage,
		Retryable: meta.Retryable,
	}
	if passThrough[typed.Code()] && typed.Message() != "" {
		body.Message = typed.Message()
	}
	if typed.Code() == pkgerrors.CodePermissionDenied {
		body.Reason = pkgerrors.ReasonOf(typed)
	}
	if meta.DetailsAllowed {
		body.Details = typed.Details()
	}

	if logg != nil {
		logCtx := logg.WithFields(ctx, pkgerrors.Diagnose(err).Fields())
		if meta.HTTPStatus >= http.StatusInternalServerError {
			logg.Error(logCtx, "request.error", err)
		} else {
			logg.Warn(logCtx, "request.rejected")
		}
	}

	writeJSON(w, meta.HTTPStatus, ErrorEnvelope{Error: body})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	encoded, err := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(fallbackBody))
		return
	}
	w.WriteHeader(status)
	_, _ = w.Write(append(encoded, '\n'))
}
