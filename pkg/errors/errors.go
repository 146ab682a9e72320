package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"strings"
)

// Code is the wire-level error code returned to callers.
type Code string

const (
	CodeInvalidArgument    Code = "invalid-argument"
	CodeUnauthenticated    Code = "unauthenticated"
	CodePermissionDenied   Code = "permission-denied"
	CodeNotFound           Code = "not-found"
	CodeAlreadyExists      Code = "already-exists"
	CodeFailedPrecondition Code = "failed-precondition"
	CodeResourceExhausted  Code = "resource-exhausted"
	CodeAborted            Code = "aborted"
	CodeInternal           Code = "internal"
	CodeUnavailable        Code = "unavailable"
)

// CodeTransient marks write-conflict exhaustion; the whole operation is safe to retry.
const CodeTransient = CodeAborted

// Reason tokens carried verbatim in permission-denied messages.
const (
	ReasonBlocked    = "BLOCKED"
	ReasonNotVisible = "NOT_VISIBLE"
)

type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

var metadataByCode = map[Code]Metadata{
	CodeInvalidArgument: {
		HTTPStatus:     http.StatusBadRequest,
		PublicMessage:  "invalid argument",
		DetailsAllowed: true,
	},
	CodeUnauthenticated: {
		HTTPStatus:    http.StatusUnauthorized,
		PublicMessage: "authentication required",
	},
	CodePermissionDenied: {
		HTTPStatus:    http.StatusForbidden,
		PublicMessage: "permission denied",
	},
	CodeNotFound: {
		HTTPStatus:    http.StatusNotFound,
		PublicMessage: "resource not found",
	},
	CodeAlreadyExists: {
		HTTPStatus:    http.StatusConflict,
		PublicMessage: "resource already exists",
	},
	CodeFailedPrecondition: {
		HTTPStatus:     http.StatusConflict,
		PublicMessage:  "failed precondition",
		DetailsAllowed: true,
	},
	CodeResourceExhausted: {
		HTTPStatus:    http.StatusTooManyRequests,
		PublicMessage: "rate limit exceeded",
	},
	CodeAborted: {
		HTTPStatus:    http.StatusConflict,
		Retryable:     true,
		PublicMessage: "concurrent update, retry the request",
	},
	CodeInternal: {
		HTTPStatus:    http.StatusInternalServerError,
		Retryable:     true,
		PublicMessage: "internal server error",
	},
	CodeUnavailable: {
		HTTPStatus:     http.StatusServiceUnavailable,
		Retryable:      true,
		PublicMessage:  "dependency unavailable",
		DetailsAllowed: true,
	},
}

func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

type Error struct {
	code    Code
	message string
	reason  string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

// Blocked is the denial returned when either party of a pair has blocked the other.
func Blocked(detail string) *Error {
	return denied(ReasonBlocked, detail)
}

// NotVisible is the denial returned when the viewer cannot see the target content.
func NotVisible(detail string) *Error {
	return denied(ReasonNotVisible, detail)
}

// denied keeps the token at the start of the message as well, so callers that
// only see Error() still find it.
func denied(reason, detail string) *Error {
	msg := reason
	if detail = strings.TrimSpace(detail); detail != "" {
		msg += ": " + detail
	}
	return &Error{code: CodePermissionDenied, message: msg, reason: reason}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// IsCode reports whether err carries the given code anywhere in its chain.
func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.Code() == code
}

// ReasonOf returns the denial token of the first *Error in err's chain that
// carries one, looking through wrappers such as Wrap(CodeInternal, denial, ...).
func ReasonOf(err error) string {
	for err != nil {
		typed := As(err)
		if typed == nil {
			return ""
		}
		if typed.reason != "" {
			return typed.reason
		}
		err = typed.cause
	}
	return ""
}

// HasReason reports whether err carries the denial token reason.
func HasReason(err error, reason string) bool {
	return reason != "" && ReasonOf(err) == reason
}
