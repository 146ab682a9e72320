package validators

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"regexp"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/angelmondragon/atelier-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/atelier-backend/pkg/errors"
)

// maxBodyBytes caps every JSON request body.
const maxBodyBytes = 1 << 20

var (
	handlePattern = regexp.MustCompile(`^[a-z0-9_.]{3,30}$`)
	validate      = newValidator()
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	// uid: an identity-provider uid, opaque but path-safe.
	must(v.RegisterValidation("uid", func(fl validator.FieldLevel) bool {
		uid := fl.Field().String()
		return len(uid) > 0 && len(uid) <= 128 && !strings.ContainsAny(uid, "/ \t\r\n")
	}))
	must(v.RegisterValidation("handle", func(fl validator.FieldLevel) bool {
		return handlePattern.MatchString(strings.ToLower(strings.TrimSpace(fl.Field().String())))
	}))
	must(v.RegisterValidation("mediakind", func(fl validator.FieldLevel) bool {
		return enums.MediaKind(strings.TrimSpace(fl.Field().String())).IsValid()
	}))
	must(v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.IndexFunc(fl.Field().String(), func(r rune) bool { return !unicode.IsSpace(r) }) >= 0
	}))
	return v
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

// DecodeJSONBody decodes exactly one JSON object into dest and validates it.
// Unknown fields, trailing data and oversized bodies are rejected.
func DecodeJSONBody(r *http.Request, dest any) error {
	defer io.Copy(io.Discard, r.Body)

	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes+1))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return pkgerrors.New(pkgerrors.CodeInvalidArgument, "request body required")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInvalidArgument, err, "invalid request body").WithDetails(map[string]any{"error": err.Error()})
	}
	if dec.More() {
		return pkgerrors.New(pkgerrors.CodeInvalidArgument, "request body must hold a single object")
	}
	if err := validate.Struct(dest); err != nil {
		return formatValidationErrors(err)
	}
	return nil
}

func formatValidationErrors(err error) *pkgerrors.Error {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return pkgerrors.Wrap(pkgerrors.CodeInvalidArgument, err, "validation failed")
	}
	details := make(map[string]string, len(errs))
	for _, fe := range errs {
		details[fe.Field()] = validationMessage(fe)
	}
	return pkgerrors.New(pkgerrors.CodeInvalidArgument, "validation failed").WithDetails(details)
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "notblank":
		return "must not be blank"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "uuid":
		return "must be a valid uuid"
	case "uid":
		return "must be a user id"
	case "handle":
		return "must be 3-30 characters of a-z, 0-9, '_' or '.'"
	case "mediakind":
		return "must be a media kind"
	}
	return "is invalid"
}
