package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error by how it should be surfaced to a caller.
type Kind string

const (
	// KindValidation is bad or missing caller input. The message is safe
	// to show.
	KindValidation Kind = "VALIDATION"

	// KindNotFound is a routine miss, e.g. polling for a plan before the
	// workflow engine has delivered it.
	KindNotFound Kind = "NOT_FOUND"

	// KindConfiguration is a missing server-side secret or endpoint.
	KindConfiguration Kind = "CONFIGURATION"

	// KindRateLimited is an upstream 429.
	KindRateLimited Kind = "UPSTREAM_RATE_LIMITED"

	// KindAuth is an upstream 401.
	KindAuth Kind = "UPSTREAM_AUTH_FAILED"

	// KindQuota is an upstream 403 quota rejection.
	KindQuota Kind = "UPSTREAM_QUOTA_EXCEEDED"

	// KindUnreachable is an upstream transport failure or timeout.
	KindUnreachable Kind = "UPSTREAM_UNREACHABLE"

	// KindParse is an upstream response that could not be decoded.
	KindParse Kind = "PARSE_ERROR"

	// KindInternal is anything else.
	KindInternal Kind = "INTERNAL"
)

// Error is the structured error returned across component boundaries.
type Error struct {
	// Kind drives the caller-visible status and message.
	Kind Kind

	// Message is a short description. For validation and not-found errors
	// it is shown to the caller verbatim.
	Message string

	// Detail carries internal context that is only exposed in dev mode.
	Detail string

	// Cause is the wrapped error, if any.
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}

	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail returns the error with the dev-mode detail set.
func (e *Error) WithDetail(format string, args ...any) *Error {
	e.Detail = fmt.Sprintf(format, args...)
	return e
}

// New creates an error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap creates an error of the given kind wrapping cause.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// Validation creates a validation error.
func Validation(format string, args ...any) *Error {
	return New(KindValidation, fmt.Sprintf(format, args...))
}

// NotFound creates a not-found error.
func NotFound(format string, args ...any) *Error {
	return New(KindNotFound, fmt.Sprintf(format, args...))
}

// Configuration creates a configuration error.
func Configuration(format string, args ...any) *Error {
	return New(KindConfiguration, fmt.Sprintf(format, args...))
}

// KindOf returns the kind of err, or KindInternal if err carries no *Error.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}

	return KindInternal
}

// Is reports whether err carries an *Error of the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps an error kind to the status code returned to callers.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest

	case KindNotFound:
		return http.StatusNotFound

	case KindRateLimited:
		return http.StatusTooManyRequests

	case KindQuota:
		return http.StatusServiceUnavailable

	case KindUnreachable:
		return http.StatusBadGateway

	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the caller-facing message for err. Only validation
// and not-found errors expose their own message; every other kind maps to a
// fixed string.
func PublicMessage(err error) string {
	var appErr *Error
	if !errors.As(err, &appErr) {
		return "internal server error"
	}

	switch appErr.Kind {
	case KindValidation, KindNotFound:
		return appErr.Message

	case KindConfiguration:
		return "server configuration error"

	case KindRateLimited:
		return "AI service is rate limited, please try again shortly"

	case KindAuth:
		return "AI service authentication failed"

	case KindQuota:
		return "AI service quota exceeded, please try again later"

	case KindUnreachable:
		return "upstream service unavailable"

	case KindParse:
		return "failed to process AI response"

	default:
		return "internal server error"
	}
}

// DevDetail returns the internal detail of err for dev-mode responses.
func DevDetail(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Detail != "" {
		if appErr.Cause != nil {
			return appErr.Detail + ": " + appErr.Cause.Error()
		}

		return appErr.Detail
	}

	return err.Error()
}
