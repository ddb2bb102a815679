// Package apperr defines the tagged error returned by the chat core.
// A Kind is "<type>:<surface>", e.g. "not_found:database".
package apperr

import (
	"errors"
	"net/http"
	"strings"
)

// Kind tags an error with its type and surface.
type Kind string

const (
	BadRequestDatabase Kind = "bad_request:database"
	NotFoundDatabase   Kind = "not_found:database"
	Unauthorized       Kind = "unauthorized"
	BadRequestAPI      Kind = "bad_request:api"
	ForbiddenChat      Kind = "forbidden:chat"
	NotFoundChat       Kind = "not_found:chat"
	NotFoundDocument   Kind = "not_found:document"
	ForbiddenDocument  Kind = "forbidden:document"
	RateLimitChat      Kind = "rate_limit:chat"
)

// Type returns the part before the colon.
func (k Kind) Type() string {
	t, _, _ := strings.Cut(string(k), ":")
	return t
}

// Surface returns the part after the colon, or "" when absent.
func (k Kind) Surface() string {
	_, s, _ := strings.Cut(string(k), ":")
	return s
}

// Error carries a Kind, a human-readable message and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

// New returns an Error without a cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap returns an Error that unwraps to cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// Database wraps a store failure as bad_request:database.
func Database(message string, cause error) *Error {
	return Wrap(BadRequestDatabase, message, cause)
}

func (e *Error) Error() string {
	if e.cause != nil {
		return string(e.Kind) + ": " + e.Message + ": " + e.cause.Error()
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// Is matches another *Error by Kind so errors.Is(err, apperr.New(kind, "")) works.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf extracts the Kind from err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// HasKind reports whether err is an *Error of the given kind.
func HasKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// StatusCode maps the error type to an HTTP status.
func StatusCode(err error) int {
	switch KindOf(err).Type() {
	case "bad_request":
		return http.StatusBadRequest
	case "unauthorized":
		return http.StatusUnauthorized
	case "forbidden":
		return http.StatusForbidden
	case "not_found":
		return http.StatusNotFound
	case "rate_limit":
		return http.StatusTooManyRequests
	case "offline":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage hides database details from clients.
func PublicMessage(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return "something went wrong, please try again later"
	}
	if e.Kind.Surface() == "database" {
		return "an error occurred while executing a database query"
	}
	return e.Message
}
