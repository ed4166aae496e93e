// Package apperr defines the error kinds shared across Tripmate services and
// their mapping onto HTTP status codes. Domain packages wrap these sentinels
// with context so callers can branch on them with errors.Is.
package apperr

import (
	"errors"
	"net/http"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrConflict     = errors.New("conflict")
	ErrRateLimited  = errors.New("rate limited")
)

// Invalid wraps ErrInvalidInput with a human-readable message that is safe to
// return to clients.
func Invalid(msg string) error {
	return &publicError{msg: msg, kind: ErrInvalidInput}
}

// Conflict wraps ErrConflict with a client-facing message.
func Conflict(msg string) error {
	return &publicError{msg: msg, kind: ErrConflict}
}

// Forbidden wraps ErrForbidden with a client-facing message.
func Forbidden(msg string) error {
	return &publicError{msg: msg, kind: ErrForbidden}
}

// NotFound wraps ErrNotFound with a client-facing message.
func NotFound(msg string) error {
	return &publicError{msg: msg, kind: ErrNotFound}
}

type publicError struct {
	msg  string
	kind error
}

func (e *publicError) Error() string { return e.msg }
func (e *publicError) Unwrap() error { return e.kind }

// HTTPStatus maps an error to the status code the API responds with.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Message returns the text shown to API clients. Public errors expose their own
// message; everything else collapses to a generic one per kind so that store
// and driver details never leak.
func Message(err error) string {
	var pe *publicError
	if errors.As(err, &pe) {
		return pe.msg
	}
	switch HTTPStatus(err) {
	case http.StatusNotFound:
		return "Not found"
	case http.StatusBadRequest:
		return "Invalid request"
	case http.StatusUnauthorized:
		return "Unauthorized"
	case http.StatusForbidden:
		return "Forbidden"
	case http.StatusConflict:
		return "Already exists"
	case http.StatusTooManyRequests:
		return "Too many requests"
	default:
		return "Internal server error"
	}
}
