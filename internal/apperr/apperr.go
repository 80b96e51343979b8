// Package apperr classifies failures so handlers and the job tracker can
// decide how to surface them.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies a failure class.
type Kind string

const (
	// KindInvalidInput marks malformed requests. Never retried.
	KindInvalidInput Kind = "INVALID_INPUT"
	// KindNotFound marks lookups of unknown entities.
	KindNotFound Kind = "NOT_FOUND"
	// KindResourceBusy marks single-flight conflicts.
	KindResourceBusy Kind = "RESOURCE_BUSY"
	// KindUpstreamFailure marks embedding/generation oracle errors. Retryable.
	KindUpstreamFailure Kind = "UPSTREAM_FAILURE"
	// KindConsistencyFailure marks detected partial index writes. The
	// affected document must be re-indexed before it is served again.
	KindConsistencyFailure Kind = "CONSISTENCY_FAILURE"
)

// Error carries a failure kind alongside the wrapped cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a classified error without a cause.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Newf creates a classified error with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying error.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf extracts the failure kind from err, walking the wrap chain. Errors
// without a classification default to upstream failure so workers treat them
// as retryable rather than silently fatal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUpstreamFailure
}

// Retryable reports whether a worker may retry the failed operation.
func Retryable(err error) bool {
	return KindOf(err) == KindUpstreamFailure
}

// HTTPStatus maps a failure kind to the HTTP status handlers respond with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindResourceBusy:
		return http.StatusConflict
	case KindConsistencyFailure:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
