// Package apierr defines the error kinds from spec §7 and their mapping to
// HTTP status codes, so every handler in internal/httpapi reports failures
// consistently.
package apierr

import (
	"net/http"

	"github.com/pkg/errors"
)

// Kind is one of the error kinds spec §7 enumerates.
type Kind string

const (
	KindBadRequest        Kind = "BadRequest"
	KindNotFound          Kind = "NotFound"
	KindConflict          Kind = "Conflict"
	KindQuorumUnavailable Kind = "QuorumUnavailable"
	KindTimeout           Kind = "Timeout"
	KindInternal          Kind = "Internal"
)

// Error carries a Kind alongside the wrapped cause, so callers up the
// stack can branch on Kind while still getting a %+v stack trace from
// pkg/errors for logging.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

// Unwrap exposes the wrapped cause to errors.Is/As.
func (e *Error) Unwrap() error {
	return e.cause
}

func newError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: errors.WithStack(cause)}
}

// BadRequest wraps cause (may be nil) as a malformed-input error.
func BadRequest(message string, cause error) *Error { return newError(KindBadRequest, message, cause) }

// NotFound wraps cause as an unknown-id error.
func NotFound(message string, cause error) *Error { return newError(KindNotFound, message, cause) }

// Conflict wraps cause as an existing-entity error.
func Conflict(message string, cause error) *Error { return newError(KindConflict, message, cause) }

// QuorumUnavailable wraps cause as an R-or-W-not-met error.
func QuorumUnavailable(message string, cause error) *Error {
	return newError(KindQuorumUnavailable, message, cause)
}

// Timeout wraps cause as a replica-unreachable error.
func Timeout(message string, cause error) *Error { return newError(KindTimeout, message, cause) }

// Internal wraps cause as a store-failure error.
func Internal(message string, cause error) *Error { return newError(KindInternal, message, cause) }

// StatusCode maps err's Kind to the HTTP status spec §7 assigns it.
// Non-*Error values (unrecognized failures) map to 500.
func StatusCode(err error) int {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		return http.StatusInternalServerError
	}
	switch apiErr.Kind {
	case KindBadRequest:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindQuorumUnavailable:
		return http.StatusServiceUnavailable
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
