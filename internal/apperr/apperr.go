// Package apperr defines the error kinds surfaced by the chat service and
// their mapping onto HTTP status codes.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error by where it originated.
type Kind string

const (
	KindUnknown    Kind = "unknown"
	KindValidation Kind = "validation"
	KindUpstream   Kind = "upstream"
	KindStorage    Kind = "storage"
)

// Error is the single error type used across packages. The kind decides the
// HTTP status, the message is what the client sees.
type Error struct {
	kind    Kind
	message string
	err     error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.message, e.err)
	}
	return e.message
}

func (e *Error) Unwrap() error {
	return e.err
}

// Kind reports the error classification.
func (e *Error) Kind() Kind {
	return e.kind
}

// Message returns the client-facing text without the wrapped cause.
func (e *Error) Message() string {
	return e.message
}

// Validation reports bad input. It never wraps a cause.
func Validation(format string, args ...any) error {
	return &Error{kind: KindValidation, message: fmt.Sprintf(format, args...)}
}

// Upstream reports a provider failure.
func Upstream(message string, cause error) error {
	return &Error{kind: KindUpstream, message: message, err: cause}
}

// Storage reports a persistence failure.
func Storage(message string, cause error) error {
	return &Error{kind: KindStorage, message: message, err: cause}
}

// KindOf returns the kind of the first *Error in the chain.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps an error onto a response status.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the text to show a client: the message of the first
// *Error in the chain, or the raw error text otherwise.
func PublicMessage(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.message
	}
	return err.Error()
}
