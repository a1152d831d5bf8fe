// Package apperr defines the error taxonomy shared by the chat pipeline.
// Every failure that can reach an HTTP response carries a Kind so handlers can
// choose a status code without string matching on wrapped errors.
package apperr

import (
	"errors"
	"strings"
)

// Kind classifies a pipeline failure.
type Kind string

const (
	// KindValidation is a missing or malformed required input.
	KindValidation Kind = "validation"
	// KindConfiguration is missing deployment configuration or credentials.
	KindConfiguration Kind = "configuration"
	// KindProvider is an embedding or completion failure, or an empty result.
	KindProvider Kind = "provider"
	// KindRetrieval is a similarity-search failure.
	KindRetrieval Kind = "retrieval"
	// KindStorage is an insert or update failure in the datastore.
	KindStorage Kind = "storage"
	// KindUnauthorized is a rejected or missing credential.
	KindUnauthorized Kind = "unauthorized"
)

// UnauthorizedMarker is the substring that maps any error to HTTP 401.
const UnauthorizedMarker = "Unauthorized"

// Error is a classified pipeline error.
type Error struct {
	// Kind is the failure class.
	Kind Kind
	// Msg is the human-readable description returned to clients.
	Msg string
	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface. The cause is appended after the
// message so upstream provider text (e.g. "401 Unauthorized") stays visible.
func (e *Error) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	if e.Msg == "" {
		return e.Err.Error()
	}
	return e.Msg + ": " + e.Err.Error()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// New returns an Error of the given kind with no cause.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap returns an Error of the given kind wrapping err.
// Returns nil when err is nil.
func Wrap(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf returns the Kind of the outermost *Error in err's chain, or the
// empty Kind when err carries no classification.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsUnauthorized reports whether err should be surfaced as an authorization
// failure: either it is classified as such or its text carries the marker.
func IsUnauthorized(err error) bool {
	if err == nil {
		return false
	}
	return Is(err, KindUnauthorized) || strings.Contains(err.Error(), UnauthorizedMarker)
}
