// Package models contains domain models for conductor.
package models

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind is the machine-readable classification carried by every
// error the state machines return. Handlers map kinds to HTTP status
// codes; executor failures are recorded in the data model instead of
// being raised through this taxonomy.
type ErrorKind string

const (
	KindInvalidArgument ErrorKind = "invalid_argument"
	KindNotFound        ErrorKind = "not_found"
	KindInvalidState    ErrorKind = "invalid_state"
	KindConflict        ErrorKind = "conflict"
	KindInternal        ErrorKind = "internal"
)

// Error is a kinded error with a human-readable detail.
type Error struct {
	Kind   ErrorKind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.Err }

// InvalidArgumentf builds an invalid_argument error.
func InvalidArgumentf(format string, args ...any) error {
	return &Error{Kind: KindInvalidArgument, Detail: fmt.Sprintf(format, args...)}
}

// NotFoundf builds a not_found error.
func NotFoundf(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Detail: fmt.Sprintf(format, args...)}
}

// InvalidStatef builds an invalid_state error.
func InvalidStatef(format string, args ...any) error {
	return &Error{Kind: KindInvalidState, Detail: fmt.Sprintf(format, args...)}
}

// Conflictf builds a conflict error.
func Conflictf(format string, args ...any) error {
	return &Error{Kind: KindConflict, Detail: fmt.Sprintf(format, args...)}
}

// Internalf wraps an unexpected storage or runtime error.
func Internalf(err error, format string, args ...any) error {
	return &Error{Kind: KindInternal, Detail: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the kind from err; unclassified errors are internal.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// DetailOf extracts the human-readable detail from err.
func DetailOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Detail
	}
	return err.Error()
}

// HTTPStatus maps an error kind to its response status code.
func HTTPStatus(kind ErrorKind) int {
	switch kind {
	case KindInvalidArgument:
		return http.StatusUnprocessableEntity
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidState, KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
