// Package domain holds the error and pagination types shared by service layers.
package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a domain error independent of transport.
type ErrorKind string

const (
	KindNotFound     ErrorKind = "not_found"
	KindValidation   ErrorKind = "validation"
	KindForbidden    ErrorKind = "forbidden"
	KindConflict     ErrorKind = "conflict"
	KindInvalidState ErrorKind = "invalid_state"
	KindInternal     ErrorKind = "internal"
)

// Error is a classified domain error.
type Error struct {
	Kind    ErrorKind
	Message string
}

// NewError creates an error of the given kind.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func (e *Error) Error() string {
	return e.Message
}

// NewNotFoundError reports a missing entity.
func NewNotFoundError(entity, id string) *Error {
	return NewError(KindNotFound, fmt.Sprintf("%s not found: %s", entity, id))
}

// NewValidationError reports invalid input.
func NewValidationError(message string) *Error {
	return NewError(KindValidation, message)
}

// NewForbiddenError reports an ownership or role violation.
func NewForbiddenError(message string) *Error {
	return NewError(KindForbidden, message)
}

// NewConflictError reports a write that lost against a concurrent change.
func NewConflictError(message string) *Error {
	return NewError(KindConflict, message)
}

// NewInvalidStateError reports a disallowed state transition.
func NewInvalidStateError(from, to string) *Error {
	return NewError(KindInvalidState, fmt.Sprintf("cannot transition from %s to %s", from, to))
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}
