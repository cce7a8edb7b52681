// Package apperr defines the error taxonomy shared by the service packages and translated to HTTP statuses
// by the server.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for transport mapping.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindUnauthorized Kind = "unauthorized"
	KindForbidden    Kind = "forbidden"
	KindNotFound     Kind = "not_found"
	KindConflict     Kind = "conflict"
	KindUpstream     Kind = "upstream"
)

var defaultMessages = map[Kind]string{
	KindValidation:   "Invalid request",
	KindUnauthorized: "Not authenticated",
	KindForbidden:    "Not authorized",
	KindNotFound:     "Not found",
	KindConflict:     "Conflict",
	KindUpstream:     "Internal Server Error",
}

// Error carries a kind, a machine code of the form "<operation>.<reason>", a message that is safe to return
// to clients, and the underlying cause which is only ever logged.
type Error struct {
	kind    Kind
	code    string
	message string
	err     error
}

func (e *Error) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *Error) Unwrap() error {
	return e.err
}

func (e *Error) Code() string {
	return e.code
}

func (e *Error) Kind() Kind {
	return e.kind
}

// Message returns the client-safe message.
func (e *Error) Message() string {
	if e.message != "" {
		return e.message
	}
	if message, ok := defaultMessages[e.kind]; ok {
		return message
	}
	return defaultMessages[KindUpstream]
}

// New builds an *Error. An empty message falls back to the kind's generic message.
func New(kind Kind, operation, reason, message string, cause error) error {
	return &Error{
		kind:    kind,
		code:    fmt.Sprintf("%s.%s", operation, reason),
		message: message,
		err:     cause,
	}
}

// Upstream is shorthand for failures of a collaborator (store, identity provider, object store).
func Upstream(operation, reason string, cause error) error {
	return New(KindUpstream, operation, reason, "", cause)
}

// As extracts the *Error from an error chain.
func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// KindOf returns the kind of err, treating untyped errors as upstream failures.
func KindOf(err error) Kind {
	if target, ok := As(err); ok {
		return target.kind
	}
	return KindUpstream
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	target, ok := As(err)
	return ok && target.kind == kind
}
