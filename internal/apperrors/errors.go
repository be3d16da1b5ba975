// Package apperrors declares the error taxonomy shared by every Cockpit
// component. Kinds map directly onto HTTP status codes at the API boundary
// but are meaningful purely in-process too (callers test an error's kind
// with Is).
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies which taxonomy bucket an error belongs to.
type Kind string

const (
	Validation          Kind = "validation"
	Authentication      Kind = "authentication"
	Authorization       Kind = "authorization"
	NotFound            Kind = "not_found"
	UpstreamUnavailable Kind = "upstream_unavailable"
	UpstreamConflict    Kind = "upstream_conflict"
	Cryptographic       Kind = "cryptographic"
	PartialFailure      Kind = "partial_failure"
)

// Error wraps an underlying cause with a taxonomy Kind, a caller-facing
// message, and an optional machine-readable code.
type Error struct {
	Kind    Kind
	Message string
	Code    string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatus maps a Kind to its conventional status code.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case Validation:
		return http.StatusBadRequest
	case Authentication:
		return http.StatusUnauthorized
	case Authorization:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case UpstreamConflict:
		return http.StatusConflict
	case UpstreamUnavailable:
		return http.StatusBadGateway
	case Cryptographic:
		return http.StatusInternalServerError
	case PartialFailure:
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}

// WWWAuthenticate reports the challenge header value for Authentication
// errors, empty otherwise.
func (e *Error) WWWAuthenticate() string {
	if e.Kind == Authentication {
		return `Bearer realm="cockpit"`
	}
	return ""
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func WithCode(err *Error, code string) *Error {
	err.Code = code
	return err
}

// Is reports whether err carries the given Kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind == kind
	}
	return false
}

// As is a thin convenience wrapper around errors.As for *Error.
func As(err error) (*Error, bool) {
	var ae *Error
	ok := errors.As(err, &ae)
	return ae, ok
}
