package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for the HTTP layer.
type Kind string

const (
	KindValidation  Kind = "validation"
	KindNotFound    Kind = "not_found"
	KindForbidden   Kind = "forbidden"
	KindEntitlement Kind = "entitlement"
	KindUpstream    Kind = "upstream"
	KindUnavailable Kind = "unavailable"
	KindInternal    Kind = "internal"
)

// Error is an error with a Kind and a client-safe message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New returns an Error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap returns an Error of the given kind wrapping err.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

func Validation(msg string) *Error  { return New(KindValidation, msg) }
func NotFound(msg string) *Error    { return New(KindNotFound, msg) }
func Forbidden(msg string) *Error   { return New(KindForbidden, msg) }
func Unavailable(msg string) *Error { return New(KindUnavailable, msg) }

// KindOf returns the Kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// MessageOf returns the client-safe message for err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}

// HTTPStatus maps a Kind to a response status.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindEntitlement:
		return http.StatusPaymentRequired
	case KindUpstream:
		return http.StatusBadGateway
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Code is the machine-readable error code rendered in response bodies.
func Code(kind Kind) string {
	switch kind {
	case KindValidation:
		return "invalid_request"
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindEntitlement:
		return "billing_required"
	case KindUpstream:
		return "upstream_error"
	case KindUnavailable:
		return "service_unavailable"
	default:
		return "internal_server_error"
	}
}
