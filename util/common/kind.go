package common

import (
	"errors"
	"net/http"
)

// Kind is the broad class of a failure, which decides the HTTP status.
type Kind int

const (
	KindInternal Kind = iota
	KindInvalidInput
	KindUnauthenticated
	KindForbidden
	KindNotFound
	KindGateway
)

// Machine-readable error codes returned in the response envelope.
const (
	CodeInvalidInput        = "InvalidInput"
	CodeInvalidStatus       = "InvalidStatus"
	CodeInvalidPrice        = "InvalidPrice"
	CodeMissingLink         = "MissingLink"
	CodeMissingContestInfo  = "MissingContestInfo"
	CodePaymentNotCompleted = "PaymentNotCompleted"
	CodeUnauthenticated     = "Unauthenticated"
	CodeForbidden           = "Forbidden"
	CodeNotRegistered       = "NotRegistered"
	CodeNotFound            = "NotFound"
	CodeContestNotFound     = "ContestNotFound"
	CodeGatewayError        = "GatewayError"
	CodeInternalError       = "InternalError"
)

// Error is a failure that is safe to show to the caller.
type Error struct {
	Kind Kind
	Code string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func newKind(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Msg: msg}
}

func InvalidInput(msg string) *Error { return newKind(KindInvalidInput, CodeInvalidInput, msg) }

// Invalid is a 400 with a specific code such as CodeInvalidStatus.
func Invalid(code, msg string) *Error { return newKind(KindInvalidInput, code, msg) }

func Unauthenticated(msg string) *Error {
	return newKind(KindUnauthenticated, CodeUnauthenticated, msg)
}

func Forbidden(msg string) *Error { return newKind(KindForbidden, CodeForbidden, msg) }

func NotRegistered(msg string) *Error { return newKind(KindForbidden, CodeNotRegistered, msg) }

func NotFound(msg string) *Error { return newKind(KindNotFound, CodeNotFound, msg) }

func ContestNotFound() *Error {
	return newKind(KindNotFound, CodeContestNotFound, "contest not found")
}

// Gateway wraps a payment provider failure.
func Gateway(err error) *Error {
	return &Error{Kind: KindGateway, Code: CodeGatewayError, Msg: "payment gateway error", Err: err}
}

// Internal wraps an unexpected failure; the cause is logged, not returned to the client.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Code: CodeInternalError, Msg: "internal error", Err: err}
}

// AsError returns err as an *Error, classifying unknown errors as internal.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err)
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code string) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

// HTTPStatus maps a kind to its response status.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindGateway:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
