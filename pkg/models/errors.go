package models

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies failures for retry decisions and HTTP mapping.
type ErrorKind string

const (
	ErrBadRequest       ErrorKind = "bad_request"
	ErrUnauthenticated  ErrorKind = "unauthenticated"
	ErrUnauthorized     ErrorKind = "unauthorized"
	ErrRateLimited      ErrorKind = "rate_limited"
	ErrForbidden        ErrorKind = "forbidden"
	ErrDependencyFailed ErrorKind = "dependency_failed"
	ErrLLMUnavailable   ErrorKind = "llm_unavailable"
	ErrTimeout          ErrorKind = "timeout"
	ErrInternal         ErrorKind = "internal"
)

// Error is the typed error every component returns. The orchestrator is the
// single place that converts these into user-visible responses.
type Error struct {
	Kind ErrorKind
	Msg  string
	Hint string
	Err  error
}

// NewError creates a typed error with the given kind and message.
func NewError(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// WrapError wraps an underlying error with a kind.
func WrapError(kind ErrorKind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// WithHint attaches a user-facing hint and returns the error.
func (e *Error) WithHint(hint string) *Error {
	e.Hint = hint
	return e
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of err, or ErrInternal for untyped errors.
func KindOf(err error) ErrorKind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return ErrInternal
}

// IsRetryable reports whether the orchestrator should retry the failure.
// Only dependency failures and timeouts are transient; everything else is
// permanent by the rules in the error-handling design.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case ErrDependencyFailed, ErrTimeout:
		return true
	default:
		return false
	}
}

// HTTPStatus maps an error kind to the HTTP status the surface reports.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case ErrBadRequest:
		return http.StatusBadRequest
	case ErrUnauthenticated:
		return http.StatusUnauthorized
	case ErrUnauthorized, ErrForbidden:
		return http.StatusForbidden
	case ErrRateLimited:
		return http.StatusTooManyRequests
	case ErrDependencyFailed, ErrLLMUnavailable:
		return http.StatusBadGateway
	case ErrTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// UserInfo renders the typed error as the response envelope.
func UserInfo(err error) *ErrorInfo {
	var re *Error
	if errors.As(err, &re) {
		info := &ErrorInfo{Type: string(re.Kind), Hint: re.Hint}
		return info
	}
	return &ErrorInfo{Type: string(ErrInternal)}
}
