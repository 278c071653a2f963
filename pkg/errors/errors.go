package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Code is the machine-readable part of a Signal.
type Code string

const (
	CodeAuthRequired   Code = "AUTH_REQUIRED"
	CodeAuthFailed     Code = "AUTH_FAILED"
	CodeSocketError    Code = "SOCKET_ERROR"
	CodeInvalidRequest Code = "INVALID_REQUEST"
	CodeForbidden      Code = "FORBIDDEN"
	CodeNotFound       Code = "NOT_FOUND"
	CodeUnknownEvent   Code = "UNKNOWN_EVENT"
	CodeRateLimited    Code = "RATE_LIMITED"
	CodeUnavailable    Code = "SERVICE_UNAVAILABLE"
)

const (
	authRequiredMessage = "Authentication required"
	authFailedMessage   = "Authentication failed"
	socketErrorMessage  = "Internal socket error"
)

// Signal is a failure value that is safe to send to a client.
// It is built at the failure site and consumed at the boundary,
// either written to the connection or logged.
type Signal struct {
	Message string `json:"message"`
	Code    Code   `json:"code"`
	Data    any    `json:"data,omitempty"`

	cause error
}

// Error implements error interface
func (s *Signal) Error() string {
	if s.cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", s.Code, s.Message, s.cause)
	}
	return fmt.Sprintf("%s: %s", s.Code, s.Message)
}

// Unwrap returns the underlying error
func (s *Signal) Unwrap() error {
	return s.cause
}

// WithData returns a copy of the signal carrying data.
func (s *Signal) WithData(data any) *Signal {
	cp := *s
	cp.Data = data
	return &cp
}

// HTTPStatus maps the code onto the status used when the signal ends an HTTP exchange.
func (s *Signal) HTTPStatus() int {
	switch s.Code {
	case CodeAuthRequired, CodeAuthFailed:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeInvalidRequest, CodeUnknownEvent:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func New(code Code, message string) *Signal {
	return &Signal{Code: code, Message: message}
}

// Wrap keeps err as the cause. The cause is never serialized.
func Wrap(err error, code Code, message string) *Signal {
	return &Signal{Code: code, Message: message, cause: err}
}

func AuthRequired() *Signal {
	return New(CodeAuthRequired, authRequiredMessage)
}

// AuthFailed carries the same message whatever check failed.
func AuthFailed(cause error) *Signal {
	return Wrap(cause, CodeAuthFailed, authFailedMessage)
}

func InvalidRequest(message string) *Signal {
	return New(CodeInvalidRequest, message)
}

func Forbidden(message string) *Signal {
	return New(CodeForbidden, message)
}

func NotFound(resource string) *Signal {
	return New(CodeNotFound, fmt.Sprintf("%s not found", resource))
}

func UnknownEvent(event string) *Signal {
	return New(CodeUnknownEvent, fmt.Sprintf("unknown event: %s", event))
}

func RateLimited() *Signal {
	return New(CodeRateLimited, "rate limit exceeded")
}

func SocketError(cause error) *Signal {
	return Wrap(cause, CodeSocketError, socketErrorMessage)
}

// IsSignal checks if err carries a Signal anywhere in its chain
func IsSignal(err error) bool {
	var s *Signal
	return stderrors.As(err, &s)
}

// From extracts the Signal from err's chain. Errors without one become a
// SOCKET_ERROR so internals never leak to clients.
func From(err error) *Signal {
	if err == nil {
		return nil
	}
	var s *Signal
	if stderrors.As(err, &s) {
		return s
	}
	return SocketError(err)
}
