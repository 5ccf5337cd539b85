// Package apperrors provides the typed error kinds shared by the registry,
// generation manager and sandbox, and their projection onto HTTP status
// codes and response bodies.
package apperrors

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Kind enumerates the error categories defined by the service contract.
type Kind string

const (
	Validation      Kind = "VALIDATION"
	Unauthorized    Kind = "UNAUTHORIZED"
	Authorization   Kind = "AUTHORIZATION"
	NotFound        Kind = "NOT_FOUND"
	Conflict        Kind = "CONFLICT"
	Cancelled       Kind = "CANCELLED"
	Internal        Kind = "INTERNAL"
	NotLoaded       Kind = "NOT_LOADED"
	Timeout         Kind = "TIMEOUT"
	UpstreamFailure Kind = "UPSTREAM_FAILURE"
)

var statusByKind = map[Kind]int{
	Validation:      http.StatusBadRequest,
	Unauthorized:    http.StatusUnauthorized,
	Authorization:   http.StatusForbidden,
	NotFound:        http.StatusNotFound,
	Conflict:        http.StatusConflict,
	Cancelled:       499,
	Internal:        http.StatusInternalServerError,
	NotLoaded:       http.StatusServiceUnavailable,
	Timeout:         http.StatusGatewayTimeout,
	UpstreamFailure: http.StatusBadGateway,
}

// Error is the error type every core component returns. The HTTP layer
// projects it into a status code and JSON body; components never know
// about HTTP.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.cause }

// StatusCode returns the HTTP status this error kind maps to.
func (e *Error) StatusCode() int {
	if code, ok := statusByKind[e.Kind]; ok {
		return code
	}
	return http.StatusInternalServerError
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

func newHelper(kind Kind) func(string) *Error {
	return func(message string) *Error { return New(kind, message) }
}

var (
	NewValidation      = newHelper(Validation)
	NewUnauthorized    = newHelper(Unauthorized)
	NewAuthorization   = newHelper(Authorization)
	NewNotFound        = newHelper(NotFound)
	NewConflict        = newHelper(Conflict)
	NewCancelled       = newHelper(Cancelled)
	NewInternal        = newHelper(Internal)
	NewNotLoaded       = newHelper(NotLoaded)
	NewTimeout         = newHelper(Timeout)
	NewUpstreamFailure = newHelper(UpstreamFailure)
)

// As extracts an *Error from err, converting unknown errors to INTERNAL.
func As(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return &Error{Kind: Internal, Message: err.Error(), cause: err}
}

// Abort writes the error's HTTP projection to the response and aborts the
// gin context, writing a {detail} response body.
func Abort(c *gin.Context, err error) {
	appErr := As(err)
	_ = c.Error(appErr)
	c.AbortWithStatusJSON(appErr.StatusCode(), gin.H{"detail": appErr.Message})
}

// ErrorCode returns the stable integer identifier recorded on a failed
// download's progress record, reusing the error's own HTTP status code.
func (e *Error) ErrorCode() int {
	return e.StatusCode()
}
