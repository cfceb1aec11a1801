package qa

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	CodeValidation   ErrorCode = "ValidationError"
	CodeNotFound     ErrorCode = "NotFound"
	CodeUnauthorized ErrorCode = "Unauthorized"
	CodeConflict     ErrorCode = "Conflict"
	CodeRateLimited  ErrorCode = "RateLimited"
	CodeInternal     ErrorCode = "Internal"
)

// Error is the error type returned by every store operation. Err carries
// the underlying cause and is never shown to clients.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Message, e.Err.Error())
	}

	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// StatusCode maps the error code to the HTTP status used for REST responses
// and websocket response codes.
func (e *Error) StatusCode() int {
	switch e.Code {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeConflict:
		return http.StatusConflict
	case CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func ValidationError(format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

func NotFoundError(what string) *Error {
	return &Error{Code: CodeNotFound, Message: what + " not found"}
}

func UnauthorizedError() *Error {
	return &Error{Code: CodeUnauthorized, Message: "unauthorized"}
}

func ConflictError(format string, args ...any) *Error {
	return &Error{Code: CodeConflict, Message: fmt.Sprintf(format, args...)}
}

func RateLimitedError() *Error {
	return &Error{Code: CodeRateLimited, Message: "rate limit exceeded"}
}

func InternalError(err error) *Error {
	return &Error{Code: CodeInternal, Message: "internal server error", Err: err}
}

// AsError converts any error into an *Error. Errors that are not already
// domain errors become Internal.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}

	var qaErr *Error
	if errors.As(err, &qaErr) {
		return qaErr
	}

	return InternalError(err)
}

// IsCode reports whether err is a domain error with the given code.
func IsCode(err error, code ErrorCode) bool {
	var qaErr *Error
	return errors.As(err, &qaErr) && qaErr.Code == code
}
