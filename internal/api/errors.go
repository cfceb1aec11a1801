package api

import "github.com/npezzotti/go-liveqa/internal/qa"

// ApiError is the failure half of the response envelope.
type ApiError struct {
	StatusCode int    `json:"-"`
	Success    bool   `json:"success"`
	Code       string `json:"error"`
	Message    string `json:"message"`
	Err        error  `json:"-"`
}

func (e *ApiError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}

	return e.Message
}

func (e *ApiError) Unwrap() error {
	return e.Err
}

// NewApiError converts a domain error. Anything that is not a *qa.Error is
// reported as an internal error.
func NewApiError(err error) *ApiError {
	qaErr := qa.AsError(err)
	return &ApiError{
		StatusCode: qaErr.StatusCode(),
		Code:       string(qaErr.Code),
		Message:    qaErr.Message,
		Err:        qaErr.Err,
	}
}

func NewBadRequestError(message string) *ApiError {
	return NewApiError(qa.ValidationError("%s", message))
}

func NewNotFoundError(what string) *ApiError {
	return NewApiError(qa.NotFoundError(what))
}

func NewUnauthorizedError() *ApiError {
	return NewApiError(qa.UnauthorizedError())
}

func NewInternalServerError(err error) *ApiError {
	return NewApiError(qa.InternalError(err))
}
