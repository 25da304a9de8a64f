package adapter

import "errors"

var (
	ErrBadRequest          = errors.New("bad request")
	ErrUnauthorized        = errors.New("client unauthorized")
	ErrForbidden           = errors.New("forbidden")
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("conflict")
	ErrTooManyRequests     = errors.New("too many requests")
	ErrBadGateway          = errors.New("bad gateway")
	ErrInternalServerError = errors.New("internal server error")
)

// ResponseError is a non-2xx answer of the sync server. It matches the
// sentinel of its status code with errors.Is.
type ResponseError struct {
	StatusCode int
	Message    string

	// UnauthorizedEntityIDs is set on 403 push rejections.
	UnauthorizedEntityIDs []string

	// RetryAfter is the Retry-After header of a 429, in seconds.
	RetryAfter int

	sentinel error
}

// NewResponseError builds the error of a statusCode answer.
func NewResponseError(statusCode int, message string) *ResponseError {
	return &ResponseError{StatusCode: statusCode, Message: message, sentinel: statusErrors[statusCode]}
}

func (e *ResponseError) Error() string {
	if e.sentinel == nil {
		return e.Message
	}
	return e.sentinel.Error() + ": " + e.Message
}

func (e *ResponseError) Unwrap() error {
	return e.sentinel
}
