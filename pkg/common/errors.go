package common

import (
	"errors"
	"net/http"
)

var (
	ErrNotFound       = errors.New("resource not found")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")
)

// AppError represents an application error with HTTP status code
type AppError struct {
	Code      int    `json:"code"`
	ErrorCode string `json:"error_code,omitempty"`
	Message   string `json:"message"`
	Err       error  `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NewNotFoundError(message string, err error) *AppError {
	if err == nil {
		err = ErrNotFound
	}
	return &AppError{Code: http.StatusNotFound, ErrorCode: "not_found", Message: message, Err: err}
}

func NewBadRequestError(message string, err error) *AppError {
	if err == nil {
		err = ErrBadRequest
	}
	return &AppError{Code: http.StatusBadRequest, ErrorCode: "bad_request", Message: message, Err: err}
}

// NewGoneError reports a resource that existed but has been closed
func NewGoneError(message string, err error) *AppError {
	return &AppError{Code: http.StatusGone, ErrorCode: "gone", Message: message, Err: err}
}

func NewInternalError(message string, err error) *AppError {
	if err == nil {
		err = ErrInternalServer
	}
	return &AppError{Code: http.StatusInternalServerError, ErrorCode: "internal", Message: message, Err: err}
}

// NewTooManyRequestsError reports a caller that exceeded its rate limit
func NewTooManyRequestsError(message string) *AppError {
	return &AppError{Code: http.StatusTooManyRequests, ErrorCode: "rate_limited", Message: message}
}

// NewServiceUnavailableError reports a request refused for lack of capacity
func NewServiceUnavailableError(message string, err error) *AppError {
	return &AppError{Code: http.StatusServiceUnavailable, ErrorCode: "capacity_exceeded", Message: message, Err: err}
}
