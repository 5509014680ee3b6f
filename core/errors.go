package core

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError is an operational error carrying the HTTP status it maps to.
// Services return these unchanged so handlers can translate directly;
// anything else is wrapped as an internal error at the boundary.
type APIError struct {
	Status   int
	Message  string
	Messages []string // set for validation errors with multiple field failures
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("api error (status %d)", e.Status)
}

func NewValidationError(messages ...string) *APIError {
	if len(messages) == 1 {
		return &APIError{Status: http.StatusBadRequest, Message: messages[0]}
	}
	return &APIError{Status: http.StatusBadRequest, Message: "validation failed", Messages: messages}
}

func NewUnauthorizedError(message string) *APIError {
	return &APIError{Status: http.StatusUnauthorized, Message: message}
}

func NewForbiddenError(message string) *APIError {
	return &APIError{Status: http.StatusForbidden, Message: message}
}

func NewNotFoundError(message string) *APIError {
	return &APIError{Status: http.StatusNotFound, Message: message}
}

func NewConflictError(message string) *APIError {
	return &APIError{Status: http.StatusConflict, Message: message}
}

func NewInternalError(message string) *APIError {
	return &APIError{Status: http.StatusInternalServerError, Message: message}
}

// AsAPIError unwraps err into an *APIError, or wraps it as an internal error.
// The original message is kept for the log line, never for the client.
func AsAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return NewInternalError("internal server error")
}
