package jilt

import (
	"errors"
	"fmt"
)

// ErrAccountCancelled is returned when the remote side reports the account as
// cancelled (HTTP 410). The client invokes the deactivation callback before
// returning it; callers treat it as a terminal, non-retryable condition.
var ErrAccountCancelled = errors.New("jilt account cancelled")

// APIError is a non-2xx response from the remote API, or a transport failure
// (Status 0). Message carries the remote error.message when the body had one.
type APIError struct {
	Status  int
	Message string
	cause   error
}

func (e *APIError) Error() string {
	return e.Message
}

func (e *APIError) Unwrap() error {
	return e.cause
}

func newAPIError(status int, reason string) *APIError {
	return &APIError{
		Status:  status,
		Message: fmt.Sprintf("HTTP code %d - %s", status, reason),
	}
}

func newTransportError(err error) *APIError {
	return &APIError{
		Status:  0,
		Message: err.Error(),
		cause:   err,
	}
}
