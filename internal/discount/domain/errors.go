package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound      = errors.New("not_found")
	ErrDuplicateCode = errors.New("duplicate_code")
)

// ValidationError carries a request-level message the API surface returns
// verbatim with a 422 status.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func NewMissingParamsError(params []string) *ValidationError {
	return &ValidationError{Message: "Missing required params: " + strings.Join(params, ", ")}
}

func NewInvalidTypeError() *ValidationError {
	return &ValidationError{
		Message: fmt.Sprintf("Invalid discount type - the type must be any of these: %s, %s", TypePercent, TypeFlat),
	}
}
