package replay

import (
	"errors"
	"fmt"
)

// Error represents a replay library error with categorization.
type Error struct {
	// Code is a machine-readable error code
	Code string

	// Message is a human-readable error message
	Message string

	// Err is the underlying error (if any)
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Error codes for replay operations.
const (
	// ErrCodeNoData indicates no data was found.
	ErrCodeNoData = "NO_DATA"

	// ErrCodeValidation indicates validation failed.
	ErrCodeValidation = "VALIDATION_ERROR"

	// ErrCodeConfiguration indicates invalid configuration.
	ErrCodeConfiguration = "CONFIGURATION_ERROR"

	// ErrCodeStorage indicates a persistence operation failed.
	ErrCodeStorage = "STORAGE_ERROR"

	// ErrCodeDelivery indicates a transport or handler delivery attempt failed.
	ErrCodeDelivery = "DELIVERY_ERROR"

	// ErrCodeNoHandler indicates no registered pattern matched the subject.
	ErrCodeNoHandler = "NO_HANDLER"
)

// Common errors.
var (
	// ErrNoData is returned when a query returns no results.
	// This is not necessarily an error condition in all cases.
	ErrNoData = &Error{
		Code:    ErrCodeNoData,
		Message: "no data found",
	}
)

// NewError creates a new Error with the given code and message.
func NewError(code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// NewErrorWithCause creates a new Error wrapping an underlying error.
func NewErrorWithCause(code, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     cause,
	}
}

// IsNoData checks if an error is ErrNoData.
func IsNoData(err error) bool {
	var replayErr *Error
	if errors.As(err, &replayErr) {
		return replayErr.Code == ErrCodeNoData
	}
	return errors.Is(err, ErrNoData)
}

// IsNoHandler checks if an error reports an unmatched subject.
func IsNoHandler(err error) bool {
	var replayErr *Error
	if errors.As(err, &replayErr) {
		return replayErr.Code == ErrCodeNoHandler
	}
	return false
}
