package msgflow

import (
	"errors"
	"fmt"
)

// Error represents a msgflow error with categorization.
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Error codes for msgflow operations.
const (
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodeConfiguration = "CONFIGURATION_ERROR"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeTransition    = "TRANSITION_ERROR"
	ErrCodeTimeout       = "PROCESSING_TIMEOUT"
)

// ErrNotFound is returned when a message ID has no known StateMachine.
var ErrNotFound = &Error{
	Code:    ErrCodeNotFound,
	Message: "message not found",
}

// NewError creates a new Error with the given code and message.
func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NewErrorWithCause creates a new Error wrapping an underlying error.
func NewErrorWithCause(code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Err: cause}
}

// IsNotFound reports whether err is (or wraps) ErrNotFound.
func IsNotFound(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == ErrCodeNotFound
	}
	return errors.Is(err, ErrNotFound)
}
