package evaluator

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes evaluation errors.
type ErrorCode string

const (
	// ErrCodeEvaluationViolation indicates a compute function called back
	// into the evaluator.
	ErrCodeEvaluationViolation ErrorCode = "EVALUATION_VIOLATION"

	// ErrCodeComputeFailed indicates a compute function returned an error.
	ErrCodeComputeFailed ErrorCode = "COMPUTE_FAILED"

	// ErrCodeInvalidDependency indicates a malformed getter or keypath.
	ErrCodeInvalidDependency ErrorCode = "INVALID_DEPENDENCY"
)

// Error is returned by Evaluate.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Getter describes the getter being evaluated, if any.
	Getter string

	// Err is the underlying cause (compute failures).
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Getter != "" {
		msg += fmt.Sprintf(" (getter=%s)", e.Getter)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsEvaluationViolation returns true if err is a reentrant evaluation error.
// Uses errors.As to handle wrapped errors.
func IsEvaluationViolation(err error) bool {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Code == ErrCodeEvaluationViolation
	}
	return false
}

// IsComputeError returns true if err came from a failing compute function.
func IsComputeError(err error) bool {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Code == ErrCodeComputeFailed
	}
	return false
}

func newViolation() *Error {
	return &Error{
		Code:    ErrCodeEvaluationViolation,
		Message: "evaluate called from inside a compute function",
	}
}
