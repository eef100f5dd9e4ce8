package reactor

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes reactor errors.
type ErrorCode string

const (
	// ErrCodeContractViolation indicates a store broke its contract: an
	// undefined return, a non-structural initial or reset value, or an
	// empty action type in strict mode.
	ErrCodeContractViolation ErrorCode = "CONTRACT_VIOLATION"

	// ErrCodeReentrancyViolation indicates Dispatch or Batch was called
	// while a dispatch was already in progress.
	ErrCodeReentrancyViolation ErrorCode = "REENTRANCY_VIOLATION"

	// ErrCodeUnknownStore indicates a reference to an unregistered store.
	ErrCodeUnknownStore ErrorCode = "UNKNOWN_STORE"

	// ErrCodeDuplicateStore indicates a second registration under an id.
	ErrCodeDuplicateStore ErrorCode = "DUPLICATE_STORE"

	// ErrCodeInvalidGetter indicates a malformed getter or keypath.
	ErrCodeInvalidGetter ErrorCode = "INVALID_GETTER"
)

// Error represents a failure detected by the reactor itself. Errors
// returned by user reducers and observer handlers are passed through
// verbatim and never wrapped in Error.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Op is the reactor operation that failed (dispatch, reset, ...).
	Op string

	// Message is a human-readable description.
	Message string

	// StoreID identifies the offending store, if any.
	StoreID string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s: %s", e.Code, e.Op, e.Message)
	if e.StoreID != "" {
		msg += fmt.Sprintf(" (store=%s)", e.StoreID)
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

// IsContractViolation returns true if err is a store contract violation.
// Uses errors.As to handle wrapped errors.
func IsContractViolation(err error) bool {
	return hasCode(err, ErrCodeContractViolation)
}

// IsReentrancyViolation returns true if err is a nested dispatch error.
func IsReentrancyViolation(err error) bool {
	return hasCode(err, ErrCodeReentrancyViolation)
}

// IsUnknownStore returns true if err references an unregistered store.
func IsUnknownStore(err error) bool {
	return hasCode(err, ErrCodeUnknownStore)
}

func hasCode(err error, code ErrorCode) bool {
	var re *Error
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

func newContractError(op, storeID, message string) *Error {
	return &Error{Code: ErrCodeContractViolation, Op: op, StoreID: storeID, Message: message}
}

func newReentrancyError(op, actionType string) *Error {
	msg := "cannot " + op + " in the middle of a dispatch"
	if actionType != "" {
		msg += fmt.Sprintf(" (action=%s)", actionType)
	}
	return &Error{Code: ErrCodeReentrancyViolation, Op: op, Message: msg}
}
