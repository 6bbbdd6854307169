// Package errors provides severity-aware error types.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Severity indicates error impact level.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
	SeverityFatal
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error is a structured error with context.
type Error struct {
	Code        string   `json:"code"`
	Message     string   `json:"message"`
	Severity    Severity `json:"severity"`
	ResourceID  string   `json:"resource_id,omitempty"`
	Recoverable bool     `json:"recoverable"`
}

func (e *Error) Error() string {
	if e.ResourceID != "" {
		return fmt.Sprintf("[%s] %s: %s (resource: %s)", e.Severity, e.Code, e.Message, e.ResourceID)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Severity, e.Code, e.Message)
}

// Error codes
const (
	ErrCodeEmptyInputs         = "EMPTY_INPUTS"
	ErrCodeInvalidRunCount     = "INVALID_RUN_COUNT"
	ErrCodeNegativeWeight      = "NEGATIVE_WEIGHT"
	ErrCodeInvalidDistribution = "INVALID_DISTRIBUTION"
	ErrCodeHistoryUnavailable  = "HISTORY_UNAVAILABLE"
	ErrCodeNonFiniteResult     = "NON_FINITE_RESULT"
)

// NewValidationError creates a non-recoverable input validation error.
func NewValidationError(code, message string) *Error {
	return &Error{
		Code:        code,
		Message:     message,
		Severity:    SeverityError,
		Recoverable: false,
	}
}

// NewEmptyInputsError is returned when a simulation has nothing to sample.
func NewEmptyInputsError() *Error {
	return NewValidationError(ErrCodeEmptyInputs, "at least one uncertainty input is required")
}

// NewHistoryUnavailableError wraps a history lookup failure. The caller is
// expected to continue without seasonal adjustment.
func NewHistoryUnavailableError(resourceID string, cause error) *Error {
	return &Error{
		Code:        ErrCodeHistoryUnavailable,
		Message:     fmt.Sprintf("cost history lookup failed: %v", cause),
		Severity:    SeverityWarning,
		ResourceID:  resourceID,
		Recoverable: true,
	}
}

// HasCode reports whether err (or anything it wraps) is an *Error with code.
func HasCode(err error, code string) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsValidation reports whether err is a non-recoverable input error.
func IsValidation(err error) bool {
	var e *Error
	if !stderrors.As(err, &e) {
		return false
	}
	return !e.Recoverable && e.Severity >= SeverityError
}
