package operations

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType classifies workflow errors for retry and recovery decisions.
type ErrorType string

const (
	ErrorTypeValidation      ErrorType = "validation"
	ErrorTypeTransient       ErrorType = "transient"
	ErrorTypeFatalSession    ErrorType = "fatal_session"
	ErrorTypeDownloadTimeout ErrorType = "download_timeout"
	ErrorTypeCancellation    ErrorType = "cancellation"
)

// OperationError carries the state a chunk failed in together with its
// classification.
type OperationError struct {
	Type      ErrorType `json:"type"`
	State     State     `json:"state,omitempty"`
	Message   string    `json:"message"`
	Cause     error     `json:"-"`
	Retryable bool      `json:"retryable"`
}

func (e *OperationError) Error() string {
	if e.State != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Type, e.State, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

func (e *OperationError) Unwrap() error { return e.Cause }

// NewTransientError wraps a UI failure that exhausted its in-place retries.
func NewTransientError(state State, cause error) *OperationError {
	return &OperationError{
		Type:      ErrorTypeTransient,
		State:     state,
		Message:   "action failed after retries",
		Cause:     cause,
		Retryable: true,
	}
}

// NewFatalSessionError wraps a browser-session failure. The chunk is lost
// and the session must be recreated before the next one.
func NewFatalSessionError(state State, cause error) *OperationError {
	return &OperationError{
		Type:      ErrorTypeFatalSession,
		State:     state,
		Message:   "browser session failed",
		Cause:     cause,
		Retryable: false,
	}
}

// NewDownloadTimeoutError reports that no stable staged file appeared within
// the wait budget. Retryable: the workflow re-enters at the export trigger.
func NewDownloadTimeoutError(wait time.Duration) *OperationError {
	return &OperationError{
		Type:      ErrorTypeDownloadTimeout,
		State:     StateAwaitingFile,
		Message:   fmt.Sprintf("no stable download appeared within %s", wait),
		Retryable: true,
	}
}

// NewCancellationError records that the run was cancelled mid-chunk.
func NewCancellationError(state State, cause error) *OperationError {
	return &OperationError{
		Type:      ErrorTypeCancellation,
		State:     state,
		Message:   "run cancelled",
		Cause:     cause,
		Retryable: false,
	}
}

// IsRetryable reports whether err may be retried at the workflow level.
func IsRetryable(err error) bool {
	var oe *OperationError
	if errors.As(err, &oe) {
		return oe.Retryable
	}
	return false
}

// GetErrorType extracts the classification, defaulting to transient for
// unwrapped errors.
func GetErrorType(err error) ErrorType {
	var oe *OperationError
	if errors.As(err, &oe) {
		return oe.Type
	}
	return ErrorTypeTransient
}

// IsFatalSession reports whether err means the browser session is gone.
func IsFatalSession(err error) bool {
	return GetErrorType(err) == ErrorTypeFatalSession
}
