// Package errors defines the stable error code system for pushci.
package errors

import (
	"errors"
	"fmt"
	"io"
)

// Code is a stable error code string.
type Code string

// Error codes. Stable public contract: they appear in CLI output, event
// journal entries and commit status descriptions.
const (
	EUsage    Code = "E_USAGE"
	EInternal Code = "E_INTERNAL"

	// Workspace error codes
	EWorkspaceCreateFailed Code = "E_WORKSPACE_CREATE_FAILED" // path exists or mkdir rejected
	ECloneFailed           Code = "E_CLONE_FAILED"            // git clone non-zero exit or exec failure
	ECheckoutFailed        Code = "E_CHECKOUT_FAILED"         // git reset --hard <sha> failed
	ECleanupFailed         Code = "E_CLEANUP_FAILED"          // workspace could not be fully removed

	// Build tool error codes
	ELaunchFailed Code = "E_LAUNCH_FAILED" // build tool could not be started
	ETimedOut     Code = "E_TIMED_OUT"     // build tool exceeded its timeout and was killed

	// Log store error codes
	ELogStoreIO Code = "E_LOGSTORE_IO" // any filesystem failure while appending or indexing

	// Configuration and input error codes
	EInvalidConfig      Code = "E_INVALID_CONFIG"
	EInvalidPayload     Code = "E_INVALID_PAYLOAD"
	ESignatureMismatch  Code = "E_SIGNATURE_MISMATCH"
	EEventAppendFailed  Code = "E_EVENT_APPEND_FAILED"
	EStatusReportFailed Code = "E_STATUS_REPORT_FAILED"
	ENotifyFailed       Code = "E_NOTIFY_FAILED"

	// CLI outcome codes
	ECommitsFailed Code = "E_COMMITS_FAILED" // pushci build: at least one commit did not succeed
)

// CIError is the standard error type for pushci errors.
type CIError struct {
	Code    Code
	Msg     string
	Cause   error
	Details map[string]string // optional structured context
}

// Error returns the stable error format: "CODE: message".
func (e *CIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *CIError) Unwrap() error {
	return e.Cause
}

// ExitCodeError wraps an error with an explicit process exit code.
type ExitCodeError struct {
	Err  error
	Code int
}

func (e *ExitCodeError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit code %d", e.Code)
}

func (e *ExitCodeError) Unwrap() error {
	return e.Err
}

func (e *ExitCodeError) ExitCode() int {
	return e.Code
}

// WithExitCode wraps err with a specific process exit code.
func WithExitCode(err error, code int) error {
	return &ExitCodeError{Err: err, Code: code}
}

// New creates a new CIError with the given code and message.
func New(code Code, msg string) error {
	return &CIError{Code: code, Msg: msg}
}

// NewWithDetails creates a new CIError with code, message, and details.
// The details map is copied; an empty map becomes nil.
func NewWithDetails(code Code, msg string, details map[string]string) error {
	return &CIError{Code: code, Msg: msg, Details: copyDetails(details)}
}

// Wrap creates a new CIError wrapping an underlying error.
func Wrap(code Code, msg string, err error) error {
	return &CIError{Code: code, Msg: msg, Cause: err}
}

// WrapWithDetails creates a new CIError wrapping an underlying error with details.
// The details map is copied; an empty map becomes nil.
func WrapWithDetails(code Code, msg string, err error, details map[string]string) error {
	return &CIError{Code: code, Msg: msg, Cause: err, Details: copyDetails(details)}
}

// GetCode extracts the error code from an error, or empty string if not a CIError.
func GetCode(err error) Code {
	var ce *CIError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// AsCIError returns (*CIError, true) if err is or wraps a CIError.
func AsCIError(err error) (*CIError, bool) {
	var ce *CIError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

func copyDetails(details map[string]string) map[string]string {
	if len(details) == 0 {
		return nil
	}
	cp := make(map[string]string, len(details))
	for k, v := range details {
		cp[k] = v
	}
	return cp
}

// ExitCode returns the appropriate exit code for an error.
// Returns 0 if err is nil, 2 for E_USAGE, 1 for all other errors.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if ec, ok := err.(interface{ ExitCode() int }); ok {
		return ec.ExitCode()
	}
	if GetCode(err) == EUsage {
		return 2
	}
	return 1
}

// Print writes the error to w in the stable stderr format:
//
//	error_code: <CODE>
//	<message>
func Print(w io.Writer, err error) {
	if err == nil {
		return
	}
	var ce *CIError
	if errors.As(err, &ce) {
		_, _ = fmt.Fprintf(w, "error_code: %s\n", ce.Code)
		_, _ = fmt.Fprintln(w, ce.Msg)
	} else {
		_, _ = fmt.Fprintln(w, err.Error())
	}
}
