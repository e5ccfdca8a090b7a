package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrorCode is a stable machine-readable error classifier.
type ErrorCode string

const (
	CodeNotAuthenticated        ErrorCode = "NotAuthenticated"
	CodeRemoteOperationError    ErrorCode = "RemoteOperationError"
	CodeOperationCancelled      ErrorCode = "OperationCancelled"
	CodeReconciliationReadError ErrorCode = "ReconciliationReadError"
	CodeConfigurationError      ErrorCode = "ConfigurationError"
)

// ErrNotAuthenticated is returned by remote store adapters that refuse calls
// because credentials are missing, expired or insufficient.
var ErrNotAuthenticated = errors.New("remote store: not authenticated")

// OperationError is the error recorded on a failed operation and returned by
// engine calls that fail as a whole.
type OperationError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Cause   error     `json:"cause,omitempty"`
}

// NewOperationError builds an OperationError with a formatted message.
func NewOperationError(code ErrorCode, cause error, format string, args ...interface{}) *OperationError {
	return &OperationError{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

func (e *OperationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *OperationError) Unwrap() error { return e.Cause }

type operationErrorJSON struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Cause   string    `json:"cause,omitempty"`
}

// MarshalJSON writes Cause as its message text.
func (e OperationError) MarshalJSON() ([]byte, error) {
	out := operationErrorJSON{Code: e.Code, Message: e.Message}
	if e.Cause != nil {
		out.Cause = e.Cause.Error()
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores Cause as a plain error carrying the recorded text.
// Identity of the original cause (errors.Is) does not survive a round trip.
func (e *OperationError) UnmarshalJSON(data []byte) error {
	var in operationErrorJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	e.Code, e.Message, e.Cause = in.Code, in.Message, nil
	if in.Cause != "" {
		e.Cause = errors.New(in.Cause)
	}
	return nil
}

// Is matches another *OperationError by code so callers can write
// errors.Is(err, &OperationError{Code: CodeConfigurationError}).
func (e *OperationError) Is(target error) bool {
	t, ok := target.(*OperationError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// CodeOf extracts the ErrorCode from err, or "" when err carries none.
func CodeOf(err error) ErrorCode {
	var opErr *OperationError
	if errors.As(err, &opErr) {
		return opErr.Code
	}
	return ""
}
