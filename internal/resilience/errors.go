// Package resilience provides timeouts, retries with backoff and a circuit
// breaker, plus the error taxonomy shared by every guarded operation.
package resilience

import (
	"errors"
	"fmt"
	"time"
)

// Code classifies an IntegrationError.
type Code string

const (
	CodeTimeout        Code = "TIMEOUT"
	CodeRetryExhausted Code = "RETRY_EXHAUSTED"
	CodeCircuitOpen    Code = "CIRCUIT_BREAKER_OPEN"
	CodeFileRead       Code = "FILE_READ_ERROR"
	CodeFileWrite      Code = "FILE_WRITE_ERROR"
	CodeValidation     Code = "VALIDATION_ERROR"
	CodeConfiguration  Code = "CONFIGURATION_ERROR"
)

// Sentinels matched by errors.Is against any IntegrationError of the same code.
var (
	ErrTimeout        = errors.New("operation timed out")
	ErrRetryExhausted = errors.New("retry attempts exhausted")
	ErrCircuitOpen    = errors.New("circuit breaker is open")
	ErrFileRead       = errors.New("file read failed")
	ErrFileWrite      = errors.New("file write failed")
	ErrValidation     = errors.New("validation failed")
	ErrConfiguration  = errors.New("invalid configuration")
)

var codeSentinels = map[Code]error{
	CodeTimeout:        ErrTimeout,
	CodeRetryExhausted: ErrRetryExhausted,
	CodeCircuitOpen:    ErrCircuitOpen,
	CodeFileRead:       ErrFileRead,
	CodeFileWrite:      ErrFileWrite,
	CodeValidation:     ErrValidation,
	CodeConfiguration:  ErrConfiguration,
}

// IntegrationError is the single error type raised by the resilience layer and
// everything built on it.
type IntegrationError struct {
	Code      Code
	Message   string
	Op        string
	Details   map[string]any
	Err       error
	Timestamp time.Time
}

// NewError creates an IntegrationError. cause may be nil.
func NewError(code Code, op, message string, cause error, details map[string]any) *IntegrationError {
	if details == nil {
		details = make(map[string]any)
	}
	return &IntegrationError{
		Code:      code,
		Message:   message,
		Op:        op,
		Details:   details,
		Err:       cause,
		Timestamp: time.Now(),
	}
}

func (e *IntegrationError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *IntegrationError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for this error's code.
func (e *IntegrationError) Is(target error) bool {
	sentinel, ok := codeSentinels[e.Code]
	return ok && sentinel == target
}

// CodeOf returns the code of the outermost IntegrationError in err's chain,
// or "" if there is none.
func CodeOf(err error) Code {
	var ie *IntegrationError
	if errors.As(err, &ie) {
		return ie.Code
	}
	return ""
}

// ValidationError builds a VALIDATION_ERROR.
func ValidationError(op, message string, cause error, details map[string]any) *IntegrationError {
	return NewError(CodeValidation, op, message, cause, details)
}

// ConfigurationError builds a CONFIGURATION_ERROR.
func ConfigurationError(message string, details map[string]any) *IntegrationError {
	return NewError(CodeConfiguration, "config", message, nil, details)
}
