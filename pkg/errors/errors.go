// Package errors provides structured error handling for TabFlow.
// It implements coded errors with context and stack traces.
package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// Error codes for programmatic handling
type Code string

const (
	// Configuration errors (1xx)
	CodeMissingBucket Code = "E101"
	CodeInvalidSchema Code = "E102"
	CodeInvalidConfig Code = "E103"

	// Processing errors (2xx)
	CodeDecodeFailed Code = "E201"
	CodeInvalidUTF8  Code = "E202"
	CodePanic        Code = "E203"

	// Output errors (3xx)
	CodeUploadFailed Code = "E301"
	CodeWriteFailed  Code = "E302"

	// System errors (4xx)
	CodeContextCanceled Code = "E401"

	// Unknown
	CodeUnknown Code = "E999"
)

// TabFlowError is the base error type for all TabFlow errors.
type TabFlowError struct {
	Code       Code
	Message    string
	Cause      error
	Context    map[string]interface{}
	StackTrace []Frame
}

// Frame represents a stack frame.
type Frame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface.
func (e *TabFlowError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if len(e.Context) > 0 {
		sb.WriteString(" (")
		first := true
		for k, v := range e.Context {
			if !first {
				sb.WriteString(", ")
			}
			sb.WriteString(fmt.Sprintf("%s=%v", k, v))
			first = false
		}
		sb.WriteString(")")
	}

	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}

	return sb.String()
}

// Unwrap returns the underlying cause.
func (e *TabFlowError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches a target error.
func (e *TabFlowError) Is(target error) bool {
	if t, ok := target.(*TabFlowError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithContext adds context to the error.
func (e *TabFlowError) WithContext(key string, value interface{}) *TabFlowError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a new TabFlowError.
func New(code Code, message string) *TabFlowError {
	return &TabFlowError{
		Code:       code,
		Message:    message,
		StackTrace: captureStack(2),
	}
}

// Wrap wraps an existing error with additional context.
func Wrap(err error, code Code, message string) *TabFlowError {
	if err == nil {
		return nil
	}

	return &TabFlowError{
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: captureStack(2),
	}
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, code Code, format string, args ...interface{}) *TabFlowError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// captureStack captures the current stack trace.
func captureStack(skip int) []Frame {
	var frames []Frame
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip+1, pcs)
	pcs = pcs[:n]

	cf := runtime.CallersFrames(pcs)
	for {
		frame, more := cf.Next()
		frames = append(frames, Frame{
			Function: frame.Function,
			File:     frame.File,
			Line:     frame.Line,
		})
		if !more || len(frames) >= 10 {
			break
		}
	}
	return frames
}

// --- Convenience constructors ---

// MissingBucket creates a missing destination bucket error.
func MissingBucket(envVar string) *TabFlowError {
	return New(CodeMissingBucket, "destination bucket is not configured").
		WithContext("env", envVar)
}

// DecodeFailed creates a payload decode error.
func DecodeFailed(err error) *TabFlowError {
	return Wrap(err, CodeDecodeFailed, "payload is not valid base64")
}

// InvalidUTF8 creates an invalid text encoding error.
func InvalidUTF8() *TabFlowError {
	return New(CodeInvalidUTF8, "decoded payload is not valid UTF-8")
}

// PanicRecovered creates an error for a panic caught at a record boundary.
func PanicRecovered(recordID string, value interface{}) *TabFlowError {
	return New(CodePanic, "panic while transforming record").
		WithContext("record_id", recordID).
		WithContext("panic", value)
}

// ContextCanceled creates a cancellation error.
func ContextCanceled(operation string) *TabFlowError {
	return New(CodeContextCanceled, "operation canceled").
		WithContext("operation", operation)
}

// --- Error checking utilities ---

// IsCode checks if an error has a specific code.
func IsCode(err error, code Code) bool {
	var tfErr *TabFlowError
	if errors.As(err, &tfErr) {
		return tfErr.Code == code
	}
	return false
}

// GetCode extracts the error code from an error.
func GetCode(err error) Code {
	var tfErr *TabFlowError
	if errors.As(err, &tfErr) {
		return tfErr.Code
	}
	return CodeUnknown
}
