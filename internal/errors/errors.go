// Package errors defines the coded error type shared by every pipeline stage.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Error is the pipeline error type with structured metadata.
type Error struct {
	Code     Code              // Machine-readable error code
	Message  string            // Human-readable message
	Metadata map[string]string // Additional context (agent name, path, ...)
	Cause    error             // Wrapped underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates a simple error with a code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates an error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithMetadata creates an error carrying metadata.
func WithMetadata(code Code, message string, metadata map[string]string) *Error {
	return &Error{Code: code, Message: message, Metadata: metadata}
}

// Wrap creates an error that wraps an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Sentinel values for errors.Is comparisons by code.
var (
	ErrConfigInvalid      = New(CodeConfigInvalid, "invalid configuration")
	ErrMissingSpec        = New(CodeMissingSpec, "missing agent spec")
	ErrSpecMalformed      = New(CodeSpecMalformed, "malformed agent spec")
	ErrCyclicDependency   = New(CodeCyclicDependency, "cyclic agent dependency")
	ErrUnknownTokenizer   = New(CodeUnknownTokenizer, "unknown tokenizer")
	ErrNameCollision      = New(CodeNameCollision, "canonical name collision")
	ErrTemplateUnboundVar = New(CodeTemplateUnboundVar, "unbound template variable")
	ErrSourceMissing      = New(CodeSourceMissing, "campaign source missing")
	ErrSourceUnreadable   = New(CodeSourceUnreadable, "campaign source unreadable")
	ErrSourceMalformed    = New(CodeSourceMalformed, "campaign source malformed")
	ErrTransport          = New(CodeTransport, "transport failure")
	ErrParse              = New(CodeParse, "parse failure")
	ErrValidation         = New(CodeValidation, "validation failure")
	ErrTimeout            = New(CodeTimeout, "deadline exceeded")
	ErrIO                 = New(CodeIO, "i/o failure")
)

// CodeOf returns the code of the first *Error in the chain, or CodeUnknown.
func CodeOf(err error) Code {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// KindOf returns the kind of the first *Error in the chain.
func KindOf(err error) Kind {
	return CodeOf(err).Kind()
}

// ExitCode maps a fatal error to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	switch KindOf(err) {
	case KindConfiguration:
		return ExitConfig
	case KindSource:
		return ExitSource
	default:
		return ExitCritical
	}
}
