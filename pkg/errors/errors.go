// Package errors provides structured error types for tfgraph.
package errors

import (
	"fmt"
)

// ErrorCode identifies specific error conditions
type ErrorCode string

const (
	ErrCodeNoDependency  ErrorCode = "NO_DEPENDENCY"
	ErrCodeCyclic        ErrorCode = "CYCLIC_DEPENDENCY"
	ErrCodeConfig        ErrorCode = "CONFIG_ERROR"
	ErrCodeParse         ErrorCode = "PARSE_ERROR"
	ErrCodeToolFailure   ErrorCode = "TOOL_FAILURE"
	ErrCodeEnvVarResolve ErrorCode = "ENVVAR_RESOLVE_ERROR"
	ErrCodeInternal      ErrorCode = "INTERNAL_ERROR"
)

// Error is the base error type for tfgraph
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
	Details map[string]interface{}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new error with the given code and message
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// Wrap creates a new error wrapping an existing error
func Wrap(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
		Details: make(map[string]interface{}),
	}
}

// WithDetail adds a single detail to an error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	e.Details[key] = value
	return e
}

// NoDependencyError reports a dependency declaration that references a
// directory which is not part of the scanned tree.
func NoDependencyError(dir, reference string) *Error {
	return &Error{
		Code:    ErrCodeNoDependency,
		Message: fmt.Sprintf("directory %s declares a dependency on %s, which does not exist", dir, reference),
		Details: map[string]interface{}{
			"directory": dir,
			"reference": reference,
		},
	}
}

// CyclicDependencyError reports one dependency cycle found during graph
// construction. The cycle lists member paths in order, first repeated last.
func CyclicDependencyError(cycle []string) *Error {
	return &Error{
		Code:    ErrCodeCyclic,
		Message: fmt.Sprintf("dependency declarations form a cycle: %v", cycle),
		Details: map[string]interface{}{
			"cycle": cycle,
		},
	}
}

// ConfigError creates a configuration error
func ConfigError(message string, cause error) *Error {
	return &Error{
		Code:    ErrCodeConfig,
		Message: message,
		Cause:   cause,
		Details: make(map[string]interface{}),
	}
}

// ParseError creates a parse error
func ParseError(filePath string, err error) *Error {
	return &Error{
		Code:    ErrCodeParse,
		Message: fmt.Sprintf("failed to parse %s", filePath),
		Cause:   err,
		Details: map[string]interface{}{
			"file": filePath,
		},
	}
}

// ToolFailure creates an error for a non-zero external tool exit in a
// directory.
func ToolFailure(dir string, exitCode int, cause error) *Error {
	return &Error{
		Code:    ErrCodeToolFailure,
		Message: fmt.Sprintf("tool failed in %s (exit %d)", dir, exitCode),
		Cause:   cause,
		Details: map[string]interface{}{
			"directory": dir,
			"exit_code": exitCode,
		},
	}
}

// InternalError reports a broken engine invariant.
func InternalError(message string) *Error {
	return &Error{
		Code:    ErrCodeInternal,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// Is checks if the error matches the given code
func Is(err error, code ErrorCode) bool {
	if e, ok := err.(*Error); ok {
		return e.Code == code
	}
	return false
}
