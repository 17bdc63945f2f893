package error

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// ErrorCategory classifies errors by who is expected to handle them.
type ErrorCategory int

const (
	// ErrCategoryLogic marks violations of documented preconditions: out of
	// range indices, wrong transaction state, detached accessors, type
	// mismatches. Application code is not expected to catch these; they exist
	// so misuse fails loudly instead of corrupting state.
	ErrCategoryLogic ErrorCategory = iota

	// ErrCategorySystem marks problems with the environment: file access,
	// incompatible lock files, a file that needs a format upgrade.
	ErrCategorySystem

	// ErrCategoryDomain marks expected conditions an application should
	// anticipate, such as a table name already being in use.
	ErrCategoryDomain

	// ErrCategoryData marks corrupt or unreadable persisted data.
	ErrCategoryData

	// ErrCategoryConcurrency marks conflicts between sessions, e.g. a
	// snapshot version that is no longer available.
	ErrCategoryConcurrency
)

func (c ErrorCategory) String() string {
	switch c {
	case ErrCategoryLogic:
		return "logic"
	case ErrCategorySystem:
		return "system"
	case ErrCategoryDomain:
		return "domain"
	case ErrCategoryData:
		return "data"
	case ErrCategoryConcurrency:
		return "concurrency"
	default:
		return "unknown"
	}
}

// DBError represents a structured database error with rich context information.
type DBError struct {
	// Code is a unique identifier for this error type (e.g. "NO_SUCH_TABLE").
	Code string

	// Category classifies the error for appropriate handling strategy.
	Category ErrorCategory

	// Message is a human-readable description of what went wrong.
	Message string

	// Detail provides additional context about the specific error instance.
	Detail string

	// Operation identifies the operation that was being performed,
	// e.g. "AddTable", "BeginRead", "SetNull".
	Operation string

	// Component identifies where the error originated, e.g. "Group", "SharedGroup".
	Component string

	// Cause is the underlying error that triggered this database error.
	Cause error

	// Stack contains the call stack where this error was created.
	Stack []uintptr
}

// New creates a new DBError with the specified code, category, and message.
func New(category ErrorCategory, code, message string) *DBError {
	return &DBError{
		Code:     code,
		Category: category,
		Message:  message,
		Stack:    captureStack(),
	}
}

// Wrap wraps an existing error with database-specific context information.
// If the error is already a DBError, it enriches the existing error with
// operation and component context (only if not already set).
func Wrap(err error, code, operation, component string) *DBError {
	if err == nil {
		return nil
	}

	var dbErr *DBError
	if errors.As(err, &dbErr) {
		if dbErr.Operation == "" {
			dbErr.Operation = operation
		}
		if dbErr.Component == "" {
			dbErr.Component = component
		}
		return dbErr
	}

	return &DBError{
		Code:      code,
		Category:  ErrCategorySystem,
		Message:   err.Error(),
		Operation: operation,
		Component: component,
		Cause:     err,
		Stack:     captureStack(),
	}
}

// WithDetail sets the detail string and returns the error for chaining.
func (e *DBError) WithDetail(format string, args ...any) *DBError {
	e.Detail = fmt.Sprintf(format, args...)
	return e
}

// In records the operation and component and returns the error for chaining.
func (e *DBError) In(operation, component string) *DBError {
	e.Operation = operation
	e.Component = component
	return e
}

// WithCause records the underlying error.
func (e *DBError) WithCause(cause error) *DBError {
	e.Cause = cause
	return e
}

// captureStack skips captureStack, New/Wrap and the immediate caller.
func captureStack() []uintptr {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])
	return pcs[0:n]
}

// Error implements the standard Go error interface
//
// The format follows the pattern:
// [ERROR_CODE] Message: Detail (operation: Operation, component: Component) caused by: underlying error
func (e *DBError) Error() string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if e.Detail != "" {
		b.WriteString(fmt.Sprintf(": %s", e.Detail))
	}

	if e.Operation != "" {
		b.WriteString(fmt.Sprintf(" (operation: %s", e.Operation))
		if e.Component != "" {
			b.WriteString(fmt.Sprintf(", component: %s", e.Component))
		}
		b.WriteString(")")
	}

	if e.Cause != nil {
		b.WriteString(fmt.Sprintf(" caused by: %v", e.Cause))
	}

	return b.String()
}

// Unwrap returns the underlying cause error.
func (e *DBError) Unwrap() error {
	return e.Cause
}

// Is matches two DBErrors by code, so that a fully populated error compares
// equal to its bare sentinel with errors.Is.
func (e *DBError) Is(target error) bool {
	t, ok := target.(*DBError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// FormatStack returns a human-readable stack trace for debugging purposes.
func (e *DBError) FormatStack() string {
	if len(e.Stack) == 0 {
		return ""
	}

	var b strings.Builder
	frames := runtime.CallersFrames(e.Stack)

	b.WriteString("Stack trace:\n")
	for {
		f, more := frames.Next()
		b.WriteString(fmt.Sprintf("  %s\n    %s:%d\n",
			f.Function, f.File, f.Line))
		if !more {
			break
		}
	}

	return b.String()
}

// CategoryOf returns the category of err if it is (or wraps) a DBError.
func CategoryOf(err error) (ErrorCategory, bool) {
	var dbErr *DBError
	if errors.As(err, &dbErr) {
		return dbErr.Category, true
	}
	return 0, false
}
