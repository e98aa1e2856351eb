// Package journalerr provides the error taxonomy surfaced to users of the
// journal core, grounded on the teacher's internal/errors.ReachError: one
// struct with a machine-readable Code, a user-safe Message, an optional
// wrapped Cause, and redacted Context fields.
package journalerr

import "fmt"

// Code classifies an Error for programmatic handling. Names match the
// error kinds enumerated in spec.md section 7.
type Code string

const (
	CodeUnknownType              Code = "UNKNOWN_TYPE"
	CodeNotFound                 Code = "NOT_FOUND"
	CodeInvokableType            Code = "INVOKABLE_TYPE_ERROR"
	CodeReplay                   Code = "REPLAY_ERROR"
	CodeIncompleteSubinvocation  Code = "INCOMPLETE_SUBINVOCATION"
	CodeInputRequired            Code = "INPUT_REQUIRED"
	CodeInvalidArgument          Code = "INVALID_ARGUMENT"
	CodeInternal                 Code = "INTERNAL_ERROR"
)

// Error is the canonical error type for the journal core. Engine argument
// and state errors, and the generator's errors, are an *Error; some core
// paths return their own types instead (registry.ErrUnknownType,
// store.NotFoundError, invoke.ReplayError, invoke.IncompleteSubinvocationError)
// or wrapped standard errors.
type Error struct {
	Code    Code
	Message string
	Cause   error
	Context map[string]string
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

func (e *Error) WithContext(key, value string) *Error {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

// Is reports whether err is a *Error with the given code, so callers can
// branch with errors.Is-style checks without a type assertion.
func Is(err error, code Code) bool {
	var e *Error
	for err != nil {
		if ce, ok := err.(*Error); ok {
			e = ce
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return e != nil && e.Code == code
}
