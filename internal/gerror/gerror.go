// Package gerror implements the error taxonomy used across docflow:
// a small set of named error Codes, each carrying a human message and an
// optional wrapped cause, so callers can branch on Code rather than on
// error string contents or type assertions against concrete error structs.
package gerror

import "fmt"

// Code names one of the error kinds callers can branch on.
type Code string

const (
	CodeUnknownProcessor     Code = "unknown_processor"
	CodeStepNotAwaitingInput Code = "step_not_awaiting_input"
	CodeInvalidInput         Code = "invalid_input"
	CodePreconditionViolated Code = "precondition_violation"
	CodeProcessorException   Code = "processor_exception"
	CodeCircularDependency   Code = "circular_dependency"
	CodeRevertConflict       Code = "revert_conflict"
	CodeDuplicateName        Code = "duplicate_name"
	CodeNotFound             Code = "not_found"
)

// Error is the concrete error type returned by docflow's internal packages.
type Error struct {
	code    Code
	message string
	inner   error
}

// New creates an Error with the given code and message.
func New(code Code, message string) Error {
	return Error{code: code, message: message}
}

// Newf creates an Error with a formatted message.
func Newf(code Code, format string, args ...interface{}) Error {
	return Error{code: code, message: fmt.Sprintf(format, args...)}
}

// Wrap returns a copy of e with inner set as its cause.
func (e Error) Wrap(inner error) Error {
	e.inner = inner
	return e
}

func (e Error) Error() string {
	if e.inner != nil {
		return fmt.Sprintf("%s: %s", e.message, e.inner.Error())
	}
	return e.message
}

// Unwrap allows errors.Is/errors.As to see through to the inner cause.
func (e Error) Unwrap() error {
	return e.inner
}

// Code returns the error's taxonomy code.
func (e Error) Code() Code {
	return e.code
}

// Is reports whether err is a gerror.Error with the given code.
func Is(err error, code Code) bool {
	gerr, ok := err.(Error)
	if !ok {
		return false
	}
	return gerr.code == code
}

// IsNotFound reports whether err represents a not-found condition.
func IsNotFound(err error) bool {
	return Is(err, CodeNotFound)
}
