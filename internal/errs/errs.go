// Package errs defines the stable error taxonomy shared by every
// CronSentinel component. Callers match on Kind via errors.As, never on
// message text.
package errs

import "fmt"

// Kind is a stable error classification used for control flow and
// reporting. Each value has distinct propagation semantics documented on
// the component that raises it.
type Kind string

const (
	// Validation indicates input violates a documented rule (a bad job
	// name, an out-of-range timeout, a malformed environment name).
	Validation Kind = "ValidationError"

	// Security indicates a rule intended to prevent dangerous behaviour
	// was violated (an unsafe YAML tag, a forbidden executable
	// substring, tampered ciphertext). Never swallowed or retried.
	Security Kind = "SecurityError"

	// Configuration indicates well-formed input that is nonetheless
	// inconsistent with an invariant (e.g. a job directory whose
	// config.yml cannot be read).
	Configuration Kind = "ConfigurationError"

	// Execution indicates a job process signaled failure.
	Execution Kind = "ExecutionError"

	// Timeout indicates a job exceeded its configured time budget.
	Timeout Kind = "TimeoutError"

	// Git indicates repository synchronization failed.
	Git Kind = "GitError"
)

// Error is the concrete error type carrying a Kind, a human-readable
// message, and an optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap exposes the wrapped cause so errors.Is/errors.As can see through
// an *Error to whatever underlying error triggered it.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same Kind, so
// errors.Is(err, errs.New(errs.Security, "")) matches by kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New constructs an *Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap constructs an *Error of the given kind, formatting the message and
// attaching cause as the wrapped error.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Of reports the Kind of err if it is (or wraps) an *Error, and ok=false
// otherwise.
func Of(err error) (kind Kind, ok bool) {
	var e *Error
	if as(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	k, ok := Of(err)
	return ok && k == kind
}

// as is a tiny local shim over errors.As to avoid importing the stdlib
// package at two call sites with different target types.
func as(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
