package shipping

import (
	"errors"
	"fmt"
)

// Class buckets every orchestration failure so callers can decide whether a
// unit is worth retrying. Configuration and precondition failures need input
// or external remediation; engine failures may be transient.
type Class string

const (
	ClassConfiguration Class = "configuration"
	ClassPrecondition  Class = "precondition"
	ClassConflict      Class = "conflict"
	ClassEngine        Class = "engine"
	ClassTimeout       Class = "timeout"
	ClassNotReplicated Class = "not_replicated"
	ClassInvalidState  Class = "invalid_state"
)

// Error is the classified error type used throughout the orchestration
// pipeline. Op names the step that failed (e.g. "register-produce-job").
type Error struct {
	Class Class
	Op    string
	Err   error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %v", e.Class, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Class, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// newError builds a classified error from a format string.
func newError(class Class, op, format string, args ...interface{}) *Error {
	return &Error{Class: class, Op: op, Err: fmt.Errorf(format, args...)}
}

// wrapError classifies an existing error. An already-classified error keeps
// its original class so the first categorization wins.
func wrapError(class Class, op string, err error) *Error {
	var ce *Error
	if errors.As(err, &ce) {
		return &Error{Class: ce.Class, Op: op, Err: err}
	}
	return &Error{Class: class, Op: op, Err: err}
}

// Classify returns the class of err, or ClassEngine for unclassified
// non-nil errors (anything crossing the engine/instance boundary that was
// not categorized is treated as potentially transient).
func Classify(err error) Class {
	if err == nil {
		return ""
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Class
	}
	return ClassEngine
}
