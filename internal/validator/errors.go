package validator

import (
	"errors"
	"fmt"
)

// Reason classifies why a value failed validation
type Reason string

const (
	ReasonMissing    Reason = "missing"
	ReasonMalformed  Reason = "malformed"
	ReasonOutOfRange Reason = "out_of_range"
	ReasonWrongArity Reason = "wrong_arity"
	ReasonNotAllowed Reason = "not_allowed"
)

// Error is returned by every validator on failure
type Error struct {
	Reason Reason
	Detail string
	// Suggestion is an optional corrected form shown in remediation text
	Suggestion string
}

// Sentinel errors for errors.Is matching on the reason alone
var (
	ErrMissing    = &Error{Reason: ReasonMissing}
	ErrMalformed  = &Error{Reason: ReasonMalformed}
	ErrOutOfRange = &Error{Reason: ReasonOutOfRange}
	ErrWrongArity = &Error{Reason: ReasonWrongArity}
	ErrNotAllowed = &Error{Reason: ReasonNotAllowed}
)

// Error implements the error interface
func (e *Error) Error() string {
	if e.Detail == "" {
		return string(e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Detail)
}

// Is matches any *Error with the same reason
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Reason == e.Reason
}

func newError(reason Reason, format string, args ...any) *Error {
	return &Error{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// IsMissing reports whether err is a missing-value error
func IsMissing(err error) bool {
	return errors.Is(err, ErrMissing)
}
