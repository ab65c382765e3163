package domain

import (
	"errors" // errors.As for kind checks
	"fmt"    // Message formatting
)

// ErrorKind classifies every failure the ledger reports.
type ErrorKind string

const (
	KindValidation        ErrorKind = "validation"
	KindInsufficientFunds ErrorKind = "insufficient_funds"
	KindOverSubmission    ErrorKind = "over_submission"
	KindNotEligible       ErrorKind = "not_eligible"
	KindAlreadyProcessed  ErrorKind = "already_processed"
	KindNotFound          ErrorKind = "not_found"
	KindForbidden         ErrorKind = "forbidden"
	KindLockTimeout       ErrorKind = "lock_timeout"
	KindInfrastructure    ErrorKind = "infrastructure"
)

// Error is the single error type returned by ledger operations.
type Error struct {
	Kind    ErrorKind // Failure class
	Message string    // Human readable reason
	Err     error     // Underlying cause, infrastructure failures only
}

// Error formats the kind and message, followed by the cause when there is one.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable is true when the same call may succeed later without changes.
func (e *Error) Retryable() bool {
	return e.Kind == KindLockTimeout || e.Kind == KindInfrastructure
}

// Business reports whether the error is a rule rejection rather than a fault.
func (e *Error) Business() bool {
	switch e.Kind {
	case KindValidation, KindInsufficientFunds, KindOverSubmission, KindNotEligible,
		KindAlreadyProcessed, KindNotFound, KindForbidden:
		return true
	case KindLockTimeout, KindInfrastructure:
		return false
	}
	return false
}

// KindOf extracts the kind of err; unknown errors count as infrastructure.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInfrastructure
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var de *Error
	return errors.As(err, &de) && de.Kind == kind
}

func Validation(msg string) error        { return &Error{Kind: KindValidation, Message: msg} }
func InsufficientFunds(msg string) error { return &Error{Kind: KindInsufficientFunds, Message: msg} }
func OverSubmission(msg string) error    { return &Error{Kind: KindOverSubmission, Message: msg} }
func NotEligible(msg string) error       { return &Error{Kind: KindNotEligible, Message: msg} }
func AlreadyProcessed(msg string) error  { return &Error{Kind: KindAlreadyProcessed, Message: msg} }
func NotFound(msg string) error          { return &Error{Kind: KindNotFound, Message: msg} }
func Forbidden(msg string) error         { return &Error{Kind: KindForbidden, Message: msg} }

// LockTimeout wraps a failed per-entity lock acquisition.
func LockTimeout(err error) error {
	return &Error{Kind: KindLockTimeout, Message: "resource is busy, retry later", Err: err}
}

// Infrastructure wraps a storage or transport failure. The message shown to callers stays generic.
func Infrastructure(op string, err error) error {
	return &Error{Kind: KindInfrastructure, Message: op + " failed", Err: err}
}
