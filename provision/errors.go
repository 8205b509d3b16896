// Package provision implements the identity reconciliation and account
// provisioning core: idempotency-key derivation, the transactional
// find-or-create-or-link protocol, bounded retry, and the background
// reclamation sweep.
package provision

import (
	"errors"
	"fmt"

	"github.com/arangodb/go-driver/v2/arangodb/shared"
)

// Class buckets provisioning failures for the retry controller and the
// HTTP layer.
type Class int

const (
	// ClassValidation is a malformed identity or email. Never retried.
	ClassValidation Class = iota
	// ClassConflict is a cross-identity email collision. Never retried.
	ClassConflict
	// ClassTransient is a storage timeout or a lost duplicate-key race.
	// Retried with backoff up to the attempt cap.
	ClassTransient
	// ClassExhausted means the retry cap was reached without success.
	ClassExhausted
)

// Stable error codes surfaced to callers. The HTTP layer maps these to
// status codes: validation -> 400, conflict -> 409, exhausted -> 503.
const (
	CodeInvalidIdentity    = "INVALID_IDENTITY"
	CodeInvalidEmail       = "INVALID_EMAIL"
	CodeAccountConflict    = "ACCOUNT_CONFLICT"
	CodeProvisioningFailed = "PROVISIONING_FAILED"
)

// Error is a classified provisioning failure.
type Error struct {
	Class Class
	Code  string
	Msg   string
	Err   error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func validationError(code, msg string) *Error {
	return &Error{Class: ClassValidation, Code: code, Msg: msg}
}

func conflictError(msg string) *Error {
	return &Error{Class: ClassConflict, Code: CodeAccountConflict, Msg: msg}
}

func exhaustedError(msg string, err error) *Error {
	return &Error{Class: ClassExhausted, Code: CodeProvisioningFailed, Msg: msg, Err: err}
}

// CodeOf returns the stable code for a provisioning error, or empty for
// anything else.
func CodeOf(err error) string {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// ClassOf returns the classification of err. Unclassified errors (raw
// storage failures, duplicate-key races) count as transient: every error
// the engine does not explicitly declare fatal is worth another attempt.
func ClassOf(err error) Class {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Class
	}
	return ClassTransient
}

// IsRetryable reports whether the retry controller may re-attempt after err.
func IsRetryable(err error) bool {
	return ClassOf(err) == ClassTransient
}

// isDuplicateKey reports whether err is a unique-index violation, i.e.
// another concurrent attempt won the race between this call's read and
// write. ArangoDB signals this as a 409 conflict.
func isDuplicateKey(err error) bool {
	return shared.IsConflict(err)
}
