// Package common defines shared sentinel errors and small helpers used across
// the GophChat client layers. Callers should use errors.Is to match these
// values, either against a concrete error or against its category.
package common

import "errors"

// Error categories. Every concrete error below unwraps to exactly one of them.
var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrAuth       = errors.New("authentication error")
	ErrConflict   = errors.New("conflict")
	ErrInternal   = errors.New("internal error")
)

// Error is a user-facing error that belongs to a category. Its message is
// meant to be shown verbatim.
type Error struct {
	Kind error
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func (e *Error) Unwrap() error { return e.Kind }

func newError(kind error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

var (
	// registration and profile validation
	ErrEmptyUsername       = newError(ErrValidation, "username is required")
	ErrDuplicateUsername   = newError(ErrConflict, "username already exists")
	ErrWeakPassword        = newError(ErrValidation, "password must be at least 6 characters")
	ErrPasswordMismatch    = newError(ErrValidation, "passwords do not match")
	ErrMissingSecurityInfo = newError(ErrValidation, "security question and answer are required")
	ErrMissingFields       = newError(ErrValidation, "all fields are required")

	// lookups
	ErrUserNotFound       = newError(ErrNotFound, "user not found")
	ErrNoSecurityQuestion = newError(ErrNotFound, "no security question set for this account")

	// credentials
	ErrInvalidCredentials = newError(ErrAuth, "invalid username or password")
	ErrIncorrectAnswer    = newError(ErrAuth, "incorrect security answer")
	ErrIncorrectPassword  = newError(ErrAuth, "current password is incorrect")
	ErrNoCurrentUser      = newError(ErrAuth, "no user is logged in")

	// conversations
	ErrNameTaken = newError(ErrConflict, "name is already taken by a user or group")

	// store
	ErrCorruptDocument = newError(ErrInternal, "stored document is corrupt")
)
