package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the module. Callers classify with errors.Is;
// repositories and services wrap these with %w to add context.
var (
	ErrInternal           = errors.New("internal error")
	ErrNotFound           = errors.New("resource not found")
	ErrUniquenessConflict = errors.New("uniqueness conflict")

	ErrUserNotFound       = errors.New("user not found")
	ErrGroupNotFound      = errors.New("group not found")
	ErrBundleNotFound     = errors.New("bundle not found")
	ErrPermissionNotFound = errors.New("permission not found")

	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserInactive       = errors.New("user is not active")
	ErrTokenInvalid       = errors.New("token is invalid or expired")

	ErrMailerNotConfigured = errors.New("mailer is not configured")
)

// FieldError carries the column or field behind a uniqueness conflict so the
// host application can render it as a field-level message.
type FieldError struct {
	Err   error
	Field string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// NewFieldConflict wraps ErrUniquenessConflict with the conflicting field.
func NewFieldConflict(field string) error {
	return &FieldError{Err: ErrUniquenessConflict, Field: field}
}

// IsNotFound reports whether err is any of the not-found kinds.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrGroupNotFound) ||
		errors.Is(err, ErrBundleNotFound) ||
		errors.Is(err, ErrPermissionNotFound)
}

// IsConflict reports whether err is a uniqueness conflict from the
// persistence layer.
func IsConflict(err error) bool {
	return errors.Is(err, ErrUniquenessConflict)
}

// IsUnauthorized reports whether err represents a failed credential check.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrInvalidCredentials) ||
		errors.Is(err, ErrUserInactive)
}

// IsTokenInvalid reports whether err is a rejected security token. Expired
// and mismatched tokens look the same to callers.
func IsTokenInvalid(err error) bool {
	return errors.Is(err, ErrTokenInvalid)
}
