package models

import "fmt"

// ValidationError reports the first malformed or missing request field.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// NewValidationError builds a ValidationError for a single offending field.
func NewValidationError(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// AuthError indicates the bearer credential could not be resolved.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string { return e.Message }

// NotFoundError indicates a credential resolved to no user.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// StorageError indicates a local persistence failure during checkout identity
// setup. Any just-created external resource has already been compensated.
type StorageError struct {
	Message string
	Err     error
}

func (e *StorageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *StorageError) Unwrap() error { return e.Err }

// ProcessorError wraps a failed payment-processor call, passing the underlying
// message through to the caller.
type ProcessorError struct {
	Err error
}

func (e *ProcessorError) Error() string { return e.Err.Error() }

func (e *ProcessorError) Unwrap() error { return e.Err }

// Webhook authenticity failures. Both are terminal before any state mutation.
var (
	ErrSignatureMissing = fmt.Errorf("No signature found")
)

// SignatureError indicates webhook signature verification failed.
type SignatureError struct {
	Err error
}

func (e *SignatureError) Error() string {
	return fmt.Sprintf("webhook signature verification failed: %v", e.Err)
}

func (e *SignatureError) Unwrap() error { return e.Err }
