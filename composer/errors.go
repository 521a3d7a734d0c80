package composer

import (
	"errors"
	"fmt"
)

// Validation failures are detected locally, before any network call.
var (
	ErrValidation   = errors.New("validation failed")
	ErrEmptySubject = fmt.Errorf("%w: subject is required", ErrValidation)
	ErrEmptyBody    = fmt.Errorf("%w: body is required", ErrValidation)
)

// Session state errors.
var (
	ErrUnsavedChanges = errors.New("composer has unsaved changes")
	ErrSessionClosed  = errors.New("composer session is not open")
	ErrBusy           = errors.New("composer is already sending")
)

// Operation names used in OperationError
const (
	OpLoadDraft = "load_draft"
	OpSaveDraft = "save_draft"
	OpSendEmail = "send_email"
)

// OperationError is a primary failure: the backend rejected a draft load,
// draft save or send. It is surfaced to the user and never retried
// automatically.
type OperationError struct {
	Op  string // The operation that failed (e.g., "save_draft")
	Err error  // The underlying error
}

// Error implements the error interface
func (e *OperationError) Error() string {
	return fmt.Sprintf("%s failed: %s", e.Op, e.Err.Error())
}

// Unwrap allows errors.Is and errors.As to work with OperationError
func (e *OperationError) Unwrap() error {
	return e.Err
}

func opError(op string, err error) error {
	return &OperationError{Op: op, Err: err}
}
