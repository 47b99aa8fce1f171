package ledger

import (
	"errors"
	"fmt"
)

// Ledger access errors
var (
	// ErrDependencyMissing is returned when the backend needed to read the
	// ledger is not available (for example missing Google credentials).
	ErrDependencyMissing = errors.New("ledger backend unavailable")

	// ErrSourceNotFound is returned when the ledger workbook does not exist.
	ErrSourceNotFound = errors.New("ledger workbook not found")

	// ErrLockedResource is returned when another process holds the ledger
	// workbook open. The write is skipped, not retried.
	ErrLockedResource = errors.New("ledger workbook is locked by another process")

	// ErrTransientWriteFailure is returned when every save attempt failed.
	ErrTransientWriteFailure = errors.New("ledger save failed after retries")

	// ErrInvalidRow is returned when a record has no usable ledger position.
	ErrInvalidRow = errors.New("record has no ledger row")
)

// Error wraps ledger failures with the operation and path involved.
type Error struct {
	// Op is the operation that failed (e.g., "Scan", "ApplyClaim").
	Op string

	// Err is one of the sentinel errors above, or the raw cause.
	Err error

	// Details provides additional context about the failure.
	Details string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("ledger: %s failed: %s: %v", e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("ledger: %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements error matching for errors.Is.
func (e *Error) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func newError(op string, err error, details string) *Error {
	return &Error{Op: op, Err: err, Details: details}
}

// Retryable reports whether err is a ledger projection failure that a later
// flush can repair.
func Retryable(err error) bool {
	return errors.Is(err, ErrLockedResource) || errors.Is(err, ErrTransientWriteFailure)
}
