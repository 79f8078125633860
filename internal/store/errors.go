package store

import (
	"errors"
	"fmt"
)

// Archive store failures. Backends wrap these so callers can branch with
// errors.Is regardless of the database behind the store.
var (
	ErrNotFound          = errors.New("record not found")
	ErrDuplicate         = errors.New("record already archived")
	ErrInvalidEntity     = errors.New("archive record rejected by schema")
	ErrTransactionFailed = errors.New("archive transaction failed")

	// ErrArchiveNotFound means the job has never been finalized.
	ErrArchiveNotFound = fmt.Errorf("%w: job archive", ErrNotFound)
)

// IsNotFoundError reports whether err wraps ErrNotFound.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// StoreError records which archive operation failed and on what.
type StoreError struct {
	Entity    string
	Operation string
	Message   string
	Err       error
}

func (e *StoreError) Error() string {
	msg := fmt.Sprintf("%s %s: %s", e.Operation, e.Entity, e.Message)
	if e.Err == nil {
		return msg
	}
	return msg + ": " + e.Err.Error()
}

func (e *StoreError) Unwrap() error { return e.Err }

// NewStoreError builds a StoreError for operation on entity.
func NewStoreError(entity, operation, message string, err error) *StoreError {
	return &StoreError{Entity: entity, Operation: operation, Message: message, Err: err}
}
