// Package errs defines the error taxonomy shared by the local store, the
// remote gateway, and the sync engine.
//
// The split matters for propagation policy: validation errors surface to the
// caller immediately, network errors are swallowed at the sync boundary and
// retried on the next reconciliation, and storage errors are fatal to the
// operation that raised them.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a group or point does not exist,
	// locally or remotely.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when creating a group whose code is taken.
	ErrConflict = errors.New("already exists")
)

// ValidationError reports a missing or invalid required field. It is always
// surfaced to the caller synchronously.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Validation builds a ValidationError for the given field.
func Validation(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// NetworkError collapses any transport failure to "no remote connectivity".
// The sync engine treats it as retry-later and never reports it to the UI.
type NetworkError struct {
	Op    string
	Cause error
}

func (e *NetworkError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("network failure during %s: %v", e.Op, e.Cause)
	}
	return fmt.Sprintf("network failure during %s", e.Op)
}

func (e *NetworkError) Unwrap() error { return e.Cause }

// Network wraps err as a NetworkError for the given operation.
func Network(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Cause: err}
}

// StorageError reports a local persistence failure. The local store is the
// integrity backbone of the replica, so these must propagate.
type StorageError struct {
	Op    string
	Cause error
}

func (e *StorageError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("storage failure during %s: %v", e.Op, e.Cause)
	}
	return fmt.Sprintf("storage failure during %s", e.Op)
}

func (e *StorageError) Unwrap() error { return e.Cause }

// Storage wraps err as a StorageError for the given operation.
func Storage(op string, err error) *StorageError {
	return &StorageError{Op: op, Cause: err}
}

// IsNetwork reports whether err is (or wraps) a NetworkError.
func IsNetwork(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// IsStorage reports whether err is (or wraps) a StorageError.
func IsStorage(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
