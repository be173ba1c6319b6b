package store

import "errors"

// Sentinel errors for the store package.
var (
	// ErrNotFound is returned when an entity cannot be found.
	ErrNotFound = errors.New("store: not found")

	// ErrInvalidID is returned when an invalid ID is provided.
	ErrInvalidID = errors.New("store: invalid id")

	// ErrInvalidReference is returned when an entity points at a related
	// entity that does not exist.
	ErrInvalidReference = errors.New("store: invalid reference")

	// ErrNotConnected is returned when operations are attempted before Connect().
	ErrNotConnected = errors.New("store: not connected")

	// ErrAlreadyConnected is returned when Connect() is called twice.
	ErrAlreadyConnected = errors.New("store: already connected")

	// ErrInvalidSort is returned when a sort field is not sortable for the kind.
	ErrInvalidSort = errors.New("store: invalid sort")

	// ErrTransactionFailed is returned when a database transaction fails.
	// This indicates the atomic operation could not complete and no changes were made.
	ErrTransactionFailed = errors.New("store: transaction failed")
)

// ReferenceError reports which relation of an entity points at a missing row.
type ReferenceError struct {
	Field string
	Kind  Kind
	ID    int64
}

func (e *ReferenceError) Error() string {
	return "store: " + e.Field + " references missing " + string(e.Kind)
}

func (e *ReferenceError) Unwrap() error {
	return ErrInvalidReference
}

// Error checking helpers.

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsInvalidID(err error) bool {
	return errors.Is(err, ErrInvalidID)
}

func IsInvalidReference(err error) bool {
	return errors.Is(err, ErrInvalidReference)
}

func IsNotConnected(err error) bool {
	return errors.Is(err, ErrNotConnected)
}
