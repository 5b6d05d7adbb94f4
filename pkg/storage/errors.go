package storage

import (
	"errors"
	"fmt"
)

// Sentinel errors for storage operations.
var (
	// ErrNotFound indicates the requested item does not exist.
	ErrNotFound = errors.New("item not found")

	// ErrTableNotFound indicates the table does not exist.
	ErrTableNotFound = errors.New("table not found")

	// ErrConditionFailed indicates a conditional write found state that
	// did not match the expected prior state.
	ErrConditionFailed = errors.New("condition failed")

	// ErrThrottled indicates the store rejected the request for
	// provisioned-capacity reasons and retries were exhausted.
	ErrThrottled = errors.New("request throttled")

	// ErrAccessDenied indicates insufficient permissions.
	ErrAccessDenied = errors.New("access denied")
)

// StorageError wraps store-specific errors with operation context.
type StorageError struct {
	// Op is the operation that failed (e.g., "Get", "Put").
	Op string

	// Table is the logical table name.
	Table string

	// Key is a printable rendering of the item key, if applicable.
	Key string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("storage %s: %s[%s]: %v", e.Op, e.Table, e.Key, e.Err)
	}
	if e.Table != "" {
		return fmt.Sprintf("storage %s: %s: %v", e.Op, e.Table, e.Err)
	}
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsNotFound returns true if the error indicates an absent item.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsTableNotFound returns true if the error indicates an absent table.
func IsTableNotFound(err error) bool {
	return errors.Is(err, ErrTableNotFound)
}

// IsConditionFailed returns true if the error indicates a conditional
// write lost an optimistic-concurrency race.
func IsConditionFailed(err error) bool {
	return errors.Is(err, ErrConditionFailed)
}

// IsThrottled returns true if the error indicates retries against a
// throttling store were exhausted.
func IsThrottled(err error) bool {
	return errors.Is(err, ErrThrottled)
}
