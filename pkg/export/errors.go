package export

import (
	"errors"
	"fmt"
)

// ErrWriterClosed indicates a write was attempted after Close.
var ErrWriterClosed = errors.New("export writer closed")

// WriteError wraps failures while emitting a record.
type WriteError struct {
	// Op is the failing step (marshal, write).
	Op string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *WriteError) Error() string {
	return fmt.Sprintf("export %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *WriteError) Unwrap() error {
	return e.Err
}
