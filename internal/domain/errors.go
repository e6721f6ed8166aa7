package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals a missing podcast or episode.
	ErrNotFound = errors.New("not found")
	// ErrValidation signals a request rejected before any backend call.
	ErrValidation = errors.New("validation failed")
	// ErrBackendRejected signals that the vector backend refused a schema or index operation.
	ErrBackendRejected = errors.New("backend rejected")
	// ErrPartialWrite signals that a batched write stopped before all batches were applied.
	ErrPartialWrite = errors.New("partial write")
	// ErrVectorDimMismatch signals a vector dimension mismatch.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
)

// PartialWriteError reports how many items of a batched write were applied before it failed.
type PartialWriteError struct {
	Op    string
	Done  int
	Total int
	Err   error
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("%s: %s after %d of %d: %v", e.Op, ErrPartialWrite.Error(), e.Done, e.Total, e.Err)
}

// Unwrap exposes both the sentinel and the cause to errors.Is.
func (e *PartialWriteError) Unwrap() []error { return []error{ErrPartialWrite, e.Err} }

// NewPartialWrite creates a partial write error.
func NewPartialWrite(op string, done, total int, err error) error {
	return &PartialWriteError{Op: op, Done: done, Total: total, Err: err}
}

// Validationf formats a message and wraps ErrValidation.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
