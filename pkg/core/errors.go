package core

import (
	"errors"
	"fmt"

	"github.com/jyntrix/memctx-go/pkg/storage"
)

// Common sentinel errors.
var (
	// ErrInvalidConfig indicates the configuration failed validation.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrMissingUserID indicates an operation arrived without a user
	// identifier.
	ErrMissingUserID = storage.ErrMissingUserID

	// ErrNotFound indicates the requested memory does not exist.
	ErrNotFound = storage.ErrNotFound

	// ErrStoreOperation indicates a storage backend call failed.
	ErrStoreOperation = errors.New("store operation failed")

	// ErrEmbeddingFailed indicates the embedding provider call failed.
	ErrEmbeddingFailed = errors.New("embedding failed")
)

// ContextError wraps an error with the operation that produced it.
type ContextError struct {
	// Op is the operation that failed (e.g. "BuildContext", "Add").
	Op string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *ContextError) Error() string {
	return fmt.Sprintf("memctx: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is / errors.As.
func (e *ContextError) Unwrap() error {
	return e.Err
}

// opErr wraps err with op, passing nil through.
func opErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &ContextError{Op: op, Err: err}
}
