package stocksync

import "fmt"

// StoreUnavailableError indicates the query store fetch could not complete.
// The run fails with no partial result; retry policy belongs to the caller.
type StoreUnavailableError struct {
	Err error
}

// Error implements the error interface
func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("query store unavailable: %v", e.Err)
}

// Unwrap returns the underlying error
func (e *StoreUnavailableError) Unwrap() error {
	return e.Err
}

// PersistenceError indicates the forecast upsert batch could not be applied.
// The batch is all-or-nothing, so no partial updates are observable.
type PersistenceError struct {
	Err error
}

// Error implements the error interface
func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to persist forecast updates: %v", e.Err)
}

// Unwrap returns the underlying error
func (e *PersistenceError) Unwrap() error {
	return e.Err
}
