package persistence

import (
	"errors"
	"fmt"
)

var (
	// ErrNotInitialized is returned by handle operations issued before Initialize or after Dispose.
	ErrNotInitialized = errors.New("connection handle not initialized")
	// ErrAlreadyInitialized is returned when Initialize is called on a live handle.
	ErrAlreadyInitialized = errors.New("connection handle already initialized")
	// ErrDocumentNotFound is returned by Session.Load when no document matches.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrConcurrencyConflict signals an optimistic concurrency violation during Commit.
	ErrConcurrencyConflict = errors.New("document changed since it was loaded")
	// ErrTooManyRequests is returned once a session exceeds its request budget.
	ErrTooManyRequests = errors.New("session request limit exceeded")
	// ErrSessionClosed is returned by operations on a closed session.
	ErrSessionClosed = errors.New("session closed")
)

// InitializationError wraps the cause reported by the store while building a connection.
type InitializationError struct {
	Database string
	Err      error
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("initialize connection to database %q: %v", e.Database, e.Err)
}

func (e *InitializationError) Unwrap() error { return e.Err }
