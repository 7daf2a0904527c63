// Package apperr defines the error taxonomy shared across the cache,
// fetch, and session layers.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means the remote backend has no file at any attempted
	// path. It is never surfaced to the end user as an error; callers
	// drop or omit the corresponding tab instead.
	ErrNotFound = errors.New("not found")

	// ErrCacheMiss means the content store has no record for the key.
	ErrCacheMiss = errors.New("cache miss")

	// ErrSessionMissing means no session has been persisted for a notebook.
	ErrSessionMissing = errors.New("session missing")
)

// TransientError marks a fetch failure that is not path-related (network
// failure, backend 5xx, timeout). Callers may re-invoke the operation;
// no automatic retry loop is performed.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return "transient: " + e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// Transient wraps err as a TransientError. Returns nil for a nil err.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err is (or wraps) a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// PersistenceError marks a durable-store write failure. It is logged and
// non-fatal: the triggering call still succeeds using in-memory state.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %s", e.Op, e.Err.Error())
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
