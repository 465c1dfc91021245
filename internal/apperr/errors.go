// Package apperr holds the error vocabulary shared across layers. Callers
// wrap these with fmt.Errorf("...: %w") and test with errors.Is.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")
	ErrValidation    = errors.New("validation failed")
	ErrUnavailable   = errors.New("unavailable")

	// ErrTransport covers HTTP, network and database driver failures.
	ErrTransport = errors.New("transport failure")
	// ErrTimeout is returned when a backend call exceeds its deadline.
	ErrTimeout = errors.New("timeout")
	// ErrMalformedRecord marks a row or response that could not be decoded.
	ErrMalformedRecord = errors.New("malformed record")
	// ErrStaleBackend is returned when the active backend was swapped while
	// the call was in flight; its result was discarded.
	ErrStaleBackend = errors.New("backend swapped during call")
	// ErrCommitted accompanies ErrStaleBackend when the write reached the
	// previous backend before the swap. Retrying would duplicate it.
	ErrCommitted = errors.New("write committed on previous backend")
)
