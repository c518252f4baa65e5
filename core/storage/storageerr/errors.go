// Package storageerr defines the sentinel errors shared across the storage
// core's packages. Callers should match on these with errors.Is, not on
// the wrapped message text.
package storageerr

import "errors"

var (
	// ErrNotFound is returned when a page, row, key, table, or index that
	// was looked up does not exist.
	ErrNotFound = errors.New("storage: not found")

	// ErrAlreadyExists is returned when a create operation collides with
	// an existing table, index, or key that forbids duplicates.
	ErrAlreadyExists = errors.New("storage: already exists")

	// ErrOutOfSpace is returned when the disk file, a page, or the buffer
	// pool has no room left for the requested allocation.
	ErrOutOfSpace = errors.New("storage: out of space")

	// ErrInvalidArgument is returned when a caller passes a value that
	// violates a documented precondition (bad page id, zero pool size,
	// mismatched key type, and the like).
	ErrInvalidArgument = errors.New("storage: invalid argument")

	// ErrCorruption is returned when on-disk bytes fail a checksum or
	// magic-number check, or otherwise can't be a well-formed page.
	ErrCorruption = errors.New("storage: corruption detected")

	// ErrIO is returned when an underlying file operation fails.
	ErrIO = errors.New("storage: io error")
)
