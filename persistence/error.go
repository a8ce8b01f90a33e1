package persistence

import (
	"errors"
	"fmt"
)

// ConflictError indicates that an append failed because the target stream's
// actual revision did not match the revision expected by the caller.
//
// It is never retried by the engine; the caller must reload the aggregate
// and reapply its command.
type ConflictError struct {
	// TenantID and StreamID identify the stream that was appended to.
	TenantID string
	StreamID string

	// ExpectedRevision is the revision the caller believed the stream to be
	// at.
	ExpectedRevision uint64
}

func (e ConflictError) Error() string {
	return fmt.Sprintf(
		"optimistic concurrency conflict appending to stream %s of tenant %s, stream is not at revision %d",
		e.StreamID,
		e.TenantID,
		e.ExpectedRevision,
	)
}

// UnavailableError indicates that the backing store could not be reached or
// failed transiently.
//
// No partial writes are ever observable, so the failed operation is safe to
// retry with backoff at the caller's discretion.
type UnavailableError struct {
	// Cause is the underlying storage error.
	Cause error
}

func (e UnavailableError) Error() string {
	return fmt.Sprintf("the backing store is unavailable: %s", e.Cause)
}

func (e UnavailableError) Unwrap() error {
	return e.Cause
}

// CorruptEventError indicates that a persisted event could not be
// deserialized.
//
// It is fatal for the affected stream. Reads fail loudly at the corrupt
// record; the engine never silently skips it.
type CorruptEventError struct {
	// TenantID and StreamID identify the stream containing the corrupt
	// record. They are empty if the record was read from the global stream
	// before its origin could be determined.
	TenantID string
	StreamID string

	// GlobalSequence is the corrupt record's global sequence, if known.
	GlobalSequence uint64

	// Cause is the deserialization error.
	Cause error
}

func (e CorruptEventError) Error() string {
	return fmt.Sprintf(
		"event at global sequence %d is corrupt: %s",
		e.GlobalSequence,
		e.Cause,
	)
}

func (e CorruptEventError) Unwrap() error {
	return e.Cause
}

// IsConflict returns true if err is a ConflictError.
func IsConflict(err error) bool {
	var c ConflictError
	return errors.As(err, &c)
}
