package audit

import (
	"errors"
	"fmt"
)

// Sentinel errors for lifecycle facts. The logger returns these (optionally
// wrapped) so callers can branch with errors.Is.
var (
	// ErrClosed is returned by Log/Flush after Shutdown completed.
	ErrClosed = errors.New("audit: logger is closed")

	// ErrNotInitialized is returned by the process-wide registry before
	// Initialize has been called.
	ErrNotInitialized = errors.New("audit: logger not initialized")
)

// InvalidEventError reports a caller bug: a malformed event that must never be
// retried. It is returned synchronously from event construction and Log.
type InvalidEventError struct {
	Field  string
	Reason string
}

func (e *InvalidEventError) Error() string {
	return fmt.Sprintf("audit: invalid event: %s: %s", e.Field, e.Reason)
}

// DecryptionError reports an authentication-tag mismatch or malformed
// ciphertext on read. It indicates tampering or a wrong key and is never
// silently ignored.
type DecryptionError struct {
	Err error
}

func (e *DecryptionError) Error() string {
	return fmt.Sprintf("audit: decrypt sensitive data: %v", e.Err)
}

func (e *DecryptionError) Unwrap() error { return e.Err }

// PersistenceError reports a transient infrastructure fault during flush.
// The logger retries these with bounded backoff before surfacing them.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("audit: persistence failed during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ChainIntegrityError marks the first record at or after a tamper point found
// during chain verification.
type ChainIntegrityError struct {
	Index  int
	Reason string
}

func (e *ChainIntegrityError) Error() string {
	return fmt.Sprintf("audit: chain integrity violation at record %d: %s", e.Index, e.Reason)
}
