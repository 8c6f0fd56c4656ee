package audit

import (
	"context"
	"time"
)

// Store is the persistence boundary. Implementations never interpret record
// contents, which keeps the adapter narrow and swappable: a relational table,
// a Redis list, or an in-memory slice all satisfy the same contract.
type Store interface {
	// AppendBatch commits the ordered batch atomically or not at all, so a
	// crash mid-batch cannot leave a partially linked chain. Infrastructure
	// faults are reported as *PersistenceError.
	AppendBatch(ctx context.Context, records []Record) error

	// ReadRange returns records whose timestamps fall in [from, to] in chain
	// order. A zero `to` means no upper bound; limit <= 0 means no limit.
	ReadRange(ctx context.Context, from, to time.Time, limit int) ([]Record, error)

	// LastRecord returns the most recently appended record, or nil when the
	// store is empty. The logger reloads its tail hash from it on startup.
	LastRecord(ctx context.Context) (*Record, error)

	// PurgeExpired deletes records whose ExpiresAt is before the given time
	// and reports how many were removed. Intended for the external retention
	// job; the logger itself never calls it.
	PurgeExpired(ctx context.Context, before time.Time) (int64, error)

	// Close releases the storage handle.
	Close() error
}
