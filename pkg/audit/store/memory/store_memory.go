// Package memory provides an in-memory persistence adapter. It backs unit
// tests and embedded deployments that do not need durability.
package memory

import (
	"context"
	"sync"
	"time"

	"custodia/pkg/audit"
)

// Store keeps records in an append-only slice guarded by a mutex. Reads hand
// out deep copies so callers cannot mutate stored history.
type Store struct {
	mu      sync.RWMutex
	records []audit.Record
	closed  bool
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{}
}

// AppendBatch appends all records or none. Append order is chain order.
func (s *Store) AppendBatch(_ context.Context, records []audit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return &audit.PersistenceError{Op: "append", Err: audit.ErrClosed}
	}
	for _, r := range records {
		s.records = append(s.records, r.Clone())
	}
	return nil
}

// ReadRange returns records with Timestamp in [from, to] in chain order.
func (s *Store) ReadRange(_ context.Context, from, to time.Time, limit int) ([]audit.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []audit.Record
	for _, r := range s.records {
		if r.Timestamp.Before(from) {
			continue
		}
		if !to.IsZero() && r.Timestamp.After(to) {
			continue
		}
		out = append(out, r.Clone())
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// LastRecord returns the most recently appended record, or nil when empty.
func (s *Store) LastRecord(_ context.Context) (*audit.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.records) == 0 {
		return nil, nil
	}
	last := s.records[len(s.records)-1].Clone()
	return &last, nil
}

// PurgeExpired drops records whose ExpiresAt is before the given time.
func (s *Store) PurgeExpired(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.records[:0]
	var purged int64
	for _, r := range s.records {
		if r.ExpiresAt.Before(before) {
			purged++
			continue
		}
		kept = append(kept, r)
	}
	s.records = kept
	return purged, nil
}

// Close marks the store closed; later appends fail.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Len reports how many records are stored. Test helper.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// All returns a copy of every stored record in chain order. Test helper.
func (s *Store) All() []audit.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]audit.Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r.Clone())
	}
	return out
}

// Tamper overwrites the record at index i. Test helper for verification
// scenarios; a real store has no mutation path.
func (s *Store) Tamper(i int, mutate func(*audit.Record)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i >= 0 && i < len(s.records) {
		mutate(&s.records[i])
	}
}
