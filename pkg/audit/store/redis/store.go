// Package redis implements the audit persistence adapter on a Redis list.
// Records are appended as canonical JSON documents under one key, which makes
// the store append-only by construction; a TxPipeline keeps batches atomic.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"custodia/pkg/audit"
)

// DefaultKey is the list key used when none is configured.
const DefaultKey = "custodia:audit:records"

// Store appends audit records to a Redis list.
type Store struct {
	client *redis.Client
	key    string
}

// Option configures the Store.
type Option func(*Store)

// WithKey overrides the list key, e.g. to keep separate chains per service.
func WithKey(key string) Option {
	return func(s *Store) {
		if key != "" {
			s.key = key
		}
	}
}

// New wraps an existing Redis client. Close closes the client.
func New(client *redis.Client, opts ...Option) *Store {
	s := &Store{client: client, key: DefaultKey}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open connects to the given redis URL and verifies the connection.
func Open(ctx context.Context, url string, opts ...Option) (*Store, error) {
	ropts, err := redis.ParseURL(url)
	if err != nil {
		return nil, &audit.PersistenceError{Op: "open", Err: err}
	}
	client := redis.NewClient(ropts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, &audit.PersistenceError{Op: "open", Err: err}
	}
	return New(client, opts...), nil
}

// AppendBatch pushes the whole batch in one MULTI/EXEC pipeline.
func (s *Store) AppendBatch(ctx context.Context, records []audit.Record) error {
	if len(records) == 0 {
		return nil
	}
	values := make([]any, 0, len(records))
	for _, r := range records {
		b, err := json.Marshal(r)
		if err != nil {
			return &audit.PersistenceError{Op: "append", Err: fmt.Errorf("marshal record: %w", err)}
		}
		values = append(values, b)
	}

	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, s.key, values...)
	if _, err := pipe.Exec(ctx); err != nil {
		return &audit.PersistenceError{Op: "append", Err: err}
	}
	return nil
}

// ReadRange scans the list in chain order and filters by timestamp.
func (s *Store) ReadRange(ctx context.Context, from, to time.Time, limit int) ([]audit.Record, error) {
	raw, err := s.client.LRange(ctx, s.key, 0, -1).Result()
	if err != nil {
		return nil, &audit.PersistenceError{Op: "read range", Err: err}
	}

	var out []audit.Record
	for _, item := range raw {
		var r audit.Record
		if err := json.Unmarshal([]byte(item), &r); err != nil {
			return nil, &audit.PersistenceError{Op: "read range", Err: fmt.Errorf("unmarshal record: %w", err)}
		}
		if r.Timestamp.Before(from) {
			continue
		}
		if !to.IsZero() && r.Timestamp.After(to) {
			continue
		}
		r.Timestamp = r.Timestamp.UTC()
		r.ExpiresAt = r.ExpiresAt.UTC()
		out = append(out, r)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// LastRecord returns the list tail, or nil when the list is empty.
func (s *Store) LastRecord(ctx context.Context) (*audit.Record, error) {
	item, err := s.client.LIndex(ctx, s.key, -1).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, &audit.PersistenceError{Op: "last record", Err: err}
	}
	var r audit.Record
	if err := json.Unmarshal([]byte(item), &r); err != nil {
		return nil, &audit.PersistenceError{Op: "last record", Err: fmt.Errorf("unmarshal record: %w", err)}
	}
	r.Timestamp = r.Timestamp.UTC()
	r.ExpiresAt = r.ExpiresAt.UTC()
	return &r, nil
}

// PurgeExpired rewrites the list without records past their retention period.
// The rewrite runs in one MULTI/EXEC pipeline so readers never observe a
// partially purged list.
func (s *Store) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	raw, err := s.client.LRange(ctx, s.key, 0, -1).Result()
	if err != nil {
		return 0, &audit.PersistenceError{Op: "purge expired", Err: err}
	}

	kept := make([]any, 0, len(raw))
	var purged int64
	for _, item := range raw {
		var r audit.Record
		if err := json.Unmarshal([]byte(item), &r); err != nil {
			return 0, &audit.PersistenceError{Op: "purge expired", Err: fmt.Errorf("unmarshal record: %w", err)}
		}
		if r.ExpiresAt.Before(before) {
			purged++
			continue
		}
		kept = append(kept, item)
	}
	if purged == 0 {
		return 0, nil
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key)
	if len(kept) > 0 {
		pipe.RPush(ctx, s.key, kept...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, &audit.PersistenceError{Op: "purge expired", Err: err}
	}
	return purged, nil
}

// Close releases the Redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
