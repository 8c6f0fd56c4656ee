// Package postgres implements the audit persistence adapter on PostgreSQL.
// A batch is committed as a single multi-row insert inside a transaction, so
// a crash mid-batch cannot leave a partially linked chain.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib" // postgres driver

	"custodia/pkg/audit"
)

// Schema is the DDL for the audit_records table. Running migrations is the
// embedding application's job; the constant is exported so its tooling has
// one source of truth.
const Schema = `
CREATE TABLE IF NOT EXISTS audit_records (
	seq             BIGSERIAL PRIMARY KEY,
	id              UUID NOT NULL UNIQUE,
	correlation_id  UUID NOT NULL,
	ts              TIMESTAMPTZ NOT NULL,
	user_id         TEXT NOT NULL DEFAULT '',
	user_email      TEXT NOT NULL DEFAULT '',
	user_ip         TEXT NOT NULL DEFAULT '',
	action          TEXT NOT NULL,
	resource_type   TEXT NOT NULL,
	resource_id     TEXT NOT NULL DEFAULT '',
	level           TEXT NOT NULL,
	result          TEXT NOT NULL,
	message         TEXT NOT NULL,
	metadata        JSONB,
	encrypted_data  BYTEA,
	retention_years INT NOT NULL,
	expires_at      TIMESTAMPTZ NOT NULL,
	previous_hash   TEXT NOT NULL,
	log_hash        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS audit_records_ts_idx ON audit_records (ts);
CREATE INDEX IF NOT EXISTS audit_records_expires_at_idx ON audit_records (expires_at);
`

const numColumns = 18

const selectColumns = `
	id, correlation_id, ts, user_id, user_email, user_ip,
	action, resource_type, resource_id, level, result, message,
	metadata, encrypted_data, retention_years, expires_at,
	previous_hash, log_hash
`

// Store persists audit records in PostgreSQL via database/sql over the pgx
// stdlib driver.
type Store struct {
	db *sql.DB
}

// New wraps an existing database handle. Close closes the handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open connects to the given postgres URL and verifies the connection.
func Open(ctx context.Context, url string) (*Store, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, &audit.PersistenceError{Op: "open", Err: err}
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, &audit.PersistenceError{Op: "open", Err: err}
	}
	return &Store{db: db}, nil
}

// EnsureSchema creates the audit_records table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return &audit.PersistenceError{Op: "ensure schema", Err: err}
	}
	return nil
}

// AppendBatch inserts the whole batch in one statement inside a transaction.
func (s *Store) AppendBatch(ctx context.Context, records []audit.Record) error {
	if len(records) == 0 {
		return nil
	}

	placeholders := make([]string, 0, len(records))
	args := make([]any, 0, len(records)*numColumns)
	for i, r := range records {
		p := i * numColumns
		group := make([]string, numColumns)
		for j := range group {
			group[j] = fmt.Sprintf("$%d", p+j+1)
		}
		placeholders = append(placeholders, "("+strings.Join(group, ", ")+")")

		var metadata []byte
		if len(r.Metadata) > 0 {
			b, err := audit.EncodeMap(r.Metadata)
			if err != nil {
				return &audit.PersistenceError{Op: "append", Err: fmt.Errorf("encode metadata: %w", err)}
			}
			metadata = b
		}
		args = append(args,
			r.ID, r.CorrelationID, r.Timestamp,
			r.UserID, r.UserEmail, r.UserIP,
			string(r.Action), r.ResourceType, r.ResourceID,
			string(r.Level), string(r.Result), r.Message,
			metadata, r.EncryptedData, r.RetentionYears, r.ExpiresAt,
			r.PreviousHash, r.LogHash,
		)
	}

	query := `
		INSERT INTO audit_records (
			id, correlation_id, ts, user_id, user_email, user_ip,
			action, resource_type, resource_id, level, result, message,
			metadata, encrypted_data, retention_years, expires_at,
			previous_hash, log_hash
		) VALUES ` + strings.Join(placeholders, ", ")

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &audit.PersistenceError{Op: "append", Err: err}
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		_ = tx.Rollback()
		return &audit.PersistenceError{Op: "append", Err: err}
	}
	if err := tx.Commit(); err != nil {
		return &audit.PersistenceError{Op: "append", Err: err}
	}
	return nil
}

// ReadRange returns records with ts in [from, to] in chain (insertion) order.
func (s *Store) ReadRange(ctx context.Context, from, to time.Time, limit int) ([]audit.Record, error) {
	query := "SELECT " + selectColumns + " FROM audit_records WHERE ts >= $1"
	args := []any{from}
	if !to.IsZero() {
		args = append(args, to)
		query += fmt.Sprintf(" AND ts <= $%d", len(args))
	}
	query += " ORDER BY seq"
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &audit.PersistenceError{Op: "read range", Err: err}
	}
	defer rows.Close()

	return scanRecords(rows)
}

// LastRecord returns the most recently inserted record, or nil when empty.
func (s *Store) LastRecord(ctx context.Context) (*audit.Record, error) {
	query := "SELECT " + selectColumns + " FROM audit_records ORDER BY seq DESC LIMIT 1"
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, &audit.PersistenceError{Op: "last record", Err: err}
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

// PurgeExpired deletes records past their retention period.
func (s *Store) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM audit_records WHERE expires_at < $1`, before)
	if err != nil {
		return 0, &audit.PersistenceError{Op: "purge expired", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, &audit.PersistenceError{Op: "purge expired", Err: err}
	}
	return n, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func scanRecords(rows *sql.Rows) ([]audit.Record, error) {
	var records []audit.Record
	for rows.Next() {
		var (
			r        audit.Record
			action   string
			level    string
			result   string
			metadata []byte
			id       uuid.UUID
			corr     uuid.UUID
		)
		err := rows.Scan(
			&id, &corr, &r.Timestamp,
			&r.UserID, &r.UserEmail, &r.UserIP,
			&action, &r.ResourceType, &r.ResourceID,
			&level, &result, &r.Message,
			&metadata, &r.EncryptedData, &r.RetentionYears, &r.ExpiresAt,
			&r.PreviousHash, &r.LogHash,
		)
		if err != nil {
			return nil, &audit.PersistenceError{Op: "scan record", Err: err}
		}
		r.ID = id
		r.CorrelationID = corr
		r.Action = audit.Action(action)
		r.Level = audit.Level(level)
		r.Result = audit.Result(result)
		r.Timestamp = r.Timestamp.UTC()
		r.ExpiresAt = r.ExpiresAt.UTC()
		if len(metadata) > 0 {
			m, err := audit.DecodeMap(metadata)
			if err != nil {
				return nil, &audit.PersistenceError{Op: "scan record", Err: fmt.Errorf("decode metadata: %w", err)}
			}
			r.Metadata = m
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, &audit.PersistenceError{Op: "iterate records", Err: err}
	}
	return records, nil
}

// IsUniqueViolation reports whether err is a duplicate-key error. Batches are
// idempotent by record ID: a replayed batch fails cleanly instead of forking
// the chain.
func IsUniqueViolation(err error) bool {
	var perr interface{ SQLState() string }
	if errors.As(err, &perr) {
		return perr.SQLState() == "23505"
	}
	return false
}
