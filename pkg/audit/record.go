package audit

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Record is the durable form of an Event. It is created once at flush time,
// never mutated, and only read or purged by an external retention job once
// ExpiresAt passes.
type Record struct {
	ID            uuid.UUID      `json:"id"`
	CorrelationID uuid.UUID      `json:"correlation_id"`
	Timestamp     time.Time      `json:"timestamp"`
	UserID        string         `json:"user_id,omitempty"`
	UserEmail     string         `json:"user_email,omitempty"`
	UserIP        string         `json:"user_ip,omitempty"`
	Action        Action         `json:"action"`
	ResourceType  string         `json:"resource_type"`
	ResourceID    string         `json:"resource_id,omitempty"`
	Level         Level          `json:"level"`
	Result        Result         `json:"result"`
	Message       string         `json:"message"`
	Metadata      map[string]any `json:"metadata,omitempty"`

	// EncryptedData holds the ciphertext of SensitiveData, nil when the event
	// carried none. encoding/json renders it as base64, matching the at-rest
	// representation in every store.
	EncryptedData []byte `json:"encrypted_data,omitempty"`

	RetentionYears int       `json:"retention_years"`
	ExpiresAt      time.Time `json:"expires_at"`

	// PreviousHash is GenesisHash for the first record of a chain.
	PreviousHash string `json:"previous_hash"`
	LogHash      string `json:"log_hash"`
}

// NewRecord converts a validated event into its durable form. The hashes are
// left empty; the chain builder assigns them during flush. encrypted is the
// ciphertext of the event's sensitive data, or nil when there was none.
func NewRecord(e Event, encrypted []byte) (Record, error) {
	if err := e.Validate(); err != nil {
		return Record{}, err
	}
	metadata, err := CanonicalizeMap(e.Metadata)
	if err != nil {
		return Record{}, fmt.Errorf("canonicalize metadata: %w", err)
	}
	ts := e.Timestamp.UTC().Truncate(time.Microsecond)
	return Record{
		ID:             uuid.New(),
		CorrelationID:  e.CorrelationID,
		Timestamp:      ts,
		UserID:         e.UserID,
		UserEmail:      e.UserEmail,
		UserIP:         e.UserIP,
		Action:         e.Action,
		ResourceType:   e.ResourceType,
		ResourceID:     e.ResourceID,
		Level:          e.Level,
		Result:         e.Result,
		Message:        e.Message,
		Metadata:       metadata,
		EncryptedData:  encrypted,
		RetentionYears: e.RetentionYears,
		ExpiresAt:      ts.AddDate(e.RetentionYears, 0, 0),
	}, nil
}

// digestPayload fixes the field order and string rendering used for hash
// computation. It covers every record field except LogHash, ciphertext
// included, so tampering with encrypted payloads also breaks the chain.
type digestPayload struct {
	ID             string         `json:"id"`
	CorrelationID  string         `json:"correlation_id"`
	Timestamp      string         `json:"timestamp"`
	UserID         string         `json:"user_id"`
	UserEmail      string         `json:"user_email"`
	UserIP         string         `json:"user_ip"`
	Action         string         `json:"action"`
	ResourceType   string         `json:"resource_type"`
	ResourceID     string         `json:"resource_id"`
	Level          string         `json:"level"`
	Result         string         `json:"result"`
	Message        string         `json:"message"`
	Metadata       map[string]any `json:"metadata"`
	EncryptedData  string         `json:"encrypted_data"`
	RetentionYears int            `json:"retention_years"`
	ExpiresAt      string         `json:"expires_at"`
	PreviousHash   string         `json:"previous_hash"`
}

// CanonicalBytes returns the deterministic serialization digested by the
// chain builder. PreviousHash must already be assigned.
func (r *Record) CanonicalBytes() ([]byte, error) {
	payload := digestPayload{
		ID:             r.ID.String(),
		CorrelationID:  r.CorrelationID.String(),
		Timestamp:      r.Timestamp.UTC().Format(time.RFC3339Nano),
		UserID:         r.UserID,
		UserEmail:      r.UserEmail,
		UserIP:         r.UserIP,
		Action:         string(r.Action),
		ResourceType:   r.ResourceType,
		ResourceID:     r.ResourceID,
		Level:          string(r.Level),
		Result:         string(r.Result),
		Message:        r.Message,
		Metadata:       r.Metadata,
		EncryptedData:  base64.StdEncoding.EncodeToString(r.EncryptedData),
		RetentionYears: r.RetentionYears,
		ExpiresAt:      r.ExpiresAt.UTC().Format(time.RFC3339Nano),
		PreviousHash:   r.PreviousHash,
	}
	b, err := encodeCanonical(payload)
	if err != nil {
		return nil, fmt.Errorf("canonical record bytes: %w", err)
	}
	return b, nil
}

// Clone returns a deep copy so stores can hand out records without sharing
// the metadata map or ciphertext slice.
func (r Record) Clone() Record {
	out := r
	if r.Metadata != nil {
		m, err := CanonicalizeMap(r.Metadata)
		if err != nil {
			// Unencodable values cannot round-trip; copy the map explicitly so
			// the clone never shares it.
			m = make(map[string]any, len(r.Metadata))
			for k, v := range r.Metadata {
				m[k] = v
			}
		}
		out.Metadata = m
	}
	if r.EncryptedData != nil {
		out.EncryptedData = append([]byte(nil), r.EncryptedData...)
	}
	return out
}
