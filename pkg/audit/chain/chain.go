// Package chain links audit records into a tamper-evident hash chain. Each
// record's hash depends on its own canonical bytes and the previous record's
// hash, so modifying history is detectable from the first altered record
// onward.
package chain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"custodia/pkg/audit"
)

// GenesisHash is the previous-hash sentinel for the first record of a chain.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Builder owns the in-memory tail hash of one logger instance. The tail is
// mutated only under the builder's mutex so concurrent flushes cannot produce
// two records claiming the same previous hash.
type Builder struct {
	mu   sync.Mutex
	tail string
}

// NewBuilder starts a chain from the given tail hash. Pass the last persisted
// record's LogHash to continue a chain across restarts, or an empty string to
// start from genesis.
func NewBuilder(tail string) *Builder {
	if tail == "" {
		tail = GenesisHash
	}
	return &Builder{tail: tail}
}

// Tail returns the current tail hash.
func (b *Builder) Tail() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tail
}

// Seal assigns PreviousHash and LogHash to each record in strict sequence and
// advances the tail. On error no record is modified and the tail is left
// untouched, so the batch can be rebuilt and sealed again.
func (b *Builder) Seal(records []*audit.Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	tail := b.tail
	hashes := make([]string, len(records))
	for i, r := range records {
		r.PreviousHash = tail
		h, err := digest(r)
		if err != nil {
			// Roll back the hashes assigned so far.
			for j := 0; j <= i; j++ {
				records[j].PreviousHash = ""
				records[j].LogHash = ""
			}
			return fmt.Errorf("chain: seal record %d: %w", i, err)
		}
		hashes[i] = h
		tail = h
	}
	for i, r := range records {
		r.LogHash = hashes[i]
	}
	b.tail = tail
	return nil
}

// Verify walks records in chain order, recomputes every digest, and checks
// the linkage invariant. It returns *audit.ChainIntegrityError naming the
// first failing index, or nil when the chain is intact. The first record's
// PreviousHash must equal expectedPrevious (GenesisHash for a full chain).
func Verify(records []audit.Record, expectedPrevious string) error {
	if expectedPrevious == "" {
		expectedPrevious = GenesisHash
	}
	previous := expectedPrevious
	for i := range records {
		r := records[i]
		if r.PreviousHash != previous {
			return &audit.ChainIntegrityError{
				Index:  i,
				Reason: fmt.Sprintf("previous_hash %s does not match prior log_hash %s", r.PreviousHash, previous),
			}
		}
		computed, err := digest(&r)
		if err != nil {
			return &audit.ChainIntegrityError{Index: i, Reason: fmt.Sprintf("digest failed: %v", err)}
		}
		if computed != r.LogHash {
			return &audit.ChainIntegrityError{
				Index:  i,
				Reason: fmt.Sprintf("log_hash %s does not match recomputed digest %s", r.LogHash, computed),
			}
		}
		previous = r.LogHash
	}
	return nil
}

// digest hashes the record's canonical bytes. PreviousHash is part of the
// canonical serialization, which links each digest to its predecessor.
func digest(r *audit.Record) (string, error) {
	b, err := r.CanonicalBytes()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
