package chain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"custodia/pkg/audit"
)

func newTestRecords(t *testing.T, n int) []*audit.Record {
	t.Helper()
	records := make([]*audit.Record, n)
	for i := range records {
		event, err := audit.NewEvent(audit.ActionRead, "document", "read document",
			audit.WithUser("u1"),
		)
		require.NoError(t, err)
		record, err := audit.NewRecord(event, nil)
		require.NoError(t, err)
		records[i] = &record
	}
	return records
}

func values(records []*audit.Record) []audit.Record {
	out := make([]audit.Record, len(records))
	for i, r := range records {
		out[i] = *r
	}
	return out
}

func TestSeal_LinksRecords(t *testing.T) {
	builder := NewBuilder("")
	records := newTestRecords(t, 3)

	require.NoError(t, builder.Seal(records))

	assert.Equal(t, GenesisHash, records[0].PreviousHash)
	for i := 1; i < len(records); i++ {
		assert.Equal(t, records[i-1].LogHash, records[i].PreviousHash)
	}
	assert.Equal(t, records[2].LogHash, builder.Tail())
}

func TestSeal_TailCarriesAcrossBatches(t *testing.T) {
	builder := NewBuilder("")

	first := newTestRecords(t, 2)
	require.NoError(t, builder.Seal(first))
	second := newTestRecords(t, 2)
	require.NoError(t, builder.Seal(second))

	assert.Equal(t, first[1].LogHash, second[0].PreviousHash)

	all := append(values(first), values(second)...)
	assert.NoError(t, Verify(all, GenesisHash))
}

func TestNewBuilder_ResumesFromPersistedTail(t *testing.T) {
	builder := NewBuilder("")
	first := newTestRecords(t, 2)
	require.NoError(t, builder.Seal(first))

	// Simulate a restart: a new builder picks up the last persisted hash.
	resumed := NewBuilder(first[1].LogHash)
	second := newTestRecords(t, 1)
	require.NoError(t, resumed.Seal(second))

	all := append(values(first), values(second)...)
	assert.NoError(t, Verify(all, GenesisHash))
}

func TestVerify_EmptyChain(t *testing.T) {
	assert.NoError(t, Verify(nil, GenesisHash))
}

func TestVerify_FlagsFirstTamperedRecord(t *testing.T) {
	builder := NewBuilder("")
	records := newTestRecords(t, 4)
	require.NoError(t, builder.Seal(records))

	tampered := values(records)
	tampered[2].Message = "rewritten history"

	err := Verify(tampered, GenesisHash)
	var integrity *audit.ChainIntegrityError
	require.ErrorAs(t, err, &integrity)
	assert.Equal(t, 2, integrity.Index)
}

func TestVerify_FlagsTamperedCiphertext(t *testing.T) {
	builder := NewBuilder("")

	event, err := audit.NewEvent(audit.ActionConfigChange, "config", "changed")
	require.NoError(t, err)
	record, err := audit.NewRecord(event, []byte("ciphertext"))
	require.NoError(t, err)
	require.NoError(t, builder.Seal([]*audit.Record{&record}))

	tampered := record
	tampered.EncryptedData = []byte("ciphertexT")

	err = Verify([]audit.Record{tampered}, GenesisHash)
	var integrity *audit.ChainIntegrityError
	require.ErrorAs(t, err, &integrity)
	assert.Equal(t, 0, integrity.Index)
}

func TestVerify_FlagsBrokenLinkage(t *testing.T) {
	builder := NewBuilder("")
	records := newTestRecords(t, 3)
	require.NoError(t, builder.Seal(records))

	// Drop the middle record: the third no longer links to the second.
	gapped := []audit.Record{*records[0], *records[2]}

	err := Verify(gapped, GenesisHash)
	var integrity *audit.ChainIntegrityError
	require.ErrorAs(t, err, &integrity)
	assert.Equal(t, 1, integrity.Index)
}

func TestVerify_FlagsWrongGenesis(t *testing.T) {
	builder := NewBuilder("not-genesis")
	records := newTestRecords(t, 1)
	require.NoError(t, builder.Seal(records))

	err := Verify(values(records), GenesisHash)
	var integrity *audit.ChainIntegrityError
	require.ErrorAs(t, err, &integrity)
	assert.Equal(t, 0, integrity.Index)
}

func TestSeal_ErrorLeavesTailUntouched(t *testing.T) {
	builder := NewBuilder("")

	// A record with a non-JSON-safe metadata value cannot be serialized.
	event, err := audit.NewEvent(audit.ActionRead, "document", "read")
	require.NoError(t, err)
	record, err := audit.NewRecord(event, nil)
	require.NoError(t, err)
	record.Metadata = map[string]any{"bad": make(chan int)}

	require.Error(t, builder.Seal([]*audit.Record{&record}))
	assert.Equal(t, GenesisHash, builder.Tail())
	assert.Empty(t, record.LogHash)
	assert.Empty(t, record.PreviousHash)
}

func TestSeal_ConcurrentBatchesStayLinear(t *testing.T) {
	builder := NewBuilder("")

	const batches = 8
	done := make(chan []*audit.Record, batches)
	for i := 0; i < batches; i++ {
		records := newTestRecords(t, 2)
		go func() {
			if err := builder.Seal(records); err == nil {
				done <- records
			} else {
				done <- nil
			}
		}()
	}

	sealed := make(map[string][]audit.Record)
	for i := 0; i < batches; i++ {
		records := <-done
		require.NotNil(t, records)
		sealed[records[0].PreviousHash] = values(records)
	}

	// Rebuild the chain by following previous-hash links: every batch must
	// claim a distinct predecessor and the whole sequence must verify.
	var ordered []audit.Record
	next := GenesisHash
	for len(ordered) < batches*2 {
		batch, ok := sealed[next]
		require.True(t, ok, "chain has a gap at %s", next)
		ordered = append(ordered, batch...)
		next = batch[len(batch)-1].LogHash
	}
	assert.NoError(t, Verify(ordered, GenesisHash))
}
