//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"custodia/pkg/audit"
	"custodia/pkg/audit/chain"
	"custodia/pkg/audit/fieldcrypt"
	"custodia/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *Store
	ctx   context.Context
}

func TestPostgresStoreSuite(t *testing.T) {
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.ctx = context.Background()
	s.pg = containers.NewPostgresContainer(s.T())
	s.store = New(s.pg.DB)
	s.Require().NoError(s.store.EnsureSchema(s.ctx))
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.pg.TruncateTables(s.ctx, "audit_records"))
}

// sealedRecords builds a fully populated, chained batch the way a flush does.
func (s *PostgresStoreSuite) sealedRecords(n int) []audit.Record {
	key, err := fieldcrypt.GenerateKey()
	s.Require().NoError(err)
	codec, err := fieldcrypt.NewCodec(key)
	s.Require().NoError(err)

	base := time.Now().UTC().Truncate(time.Microsecond)
	pointers := make([]*audit.Record, n)
	for i := range pointers {
		event, err := audit.NewEvent(audit.ActionUpdate, "document", "updated document",
			audit.WithUser("u1"),
			audit.WithUserEmail("u1@example.com"),
			audit.WithUserIP("203.0.113.7"),
			audit.WithResourceID("doc-42"),
			audit.WithMetadata(map[string]any{"version": i + 1}),
			audit.WithTimestamp(base.Add(time.Duration(i)*time.Second)),
		)
		s.Require().NoError(err)

		encrypted, err := codec.EncryptMap(map[string]any{"field": "secret"})
		s.Require().NoError(err)
		record, err := audit.NewRecord(event, encrypted)
		s.Require().NoError(err)
		pointers[i] = &record
	}
	s.Require().NoError(chain.NewBuilder("").Seal(pointers))

	records := make([]audit.Record, n)
	for i, r := range pointers {
		records[i] = *r
	}
	return records
}

func (s *PostgresStoreSuite) TestAppendAndReadRoundTrip() {
	batch := s.sealedRecords(3)
	s.Require().NoError(s.store.AppendBatch(s.ctx, batch))

	got, err := s.store.ReadRange(s.ctx, time.Time{}, time.Time{}, 0)
	s.Require().NoError(err)
	s.Require().Len(got, 3)

	for i := range batch {
		s.Equal(batch[i].ID, got[i].ID)
		s.Equal(batch[i].Timestamp, got[i].Timestamp)
		s.Equal(batch[i].UserEmail, got[i].UserEmail)
		s.Equal(batch[i].Metadata, got[i].Metadata)
		s.Equal(batch[i].EncryptedData, got[i].EncryptedData)
		s.Equal(batch[i].PreviousHash, got[i].PreviousHash)
		s.Equal(batch[i].LogHash, got[i].LogHash)
	}
}

// The chain must verify against what the database hands back, not just
// against in-memory records. This pins the timestamp precision contract.
func (s *PostgresStoreSuite) TestChainVerifiesAfterRoundTrip() {
	s.Require().NoError(s.store.AppendBatch(s.ctx, s.sealedRecords(5)))

	got, err := s.store.ReadRange(s.ctx, time.Time{}, time.Time{}, 0)
	s.Require().NoError(err)
	s.NoError(chain.Verify(got, chain.GenesisHash))
}

func (s *PostgresStoreSuite) TestReadRangeFilters() {
	batch := s.sealedRecords(3)
	s.Require().NoError(s.store.AppendBatch(s.ctx, batch))

	from := batch[1].Timestamp
	to := batch[1].Timestamp
	got, err := s.store.ReadRange(s.ctx, from, to, 0)
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal(batch[1].ID, got[0].ID)

	limited, err := s.store.ReadRange(s.ctx, time.Time{}, time.Time{}, 2)
	s.Require().NoError(err)
	s.Len(limited, 2)
}

func (s *PostgresStoreSuite) TestLastRecord() {
	last, err := s.store.LastRecord(s.ctx)
	s.Require().NoError(err)
	s.Nil(last)

	batch := s.sealedRecords(2)
	s.Require().NoError(s.store.AppendBatch(s.ctx, batch))

	last, err = s.store.LastRecord(s.ctx)
	s.Require().NoError(err)
	s.Require().NotNil(last)
	s.Equal(batch[1].LogHash, last.LogHash)
}

func (s *PostgresStoreSuite) TestReplayedBatchFailsCleanly() {
	batch := s.sealedRecords(1)
	s.Require().NoError(s.store.AppendBatch(s.ctx, batch))

	err := s.store.AppendBatch(s.ctx, batch)
	s.Require().Error(err)
	s.True(IsUniqueViolation(err))

	got, err := s.store.ReadRange(s.ctx, time.Time{}, time.Time{}, 0)
	s.Require().NoError(err)
	s.Len(got, 1)
}

func (s *PostgresStoreSuite) TestPurgeExpired() {
	batch := s.sealedRecords(2)
	s.Require().NoError(s.store.AppendBatch(s.ctx, batch))

	// Nothing expires within the retention period.
	purged, err := s.store.PurgeExpired(s.ctx, time.Now().UTC())
	s.Require().NoError(err)
	s.Zero(purged)

	purged, err = s.store.PurgeExpired(s.ctx, batch[1].ExpiresAt.Add(time.Hour))
	s.Require().NoError(err)
	s.Equal(int64(2), purged)

	got, err := s.store.ReadRange(s.ctx, time.Time{}, time.Time{}, 0)
	s.Require().NoError(err)
	s.Empty(got)
}
