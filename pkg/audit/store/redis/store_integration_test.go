//go:build integration

package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"custodia/pkg/audit"
	"custodia/pkg/audit/chain"
	"custodia/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	rc    *containers.RedisContainer
	store *Store
	ctx   context.Context
}

func TestRedisStoreSuite(t *testing.T) {
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.ctx = context.Background()
	s.rc = containers.NewRedisContainer(s.T())
	s.store = New(s.rc.Client)
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.rc.FlushAll(s.ctx))
}

func (s *RedisStoreSuite) sealedRecords(n int) []audit.Record {
	base := time.Now().UTC().Truncate(time.Microsecond)
	pointers := make([]*audit.Record, n)
	for i := range pointers {
		event, err := audit.NewEvent(audit.ActionCreate, "session", "created session",
			audit.WithUser("u1"),
			audit.WithMetadata(map[string]any{"index": i}),
			audit.WithTimestamp(base.Add(time.Duration(i)*time.Second)),
		)
		s.Require().NoError(err)
		record, err := audit.NewRecord(event, []byte("ciphertext"))
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

func (s *RedisStoreSuite) TestAppendAndReadRoundTrip() {
	batch := s.sealedRecords(3)
	s.Require().NoError(s.store.AppendBatch(s.ctx, batch))

	got, err := s.store.ReadRange(s.ctx, time.Time{}, time.Time{}, 0)
	s.Require().NoError(err)
	s.Require().Len(got, 3)

	for i := range batch {
		s.Equal(batch[i].ID, got[i].ID)
		s.Equal(batch[i].Timestamp, got[i].Timestamp)
		s.Equal(batch[i].Metadata, got[i].Metadata)
		s.Equal(batch[i].EncryptedData, got[i].EncryptedData)
		s.Equal(batch[i].LogHash, got[i].LogHash)
	}
}

func (s *RedisStoreSuite) TestChainVerifiesAfterRoundTrip() {
	s.Require().NoError(s.store.AppendBatch(s.ctx, s.sealedRecords(5)))

	got, err := s.store.ReadRange(s.ctx, time.Time{}, time.Time{}, 0)
	s.Require().NoError(err)
	s.NoError(chain.Verify(got, chain.GenesisHash))
}

func (s *RedisStoreSuite) TestReadRangeFilters() {
	batch := s.sealedRecords(3)
	s.Require().NoError(s.store.AppendBatch(s.ctx, batch))

	got, err := s.store.ReadRange(s.ctx, batch[1].Timestamp, batch[1].Timestamp, 0)
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal(batch[1].ID, got[0].ID)

	limited, err := s.store.ReadRange(s.ctx, time.Time{}, time.Time{}, 2)
	s.Require().NoError(err)
	s.Len(limited, 2)
}

func (s *RedisStoreSuite) TestLastRecord() {
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

func (s *RedisStoreSuite) TestPurgeExpired() {
	batch := s.sealedRecords(2)
	s.Require().NoError(s.store.AppendBatch(s.ctx, batch))

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

func (s *RedisStoreSuite) TestWithKeyIsolatesChains() {
	other := New(s.rc.Client, WithKey("custodia:audit:other"))

	s.Require().NoError(s.store.AppendBatch(s.ctx, s.sealedRecords(1)))
	s.Require().NoError(other.AppendBatch(s.ctx, s.sealedRecords(2)))

	mine, err := s.store.ReadRange(s.ctx, time.Time{}, time.Time{}, 0)
	s.Require().NoError(err)
	s.Len(mine, 1)

	theirs, err := other.ReadRange(s.ctx, time.Time{}, time.Time{}, 0)
	s.Require().NoError(err)
	s.Len(theirs, 2)
}
