package repo

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStorageOptimisticCommit(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	s := NewRedisStorage(client)

	t.Run("ConcurrentBatchCreate", func(t *testing.T) {
		first := begin(t, s)
		second := begin(t, s)

		_, err := first.CreateBatch(ctx, "M1", "D1", "1")
		require.NoError(t, err)
		_, err = second.CreateBatch(ctx, "M1", "D1", "1")
		require.NoError(t, err)

		require.NoError(t, first.Save(ctx))
		assert.ErrorIs(t, second.Save(ctx), ErrConflict)
	})

	t.Run("StaleRevision", func(t *testing.T) {
		setup := begin(t, s)
		require.NoError(t, setup.PutBatchRecord(ctx, &BatchRecord{BatchID: 1, ItemNo: "001", RevisionNo: "0", TxnCode: "1"}, ""))
		require.NoError(t, setup.Save(ctx))

		first := begin(t, s)
		second := begin(t, s)
		for _, uow := range []UnitOfWork{first, second} {
			rec, err := uow.GetBatchRecord(ctx, 1, "001")
			require.NoError(t, err)
			rec.RevisionNo = "1"
			require.NoError(t, uow.PutBatchRecord(ctx, rec, "0"))
		}

		require.NoError(t, first.Save(ctx))
		assert.ErrorIs(t, second.Save(ctx), ErrConflict)
	})

	t.Run("ClosedIndexMoved", func(t *testing.T) {
		index := s.closedIndexKey("M2", "D2")

		stable := begin(t, s)
		last, err := stable.LastClosedBatch(ctx, "M2", "D2")
		require.NoError(t, err)
		assert.Nil(t, last)
		require.NoError(t, stable.PutBatchRecord(ctx, &BatchRecord{BatchID: 9, ItemNo: "001", RevisionNo: "0", TxnCode: "1"}, ""))
		require.NoError(t, stable.Save(ctx))

		uow := begin(t, s)
		last, err = uow.LastClosedBatch(ctx, "M2", "D2")
		require.NoError(t, err)
		assert.Nil(t, last)
		require.NoError(t, uow.PutBatchRecord(ctx, &BatchRecord{BatchID: 9, ItemNo: "002", RevisionNo: "0", TxnCode: "1"}, ""))

		// close dari sesi lain masuk sebelum commit
		_, err = mr.ZAdd(index, 7, "7")
		require.NoError(t, err)
		assert.ErrorIs(t, uow.Save(ctx), ErrConflict)
		assert.False(t, mr.Exists(s.recordKey(9, "002")))
	})

	t.Run("ReadOnlyUnitSavesNothing", func(t *testing.T) {
		uow := begin(t, s)
		_, err := uow.GetOpenBatch(ctx, "nobody", "none")
		require.NoError(t, err)
		require.NoError(t, uow.Save(ctx))
		assert.False(t, mr.Exists(s.openKey("nobody", "none")))
	})

	t.Run("VersionedEnvelope", func(t *testing.T) {
		uow := begin(t, s)
		rec := &BatchRecord{BatchID: 2, ItemNo: "005", RevisionNo: "0", TxnCode: "2", Amount: decimal.RequireFromString("12.50")}
		require.NoError(t, uow.PutBatchRecord(ctx, rec, ""))
		require.NoError(t, uow.Save(ctx))

		raw, err := mr.Get(s.recordKey(2, "005"))
		require.NoError(t, err)
		assert.Contains(t, raw, `"v":1`)
		assert.Contains(t, raw, `"item_no":"005"`)

		require.NoError(t, mr.Set(s.recordKey(2, "005"), `{"v":99,"data":{}}`))
		uow = begin(t, s)
		defer uow.Discard()
		_, err = uow.GetBatchRecord(ctx, 2, "005")
		assert.ErrorContains(t, err, "unsupported schema version 99")
	})
}
