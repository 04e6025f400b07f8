package queue

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stallpos/internal/core/entity"
	"stallpos/internal/core/types"
	"stallpos/internal/offline/localdb"
)

func queues(t *testing.T) map[string]Queue {
	t.Helper()
	db, err := localdb.Open(localdb.DefaultConfig(":memory:"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = localdb.Close(db) })

	sq, err := NewSQLite(db)
	require.NoError(t, err)
	return map[string]Queue{"memory": NewMemory(), "sqlite": sq}
}

func TestQueue_OrderAndSyncLifecycle(t *testing.T) {
	for name, q := range queues(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			id1, err := q.Enqueue(ctx, CreateItem{Item: entity.Item{ID: "local-1", Name: "Soap"}})
			require.NoError(t, err)
			id2, err := q.Enqueue(ctx, CreateAddition{Addition: entity.StockAddition{ID: "local-2", ItemID: "local-1", QuantityAdded: 4}})
			require.NoError(t, err)
			id3, err := q.Enqueue(ctx, DeleteItem{ItemID: "i-9"})
			require.NoError(t, err)

			pending, err := q.ListPending(ctx)
			require.NoError(t, err)
			require.Len(t, pending, 3)
			assert.Equal(t, []string{id1, id2, id3}, []string{pending[0].ID, pending[1].ID, pending[2].ID})
			assert.Equal(t, OpCreate, pending[1].Type)
			assert.Equal(t, entity.KindAdditions, pending[1].Table)
			assert.Equal(t, int64(4), pending[1].Op.(CreateAddition).Addition.QuantityAdded)

			require.NoError(t, q.MarkSynced(ctx, id2))
			require.NoError(t, q.MarkSynced(ctx, id2))

			n, err := q.PendingCount(ctx)
			require.NoError(t, err)
			assert.Equal(t, 2, n)

			require.NoError(t, q.PurgeSynced(ctx))
			pending, err = q.ListPending(ctx)
			require.NoError(t, err)
			require.Len(t, pending, 2)
			assert.Equal(t, id1, pending[0].ID)
			assert.Equal(t, id3, pending[1].ID)
		})
	}
}

func TestQueue_RecordFailureAndRewrite(t *testing.T) {
	for name, q := range queues(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			opID, err := q.Enqueue(ctx, UpdateItem{ItemID: "local-1"})
			require.NoError(t, err)

			require.NoError(t, q.RecordFailure(ctx, opID, errors.New("boom")))
			require.NoError(t, q.RecordFailure(ctx, opID, errors.New("still down")))

			rewritten, changed := Remap(UpdateItem{ItemID: "local-1"}, entity.KindItems, "local-1", "srv-1")
			require.True(t, changed)
			require.NoError(t, q.Rewrite(ctx, opID, rewritten))

			pending, err := q.ListPending(ctx)
			require.NoError(t, err)
			require.Len(t, pending, 1)
			assert.Equal(t, 2, pending[0].Attempts)
			assert.Equal(t, "still down", pending[0].LastError)
			assert.Equal(t, "srv-1", pending[0].Op.(UpdateItem).ItemID)

			assert.ErrorIs(t, q.RecordFailure(ctx, "missing", errors.New("x")), ErrNotFound)
			assert.ErrorIs(t, q.Rewrite(ctx, "missing", DeleteItem{}), ErrNotFound)
		})
	}
}

func TestCodec_EveryOperationRoundTrips(t *testing.T) {
	stall := "X"
	price := types.NewMoneyFromInt(30)
	ops := []Operation{
		CreateItem{Item: entity.Item{ID: "local-a", Name: "Soap", UnitPrice: price}},
		UpdateItem{ItemID: "a", Patch: entity.ItemPatch{UnitPrice: &price}},
		DeleteItem{ItemID: "a"},
		CreateSale{Sale: entity.Sale{ID: "s", ItemID: "a", StallID: &stall, QuantitySold: 1, SaleType: entity.SaleTypeCash}},
		UpdateSale{SaleID: "s", Payment: entity.SalePayment{AmountPaid: price}},
		CreateDistribution{Distribution: entity.StockDistribution{ID: "d", ItemID: "a", StallID: "X", QuantityAllocated: 2}},
		CreateAddition{Addition: entity.StockAddition{ID: "ad", ItemID: "a", QuantityAdded: 2}},
		CreateWithdrawal{Withdrawal: entity.Withdrawal{ID: "w", ItemID: "a", QuantityWithdrawn: 2}},
	}

	for _, op := range ops {
		b, err := Encode(op)
		require.NoError(t, err)
		got, err := Decode(op.Type(), op.Table(), b)
		require.NoError(t, err)
		assert.IsType(t, op, got)
		assert.Equal(t, op.Type(), got.Type())
		assert.Equal(t, op.Table(), got.Table())
	}

	_, err := Decode(OpDelete, entity.KindSales, []byte(`{}`))
	assert.Error(t, err)
}

func TestRemap(t *testing.T) {
	t.Run("item references", func(t *testing.T) {
		op, changed := Remap(CreateSale{Sale: entity.Sale{ID: "local-s", ItemID: "local-i"}}, entity.KindItems, "local-i", "srv-i")
		require.True(t, changed)
		assert.Equal(t, "srv-i", op.(CreateSale).Sale.ItemID)
		assert.Equal(t, "local-s", op.(CreateSale).Sale.ID)
	})

	t.Run("sale references", func(t *testing.T) {
		op, changed := Remap(UpdateSale{SaleID: "local-s"}, entity.KindSales, "local-s", "srv-s")
		require.True(t, changed)
		assert.Equal(t, "srv-s", op.(UpdateSale).SaleID)
	})

	t.Run("unrelated", func(t *testing.T) {
		orig := CreateWithdrawal{Withdrawal: entity.Withdrawal{ItemID: "other"}}
		op, changed := Remap(orig, entity.KindItems, "local-i", "srv-i")
		assert.False(t, changed)
		assert.Equal(t, orig, op)
	})
}

func TestCreated(t *testing.T) {
	rec, ok := Created(CreateDistribution{Distribution: entity.StockDistribution{ID: "local-d"}})
	require.True(t, ok)
	assert.Equal(t, "local-d", rec.RecordID())

	_, ok = Created(DeleteItem{ItemID: "a"})
	assert.False(t, ok)
}
