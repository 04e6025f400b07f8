package syncengine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stallpos/internal/core/apperror"
	"stallpos/internal/core/entity"
	"stallpos/internal/core/id"
	"stallpos/internal/offline/eventstore"
	"stallpos/internal/offline/queue"
	"stallpos/internal/offline/remote"
	"stallpos/pkg/logger"
)

type fixture struct {
	store  *eventstore.MemoryStore
	queue  *queue.MemoryQueue
	remote *remote.MemoryGateway
	engine *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:  eventstore.NewMemory(),
		queue:  queue.NewMemory(),
		remote: remote.NewMemory(),
	}
	f.engine = New(Config{Interval: 20 * time.Millisecond, CallTimeout: time.Second, StallThreshold: 3},
		f.store, f.queue, f.remote, logger.Nop())
	return f
}

// enqueue records op the way the POS service does while offline.
func (f *fixture) enqueue(t *testing.T, op queue.Operation) string {
	t.Helper()
	ctx := context.Background()
	opID, err := f.queue.Enqueue(ctx, op)
	require.NoError(t, err)
	require.NoError(t, ApplyOptimistic(ctx, f.store, op))
	return opID
}

func (f *fixture) pending(t *testing.T) []queue.QueuedOperation {
	t.Helper()
	p, err := f.queue.ListPending(context.Background())
	require.NoError(t, err)
	return p
}

func seededItem(f *fixture, itemID string, initial int64) entity.Item {
	item := entity.Item{ID: itemID, Name: "Soap", InitialStock: initial, Active: true}
	f.remote.Seed(item)
	return item
}

func TestSync_OfflineRoundTripReplacesTemporaryIDs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tempItem := id.NewTemp()
	f.enqueue(t, queue.CreateItem{Item: entity.Item{ID: tempItem, Name: "Soap", InitialStock: 10, Active: true}})
	f.enqueue(t, queue.CreateAddition{Addition: entity.StockAddition{ID: id.NewTemp(), ItemID: tempItem, QuantityAdded: 5}})
	stall := "X"
	f.enqueue(t, queue.CreateSale{Sale: entity.Sale{ID: id.NewTemp(), ItemID: tempItem, StallID: &stall, QuantitySold: 1, SaleType: entity.SaleTypeCash}})

	// visible locally and pending before sync
	items, err := eventstore.All[entity.Item](ctx, f.store, entity.KindItems)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, tempItem, items[0].ID)
	require.NoError(t, f.engine.RefreshStatus(ctx))
	assert.Equal(t, 3, f.engine.Status().PendingOperations)

	f.engine.SetOnline(true)
	require.NoError(t, f.engine.Sync(ctx))

	assert.Empty(t, f.pending(t))
	items, err = eventstore.All[entity.Item](ctx, f.store, entity.KindItems)
	require.NoError(t, err)
	require.Len(t, items, 1)
	serverID := items[0].ID
	assert.False(t, id.IsTemp(serverID))

	additions, err := eventstore.All[entity.StockAddition](ctx, f.store, entity.KindAdditions)
	require.NoError(t, err)
	require.Len(t, additions, 1)
	assert.Equal(t, serverID, additions[0].ItemID)
	assert.False(t, id.IsTemp(additions[0].ID))

	sales, err := eventstore.All[entity.Sale](ctx, f.store, entity.KindSales)
	require.NoError(t, err)
	require.Len(t, sales, 1)
	assert.Equal(t, serverID, sales[0].ItemID)

	status := f.engine.Status()
	assert.Equal(t, 0, status.PendingOperations)
	assert.False(t, status.IsSyncing)
	require.NotNil(t, status.LastSyncTime)

	last, err := f.store.LastSync(ctx)
	require.NoError(t, err)
	assert.True(t, last.Equal(*status.LastSyncTime))
}

func TestSync_FailedOperationStaysPendingOthersProceedInOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seededItem(f, "item-1", 100)

	var order []int64
	f.remote.Reject = func(method string, payload any) error {
		w, ok := payload.(entity.Withdrawal)
		if !ok {
			return nil
		}
		if w.QuantityWithdrawn == 2 {
			return apperror.NewInsufficientStock("item-1", "", 2, 0)
		}
		order = append(order, w.QuantityWithdrawn)
		return nil
	}

	f.enqueue(t, queue.CreateWithdrawal{Withdrawal: entity.Withdrawal{ID: id.NewTemp(), ItemID: "item-1", QuantityWithdrawn: 1}})
	opB := f.enqueue(t, queue.CreateWithdrawal{Withdrawal: entity.Withdrawal{ID: id.NewTemp(), ItemID: "item-1", QuantityWithdrawn: 2}})
	f.enqueue(t, queue.CreateWithdrawal{Withdrawal: entity.Withdrawal{ID: id.NewTemp(), ItemID: "item-1", QuantityWithdrawn: 3}})

	f.engine.SetOnline(true)
	require.NoError(t, f.engine.Sync(ctx))

	assert.Equal(t, []int64{1, 3}, order)
	pending := f.pending(t)
	require.Len(t, pending, 1)
	assert.Equal(t, opB, pending[0].ID)
	assert.Equal(t, 1, pending[0].Attempts)
	assert.Contains(t, pending[0].LastError, apperror.CodeInsufficientStock)

	// the rejected withdrawal is still shown locally after the server refresh
	ws, err := eventstore.All[entity.Withdrawal](ctx, f.store, entity.KindWithdrawals)
	require.NoError(t, err)
	assert.Len(t, ws, 3)
}

func TestSync_RepeatedRejectionIsFlaggedNotDropped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seededItem(f, "item-1", 0)
	f.remote.Reject = func(string, any) error {
		return apperror.NewInsufficientStock("item-1", "X", 4, 0)
	}
	f.enqueue(t, queue.CreateDistribution{Distribution: entity.StockDistribution{ID: id.NewTemp(), ItemID: "item-1", StallID: "X", QuantityAllocated: 4}})
	f.engine.SetOnline(true)

	for i := 0; i < 3; i++ {
		require.NoError(t, f.engine.Sync(ctx))
	}

	pending := f.pending(t)
	require.Len(t, pending, 1)
	assert.Equal(t, 3, pending[0].Attempts)
	status := f.engine.Status()
	assert.Equal(t, 1, status.PendingOperations)
	assert.Equal(t, 1, status.StalledOperations)
}

func TestSync_LostAcknowledgementIsAppliedOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seededItem(f, "item-1", 10)

	opID := f.enqueue(t, queue.CreateSale{Sale: entity.Sale{ID: id.NewTemp(), ItemID: "item-1", QuantitySold: 2, SaleType: entity.SaleTypeCash}})
	f.remote.LoseAcks = 1
	f.engine.SetOnline(true)

	require.NoError(t, f.engine.Sync(ctx))
	require.Len(t, f.pending(t), 1, "unacknowledged operation is retried later")
	assert.Equal(t, 1, f.remote.Applied(opID))

	require.NoError(t, f.engine.Sync(ctx))
	assert.Empty(t, f.pending(t))
	assert.Equal(t, 1, f.remote.Applied(opID))

	sales, err := f.remote.ListSales(ctx, remote.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, sales, 1)
}

func TestSync_ServerDownStopsDrainWithoutError(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seededItem(f, "item-1", 10)
	f.enqueue(t, queue.CreateAddition{Addition: entity.StockAddition{ID: id.NewTemp(), ItemID: "item-1", QuantityAdded: 1}})
	f.enqueue(t, queue.CreateAddition{Addition: entity.StockAddition{ID: id.NewTemp(), ItemID: "item-1", QuantityAdded: 2}})

	f.remote.SetDown(true)
	f.engine.SetOnline(true)
	require.NoError(t, f.engine.Sync(ctx))

	pending := f.pending(t)
	require.Len(t, pending, 2)
	assert.Equal(t, 1, pending[0].Attempts)
	assert.Equal(t, 0, pending[1].Attempts, "drain stops once a ping confirms the server is down")
	assert.Nil(t, f.engine.Status().LastSyncTime)
}

func TestSync_TimingOutOperationDoesNotBlockLaterOnes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seededItem(f, "item-1", 100)
	f.remote.Reject = func(_ string, payload any) error {
		if w, ok := payload.(entity.Withdrawal); ok && w.QuantityWithdrawn == 1 {
			return context.DeadlineExceeded
		}
		return nil
	}

	slow := f.enqueue(t, queue.CreateWithdrawal{Withdrawal: entity.Withdrawal{ID: id.NewTemp(), ItemID: "item-1", QuantityWithdrawn: 1, Reason: "damaged"}})
	fast := f.enqueue(t, queue.CreateWithdrawal{Withdrawal: entity.Withdrawal{ID: id.NewTemp(), ItemID: "item-1", QuantityWithdrawn: 2, Reason: "damaged"}})
	f.engine.SetOnline(true)

	for i := 0; i < 3; i++ {
		require.NoError(t, f.engine.Sync(ctx))
	}

	assert.Equal(t, 1, f.remote.Applied(fast))
	assert.Equal(t, 0, f.remote.Applied(slow))
	pending := f.pending(t)
	require.Len(t, pending, 1)
	assert.Equal(t, slow, pending[0].ID)
	assert.Equal(t, 3, pending[0].Attempts)
	assert.Equal(t, 1, f.engine.Status().StalledOperations)
	assert.NotNil(t, f.engine.Status().LastSyncTime, "refresh still runs while the server answers")
}

func TestSync_OfflineIsNoop(t *testing.T) {
	f := newFixture(t)
	seededItem(f, "item-1", 10)
	opID := f.enqueue(t, queue.DeleteItem{ItemID: "item-1"})

	require.NoError(t, f.engine.Sync(context.Background()))

	assert.Len(t, f.pending(t), 1)
	assert.Equal(t, 0, f.remote.Applied(opID))
}

func TestSync_ConcurrentCallsDrainOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seededItem(f, "item-1", 10)
	opID := f.enqueue(t, queue.CreateAddition{Addition: entity.StockAddition{ID: id.NewTemp(), ItemID: "item-1", QuantityAdded: 1}})

	entered := make(chan struct{})
	release := make(chan struct{})
	var calls int
	f.remote.Reject = func(string, any) error {
		calls++
		close(entered)
		<-release
		return nil
	}
	f.engine.SetOnline(true)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, f.engine.Sync(ctx))
	}()

	<-entered
	assert.True(t, f.engine.Status().IsSyncing)
	for i := 0; i < 5; i++ {
		require.NoError(t, f.engine.Sync(ctx))
	}
	close(release)
	wg.Wait()

	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, f.remote.Applied(opID))
	assert.Empty(t, f.pending(t))
}

type brokenQueue struct {
	queue.Queue
}

func (brokenQueue) ListPending(context.Context) ([]queue.QueuedOperation, error) {
	return nil, errors.New("disk I/O error")
}

func TestSync_StorageErrorsEscape(t *testing.T) {
	e := New(DefaultConfig(), eventstore.NewMemory(), brokenQueue{queue.NewMemory()}, remote.NewMemory(), logger.Nop())
	e.SetOnline(true)

	err := e.Sync(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk I/O error")
	assert.False(t, e.Status().IsSyncing)
}

func TestSetOnline_TriggersSyncAndSubscribersSeeIt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seededItem(f, "item-1", 10)
	f.enqueue(t, queue.CreateAddition{Addition: entity.StockAddition{ID: id.NewTemp(), ItemID: "item-1", QuantityAdded: 1}})

	var mu sync.Mutex
	var seen []Status
	unsubscribe := f.engine.Subscribe(func(s Status) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})
	defer unsubscribe()

	require.NoError(t, f.engine.Start(ctx))
	defer func() { require.NoError(t, f.engine.Shutdown(ctx)) }()

	f.engine.SetOnline(true)

	assert.Eventually(t, func() bool {
		return f.engine.Status().PendingOperations == 0 && f.engine.Status().LastSyncTime != nil
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, seen)
	assert.False(t, seen[0].IsOnline)
	var sawSyncing, sawOnline bool
	for _, s := range seen {
		sawSyncing = sawSyncing || s.IsSyncing
		sawOnline = sawOnline || s.IsOnline
	}
	assert.True(t, sawSyncing)
	assert.True(t, sawOnline)
}

func TestSubscribe_UnsubscribeStopsDelivery(t *testing.T) {
	f := newFixture(t)
	count := 0
	unsubscribe := f.engine.Subscribe(func(Status) { count++ })
	assert.Equal(t, 1, count)

	f.engine.SetOnline(true)
	assert.Equal(t, 2, count)

	unsubscribe()
	unsubscribe()
	f.engine.SetOnline(false)
	assert.Equal(t, 2, count)
}

func TestPeriodicTickDrainsWhenOnline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seededItem(f, "item-1", 10)

	f.engine.SetOnline(true)
	require.NoError(t, f.engine.Start(ctx))
	defer func() { require.NoError(t, f.engine.Shutdown(ctx)) }()

	// enqueued after the connectivity-triggered sync; only the timer picks it up
	time.Sleep(30 * time.Millisecond)
	f.enqueue(t, queue.CreateAddition{Addition: entity.StockAddition{ID: id.NewTemp(), ItemID: "item-1", QuantityAdded: 3}})
	require.NoError(t, f.engine.RefreshStatus(ctx))

	assert.Eventually(t, func() bool {
		return len(f.pending(t)) == 0
	}, 2*time.Second, 10*time.Millisecond)
}
