package ledger

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stallpos/internal/core/apperror"
	appctx "stallpos/internal/core/context"
	"stallpos/internal/core/entity"
	"stallpos/internal/core/id"
	"stallpos/internal/core/types"
	"stallpos/pkg/logger"
)

func newTestService() *Service {
	mem := NewMemory()
	return NewService(mem.Repositories(), mem.TxManager(), nil, logger.Nop())
}

func seedItem(t *testing.T, s *Service, initial int64) entity.Item {
	t.Helper()
	item, err := s.CreateItem(context.Background(), entity.Item{
		ID:           id.NewTemp(),
		Name:         "Rice 1kg",
		UnitPrice:    types.MustMoney("100"),
		InitialStock: initial,
	})
	require.NoError(t, err)
	return item
}

func ptr(s string) *string { return &s }

func TestCreateItem_AssignsServerID(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	item := seedItem(t, s, 10)

	assert.False(t, id.IsTemp(item.ID))
	assert.NoError(t, id.Validate(item.ID))
	assert.True(t, item.Active)
	assert.Zero(t, item.TotalAdded)

	got, err := s.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, item.Name, got.Name)
}

func TestCreateItem_KeepsClientUUID(t *testing.T) {
	s := newTestService()
	clientID := id.New()

	item, err := s.CreateItem(context.Background(), entity.Item{ID: clientID, Name: "Oil", InitialStock: 1})
	require.NoError(t, err)
	assert.Equal(t, clientID, item.ID)
}

func TestCreateDistribution_RejectsBeyondCentralStock(t *testing.T) {
	s := newTestService()
	ctx := context.Background()
	item := seedItem(t, s, 10)

	_, err := s.CreateDistribution(ctx, entity.StockDistribution{ItemID: item.ID, StallID: "stall-a", QuantityAllocated: 7})
	require.NoError(t, err)

	_, err = s.CreateDistribution(ctx, entity.StockDistribution{ItemID: item.ID, StallID: "stall-b", QuantityAllocated: 4})
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeInsufficientStock, appErr.Code)
	assert.Equal(t, int64(3), appErr.Details["available"])

	got, err := s.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.TotalAllocated)
}

func TestCreateDistributions_AllOrNothing(t *testing.T) {
	s := newTestService()
	ctx := context.Background()
	item := seedItem(t, s, 5)

	_, err := s.CreateDistributions(ctx, []entity.StockDistribution{
		{ItemID: item.ID, StallID: "stall-a", QuantityAllocated: 3},
		{ItemID: item.ID, StallID: "stall-b", QuantityAllocated: 3},
	})
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeInsufficientStock))

	dists, err := s.ListDistributions(ctx, ListFilter{ItemID: item.ID})
	require.NoError(t, err)
	assert.Zero(t, dists.TotalCount, "the first stall is not allocated when the second is short")
	got, err := s.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Zero(t, got.TotalAllocated)

	out, err := s.CreateDistributions(ctx, []entity.StockDistribution{
		{ItemID: item.ID, StallID: "stall-a", QuantityAllocated: 2},
		{ItemID: item.ID, StallID: "stall-b", QuantityAllocated: 3},
	})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.NotEqual(t, out[0].ID, out[1].ID)
	got, err = s.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.TotalAllocated)
}

func TestCreateDistributions_SingleItemOnly(t *testing.T) {
	s := newTestService()
	ctx := context.Background()
	a := seedItem(t, s, 5)
	b := seedItem(t, s, 5)

	_, err := s.CreateDistributions(ctx, []entity.StockDistribution{
		{ItemID: a.ID, StallID: "stall-a", QuantityAllocated: 1},
		{ItemID: b.ID, StallID: "stall-b", QuantityAllocated: 1},
	})
	assert.True(t, apperror.IsValidation(err))

	_, err = s.CreateDistributions(ctx, nil)
	assert.True(t, apperror.IsValidation(err))
}

func TestCreateDistribution_ConcurrentAdmissionNeverOverdraws(t *testing.T) {
	s := newTestService()
	ctx := context.Background()
	item := seedItem(t, s, 10)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.CreateDistribution(ctx, entity.StockDistribution{ItemID: item.ID, StallID: "stall-a", QuantityAllocated: 3})
			if err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, accepted)
	dists, err := s.ListDistributions(ctx, ListFilter{ItemID: item.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(3), dists.TotalCount)
}

func TestCreateAddition_RaisesCounters(t *testing.T) {
	s := newTestService()
	ctx := appctx.WithOperator(context.Background(), &appctx.OperatorContext{OperatorID: "admin-1"})
	item := seedItem(t, s, 0)

	a, err := s.CreateAddition(ctx, entity.StockAddition{ItemID: item.ID, QuantityAdded: 5})
	require.NoError(t, err)
	assert.Equal(t, "admin-1", a.AddedBy)

	_, err = s.CreateDistribution(ctx, entity.StockDistribution{ItemID: item.ID, StallID: "stall-a", QuantityAllocated: 5})
	require.NoError(t, err)

	got, err := s.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.TotalAdded)
	assert.Equal(t, int64(5), got.TotalAllocated)
}

func TestCreateAddition_UnknownItem(t *testing.T) {
	s := newTestService()

	_, err := s.CreateAddition(context.Background(), entity.StockAddition{ItemID: "missing", QuantityAdded: 1})
	assert.True(t, apperror.IsNotFound(err))
}

func TestCreateSale_StallStockChecked(t *testing.T) {
	s := newTestService()
	ctx := context.Background()
	item := seedItem(t, s, 10)
	_, err := s.CreateDistribution(ctx, entity.StockDistribution{ItemID: item.ID, StallID: "stall-a", QuantityAllocated: 4})
	require.NoError(t, err)

	sale := entity.Sale{
		ItemID:       item.ID,
		StallID:      ptr("stall-a"),
		QuantitySold: 5,
		UnitPrice:    types.MustMoney("100"),
		TotalAmount:  types.MustMoney("500"),
		SaleType:     entity.SaleTypeCash,
	}
	_, err = s.CreateSale(ctx, sale)
	assert.True(t, apperror.HasCode(err, apperror.CodeInsufficientStock))

	sale.QuantitySold = 4
	sale.TotalAmount = types.MustMoney("400")
	created, err := s.CreateSale(ctx, sale)
	require.NoError(t, err)
	assert.Equal(t, "stall-a", created.StallRef())

	// central pool still holds 6
	central := sale
	central.StallID = nil
	central.QuantitySold = 6
	central.TotalAmount = types.MustMoney("600")
	_, err = s.CreateSale(ctx, central)
	require.NoError(t, err)
}

func TestCreateSale_SplitMismatch(t *testing.T) {
	s := newTestService()
	item := seedItem(t, s, 10)

	_, err := s.CreateSale(context.Background(), entity.Sale{
		ItemID:       item.ID,
		QuantitySold: 5,
		UnitPrice:    types.MustMoney("100"),
		TotalAmount:  types.MustMoney("500"),
		SaleType:     entity.SaleTypeSplit,
		CashAmount:   types.MustMoney("300"),
		MobileAmount: types.MustMoney("150"),
	})
	assert.True(t, apperror.HasCode(err, apperror.CodeSplitAmounts))
}

func TestUpdateSale_CreditPayment(t *testing.T) {
	s := newTestService()
	ctx := context.Background()
	item := seedItem(t, s, 10)

	sale, err := s.CreateSale(ctx, entity.Sale{
		ItemID:       item.ID,
		QuantitySold: 2,
		UnitPrice:    types.MustMoney("100"),
		TotalAmount:  types.MustMoney("200"),
		SaleType:     entity.SaleTypeCredit,
		Credit:       &entity.CreditRecord{CustomerName: "Amina", AmountPaid: types.MustMoney("50")},
	})
	require.NoError(t, err)
	assert.Equal(t, entity.PaymentPartiallyPaid, sale.Credit.PaymentStatus)
	assert.True(t, sale.Credit.BalanceDue.Equal(types.MustMoney("150")))

	updated, err := s.UpdateSale(ctx, sale.ID, entity.SalePayment{AmountPaid: types.MustMoney("200")})
	require.NoError(t, err)
	assert.Equal(t, entity.PaymentFullyPaid, updated.Credit.PaymentStatus)
	assert.True(t, updated.Credit.BalanceDue.IsZero())

	_, err = s.UpdateSale(ctx, sale.ID, entity.SalePayment{AmountPaid: types.MustMoney("250")})
	assert.True(t, apperror.IsValidation(err))
}

func TestUpdateItem_InitialStockFrozenAfterDistribution(t *testing.T) {
	s := newTestService()
	ctx := context.Background()
	item := seedItem(t, s, 10)

	n := int64(12)
	updated, err := s.UpdateItem(ctx, item.ID, entity.ItemPatch{InitialStock: &n})
	require.NoError(t, err)
	assert.Equal(t, int64(12), updated.InitialStock)

	_, err = s.CreateDistribution(ctx, entity.StockDistribution{ItemID: item.ID, StallID: "stall-a", QuantityAllocated: 1})
	require.NoError(t, err)

	n = 20
	_, err = s.UpdateItem(ctx, item.ID, entity.ItemPatch{InitialStock: &n})
	assert.True(t, apperror.HasCode(err, apperror.CodeImmutable))
}

func TestDeactivateItem_BlocksNewEvents(t *testing.T) {
	s := newTestService()
	ctx := context.Background()
	item := seedItem(t, s, 10)

	require.NoError(t, s.DeactivateItem(ctx, item.ID))

	_, err := s.CreateDistribution(ctx, entity.StockDistribution{ItemID: item.ID, StallID: "stall-a", QuantityAllocated: 1})
	assert.True(t, apperror.HasCode(err, apperror.CodeBusinessRule))

	all, err := s.ListItems(ctx, ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all.Items, 1)
	active, err := s.ListItems(ctx, ListFilter{ActiveOnly: true})
	require.NoError(t, err)
	assert.Empty(t, active.Items)
}

func TestCreateWithdrawal_LimitedToCentralStock(t *testing.T) {
	s := newTestService()
	ctx := context.Background()
	item := seedItem(t, s, 3)

	_, err := s.CreateWithdrawal(ctx, entity.Withdrawal{ItemID: item.ID, QuantityWithdrawn: 4, Reason: "damaged"})
	assert.True(t, apperror.HasCode(err, apperror.CodeInsufficientStock))

	w, err := s.CreateWithdrawal(ctx, entity.Withdrawal{ItemID: item.ID, QuantityWithdrawn: 3, Reason: "damaged"})
	require.NoError(t, err)
	assert.NotEmpty(t, w.ID)
}

func TestListFilters(t *testing.T) {
	s := newTestService()
	ctx := context.Background()
	a := seedItem(t, s, 10)
	b := seedItem(t, s, 10)

	for _, d := range []entity.StockDistribution{
		{ItemID: a.ID, StallID: "stall-a", QuantityAllocated: 1},
		{ItemID: a.ID, StallID: "stall-b", QuantityAllocated: 1},
		{ItemID: b.ID, StallID: "stall-a", QuantityAllocated: 1},
	} {
		_, err := s.CreateDistribution(ctx, d)
		require.NoError(t, err)
	}

	res, err := s.ListDistributions(ctx, ListFilter{StallID: "stall-a"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.TotalCount)

	res, err = s.ListDistributions(ctx, ListFilter{ItemID: a.ID, StallID: "stall-b"})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "stall-b", res.Items[0].StallID)

	res, err = s.ListDistributions(ctx, ListFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Len(t, res.Items, 1)
	assert.Equal(t, int64(3), res.TotalCount)
}
