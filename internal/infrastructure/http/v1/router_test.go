package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stallpos/internal/core/apperror"
	"stallpos/internal/core/entity"
	"stallpos/internal/core/id"
	"stallpos/internal/core/types"
	"stallpos/internal/domain/ledger"
	"stallpos/internal/infrastructure/http/v1/handlers"
	"stallpos/internal/infrastructure/http/v1/middleware"
	"stallpos/internal/infrastructure/storage/postgres"
	"stallpos/internal/offline/remote"
	"stallpos/pkg/logger"
)

// memoryIdempotency mirrors the sys_idempotency semantics in process.
type memoryIdempotency struct {
	mu   sync.Mutex
	rows map[string]*idemRow
}

type idemRow struct {
	operation, hash string
	done            bool
	replay          postgres.IdempotencyReplay
}

func newMemoryIdempotency() *memoryIdempotency {
	return &memoryIdempotency{rows: make(map[string]*idemRow)}
}

func (m *memoryIdempotency) AcquireKey(_ context.Context, key, _, operation, hash string) (*postgres.IdempotencyReplay, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[key]
	if !ok {
		m.rows[key] = &idemRow{operation: operation, hash: hash}
		return nil, nil
	}
	if row.operation != operation || row.hash != hash {
		return nil, apperror.NewIdempotencyMismatch(key)
	}
	if !row.done {
		return nil, apperror.NewIdempotencyConflict(key)
	}
	replay := row.replay
	return &replay, nil
}

func (m *memoryIdempotency) finish(key string, status int, contentType string, response any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var body []byte
	if response != nil {
		var err error
		if body, err = json.Marshal(response); err != nil {
			return err
		}
	}
	if row, ok := m.rows[key]; ok {
		row.done = true
		row.replay = postgres.IdempotencyReplay{StatusCode: status, ContentType: contentType, Body: body}
	}
	return nil
}

func (m *memoryIdempotency) CompleteKey(_ context.Context, key string, status int, contentType string, response any) error {
	return m.finish(key, status, contentType, response)
}

func (m *memoryIdempotency) FailKey(_ context.Context, key string, status int, contentType string, response any) error {
	if status >= http.StatusInternalServerError {
		m.mu.Lock()
		delete(m.rows, key)
		m.mu.Unlock()
		return nil
	}
	return m.finish(key, status, contentType, response)
}

func newTestRouter(t *testing.T) (*gin.Engine, *ledger.Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	mem := ledger.NewMemory()
	svc := ledger.NewService(mem.Repositories(), mem.TxManager(), nil, logger.Nop())
	return NewRouter(RouterConfig{
		Ledger:      svc,
		Idempotency: newMemoryIdempotency(),
		Logger:      logger.Nop(),
	}), svc
}

func do(t *testing.T, r http.Handler, method, path, key string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.HeaderOperatorID, "admin-1")
	if key != "" {
		req.Header.Set(middleware.HeaderIdempotencyKey, key)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func createItem(t *testing.T, r http.Handler, initial int64) entity.Item {
	t.Helper()
	w := do(t, r, http.MethodPost, "/api/v1/items", "", entity.Item{ID: id.NewTemp(), Name: "Sugar", InitialStock: initial, UnitPrice: types.MustMoney("80")})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[entity.Item](t, w)
}

func TestHealth(t *testing.T) {
	r, _ := newTestRouter(t)

	for _, path := range []string{"/health/live", "/api/v1/health/live", "/health/ready"} {
		w := do(t, r, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}

func TestItems_CreateListDeactivate(t *testing.T) {
	r, _ := newTestRouter(t)

	item := createItem(t, r, 10)
	assert.False(t, id.IsTemp(item.ID))

	w := do(t, r, http.MethodGet, "/api/v1/items", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[ledger.ListResult[entity.Item]](t, w)
	assert.Equal(t, int64(1), list.TotalCount)

	w = do(t, r, http.MethodDelete, "/api/v1/items/"+item.ID, "", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, r, http.MethodGet, "/api/v1/items?active=true", "", nil)
	assert.Equal(t, int64(0), decode[ledger.ListResult[entity.Item]](t, w).TotalCount)

	w = do(t, r, http.MethodGet, "/api/v1/items/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDistributions_InsufficientStockProblemBody(t *testing.T) {
	r, _ := newTestRouter(t)
	item := createItem(t, r, 5)

	w := do(t, r, http.MethodPost, "/api/v1/distributions", "", entity.StockDistribution{ItemID: item.ID, StallID: "stall-a", QuantityAllocated: 6})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	body := decode[map[string]any](t, w)
	assert.Equal(t, apperror.CodeInsufficientStock, body["code"])
	assert.Equal(t, float64(5), body["details"].(map[string]any)["available"])
}

func TestIdempotentReplay_AppliesOnce(t *testing.T) {
	r, svc := newTestRouter(t)
	item := createItem(t, r, 10)
	dist := entity.StockDistribution{ItemID: item.ID, StallID: "stall-a", QuantityAllocated: 4}

	first := do(t, r, http.MethodPost, "/api/v1/distributions", "op-1", dist)
	require.Equal(t, http.StatusCreated, first.Code)
	second := do(t, r, http.MethodPost, "/api/v1/distributions", "op-1", dist)
	require.Equal(t, http.StatusCreated, second.Code)

	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	assert.JSONEq(t, first.Body.String(), second.Body.String())

	res, err := svc.ListDistributions(context.Background(), ledger.ListFilter{ItemID: item.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.TotalCount)

	// same key, different body
	dist.QuantityAllocated = 1
	w := do(t, r, http.MethodPost, "/api/v1/distributions", "op-1", dist)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestIdempotentReplay_ClientErrorIsReplayed(t *testing.T) {
	r, _ := newTestRouter(t)
	item := createItem(t, r, 1)
	dist := entity.StockDistribution{ItemID: item.ID, StallID: "stall-a", QuantityAllocated: 2}

	first := do(t, r, http.MethodPost, "/api/v1/distributions", "op-2", dist)
	second := do(t, r, http.MethodPost, "/api/v1/distributions", "op-2", dist)

	assert.Equal(t, http.StatusUnprocessableEntity, first.Code)
	assert.Equal(t, http.StatusUnprocessableEntity, second.Code)
	assert.JSONEq(t, first.Body.String(), second.Body.String())
}

func TestSales_CreditPaymentUpdate(t *testing.T) {
	r, _ := newTestRouter(t)
	item := createItem(t, r, 3)

	w := do(t, r, http.MethodPost, "/api/v1/sales", "", entity.Sale{
		ItemID:       item.ID,
		QuantitySold: 1,
		UnitPrice:    types.MustMoney("80"),
		TotalAmount:  types.MustMoney("80"),
		SaleType:     entity.SaleTypeCredit,
		Credit:       &entity.CreditRecord{CustomerName: "Juma"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	sale := decode[entity.Sale](t, w)
	assert.Equal(t, "admin-1", sale.RecordedBy)
	assert.Equal(t, entity.PaymentUnpaid, sale.Credit.PaymentStatus)

	w = do(t, r, http.MethodPut, "/api/v1/sales/"+sale.ID, "", entity.SalePayment{AmountPaid: types.MustMoney("30")})
	require.Equal(t, http.StatusOK, w.Code)
	updated := decode[entity.Sale](t, w)
	assert.Equal(t, entity.PaymentPartiallyPaid, updated.Credit.PaymentStatus)

	w = do(t, r, http.MethodGet, "/api/v1/sales?item_id="+item.ID, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[ledger.ListResult[entity.Sale]](t, w)
	require.Len(t, list.Items, 1)
	assert.True(t, list.Items[0].Credit.AmountPaid.Equal(types.MustMoney("30")))
}

func TestBadJSON(t *testing.T) {
	r, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/items", bytes.NewBufferString("{"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, apperror.CodeValidation, decode[map[string]any](t, w)["code"])
}

// The REST gateway used by offline agents speaks this router's dialect.
func TestHTTPGatewayAgainstRouter(t *testing.T) {
	r, _ := newTestRouter(t)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	gw := remote.NewHTTP(remote.Config{BaseURL: srv.URL, Timeout: 2 * time.Second, OperatorID: "stall-op"})
	ctx := context.Background()

	require.NoError(t, gw.Ping(ctx))

	item, err := gw.CreateItem(ctx, "k-item", entity.Item{ID: id.NewTemp(), Name: "Tea", InitialStock: 4})
	require.NoError(t, err)
	assert.False(t, id.IsTemp(item.ID))

	_, err = gw.CreateDistribution(ctx, "k-d1", entity.StockDistribution{ItemID: item.ID, StallID: "stall-a", QuantityAllocated: 3})
	require.NoError(t, err)

	_, err = gw.CreateDistribution(ctx, "k-d2", entity.StockDistribution{ItemID: item.ID, StallID: "stall-b", QuantityAllocated: 3})
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeInsufficientStock))
	assert.False(t, remote.IsUnreachable(err))

	_, err = gw.CreateDistributions(ctx, "k-batch", []entity.StockDistribution{
		{ItemID: item.ID, StallID: "stall-b", QuantityAllocated: 1},
		{ItemID: item.ID, StallID: "stall-c", QuantityAllocated: 1},
	})
	assert.True(t, apperror.HasCode(err, apperror.CodeInsufficientStock))

	batch, err := gw.CreateDistributions(ctx, "k-batch-2", []entity.StockDistribution{
		{ItemID: item.ID, StallID: "stall-b", QuantityAllocated: 1},
	})
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.False(t, id.IsTemp(batch[0].ID))

	snap, err := remote.Snapshot(ctx, gw)
	require.NoError(t, err)
	assert.Len(t, snap[entity.KindItems], 1)
	assert.Len(t, snap[entity.KindDistributions], 2)

	require.NoError(t, gw.DeactivateItem(ctx, "k-del", item.ID))
	items, err := gw.ListItems(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.False(t, items[0].Active)
}

func TestDistributionBatch_AllOrNothing(t *testing.T) {
	r, svc := newTestRouter(t)
	item := createItem(t, r, 5)
	batch := func(qty ...int64) handlers.DistributionBatch {
		var b handlers.DistributionBatch
		for i, q := range qty {
			b.Distributions = append(b.Distributions, entity.StockDistribution{
				ItemID: item.ID, StallID: fmt.Sprintf("stall-%d", i), QuantityAllocated: q,
			})
		}
		return b
	}

	w := do(t, r, http.MethodPost, "/api/v1/distributions/batch", "op-b1", batch(3, 3))
	require.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
	assert.Equal(t, apperror.CodeInsufficientStock, decode[map[string]any](t, w)["code"])

	res, err := svc.ListDistributions(context.Background(), ledger.ListFilter{ItemID: item.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.TotalCount, "first stall is not allocated when the second is refused")

	w = do(t, r, http.MethodPost, "/api/v1/distributions/batch", "op-b2", batch(2, 3))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	out := decode[ledger.ListResult[entity.StockDistribution]](t, w)
	require.Len(t, out.Items, 2)
	assert.Equal(t, int64(2), out.TotalCount)
}

type brokenBody struct{}

func (brokenBody) Read([]byte) (int, error) { return 0, errors.New("connection reset by peer") }

func TestIdempotency_UnreadableBodyIsRejected(t *testing.T) {
	r, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/items", brokenBody{})
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.HeaderIdempotencyKey, "op-broken")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, apperror.CodeValidation, decode[map[string]any](t, w)["code"])
}
