package ledger

import (
	"context"
	"sort"
	"sync"

	"stallpos/internal/core/apperror"
	"stallpos/internal/core/entity"
	"stallpos/internal/core/tx"
)

// Memory keeps the ledger in process. It backs the server when no database is
// configured and the ledger and handler tests. Its transaction manager holds
// one global lock, which stands in for the item row lock.
type Memory struct {
	mu sync.Mutex
	tx sync.Mutex

	items         []entity.Item
	additions     []entity.StockAddition
	distributions []entity.StockDistribution
	sales         []entity.Sale
	withdrawals   []entity.Withdrawal
}

// NewMemory creates an empty in-process ledger.
func NewMemory() *Memory {
	return &Memory{}
}

// Repositories returns repositories over m.
func (m *Memory) Repositories() Repositories {
	return Repositories{
		Items:         memItems{m},
		Additions:     memEvents[entity.StockAddition]{m: m, rows: func(m *Memory) *[]entity.StockAddition { return &m.additions }},
		Distributions: memEvents[entity.StockDistribution]{m: m, rows: func(m *Memory) *[]entity.StockDistribution { return &m.distributions }},
		Sales:         memSales{memEvents[entity.Sale]{m: m, rows: func(m *Memory) *[]entity.Sale { return &m.sales }}},
		Withdrawals:   memEvents[entity.Withdrawal]{m: m, rows: func(m *Memory) *[]entity.Withdrawal { return &m.withdrawals }},
	}
}

type memTxKey struct{}

// TxManager serialises transactions over m.
func (m *Memory) TxManager() tx.Manager {
	return memTx{m}
}

type memTx struct{ m *Memory }

func (t memTx) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(memTxKey{}) != nil {
		return fn(ctx)
	}
	t.m.tx.Lock()
	defer t.m.tx.Unlock()
	// no rollback: callers validate before they write
	return fn(context.WithValue(ctx, memTxKey{}, true))
}

func page[T any](rows []T, f ListFilter) ListResult[T] {
	res := ListResult[T]{TotalCount: int64(len(rows))}
	if f.Offset >= len(rows) {
		res.Items = []T{}
		return res
	}
	rows = rows[f.Offset:]
	if f.Limit > 0 && f.Limit < len(rows) {
		rows = rows[:f.Limit]
	}
	res.Items = append([]T{}, rows...)
	return res
}

type memItems struct{ m *Memory }

func (r memItems) find(itemID string) int {
	for i, it := range r.m.items {
		if it.ID == itemID {
			return i
		}
	}
	return -1
}

func (r memItems) Create(_ context.Context, item *entity.Item) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.find(item.ID) >= 0 {
		return apperror.NewConflict("item already exists").WithDetail("item_id", item.ID)
	}
	r.m.items = append(r.m.items, *item)
	return nil
}

func (r memItems) GetByID(_ context.Context, itemID string) (entity.Item, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if i := r.find(itemID); i >= 0 {
		return r.m.items[i], nil
	}
	return entity.Item{}, apperror.NewNotFound("item", itemID)
}

func (r memItems) GetForUpdate(ctx context.Context, itemID string) (entity.Item, error) {
	return r.GetByID(ctx, itemID)
}

func (r memItems) Update(_ context.Context, item *entity.Item) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	i := r.find(item.ID)
	if i < 0 {
		return apperror.NewNotFound("item", item.ID)
	}
	r.m.items[i] = *item
	return nil
}

func (r memItems) AddCounters(_ context.Context, itemID string, added, allocated int64) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	i := r.find(itemID)
	if i < 0 {
		return apperror.NewNotFound("item", itemID)
	}
	r.m.items[i].TotalAdded += added
	r.m.items[i].TotalAllocated += allocated
	return nil
}

func (r memItems) List(_ context.Context, f ListFilter) (ListResult[entity.Item], error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var rows []entity.Item
	for _, it := range r.m.items {
		if f.ActiveOnly && !it.Active {
			continue
		}
		if f.ItemID != "" && it.ID != f.ItemID {
			continue
		}
		rows = append(rows, it)
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Name < rows[j].Name })
	return page(rows, f), nil
}

type memEvents[T entity.ItemScoped] struct {
	m    *Memory
	rows func(m *Memory) *[]T
}

func (r memEvents[T]) Create(_ context.Context, ev *T) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	rows := r.rows(r.m)
	for _, existing := range *rows {
		if existing.RecordID() == (*ev).RecordID() {
			return apperror.NewConflict("record already exists").WithDetail("id", existing.RecordID())
		}
	}
	*rows = append(*rows, *ev)
	return nil
}

func (r memEvents[T]) List(_ context.Context, f ListFilter) (ListResult[T], error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var rows []T
	for _, ev := range *r.rows(r.m) {
		if f.ItemID != "" && ev.ItemRef() != f.ItemID {
			continue
		}
		if f.StallID != "" && !atStall(ev, f.StallID) {
			continue
		}
		rows = append(rows, ev)
	}
	return page(rows, f), nil
}

func atStall(rec entity.Record, stallID string) bool {
	switch v := rec.(type) {
	case entity.StockDistribution:
		return v.StallID == stallID
	case entity.Sale:
		return v.AtStall(stallID)
	}
	// additions and withdrawals have no stall
	return true
}

type memSales struct {
	memEvents[entity.Sale]
}

func (r memSales) GetByID(_ context.Context, saleID string) (entity.Sale, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, s := range r.m.sales {
		if s.ID == saleID {
			if s.Credit != nil {
				credit := *s.Credit
				s.Credit = &credit
			}
			return s, nil
		}
	}
	return entity.Sale{}, apperror.NewNotFound("sale", saleID)
}

func (r memSales) UpdateCredit(_ context.Context, sale *entity.Sale) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for i, s := range r.m.sales {
		if s.ID == sale.ID {
			credit := *sale.Credit
			r.m.sales[i].Credit = &credit
			return nil
		}
	}
	return apperror.NewNotFound("sale", sale.ID)
}
