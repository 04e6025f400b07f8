package remote

import (
	"context"
	"fmt"
	"sync"
	"time"

	"stallpos/internal/core/apperror"
	"stallpos/internal/core/entity"
	"stallpos/internal/core/id"
)

// MemoryGateway is an in-process stand-in for the server. It assigns server
// ids, honours idempotency keys and can simulate outages. Used by tests.
type MemoryGateway struct {
	mu sync.Mutex

	items         []entity.Item
	sales         []entity.Sale
	distributions []entity.StockDistribution
	additions     []entity.StockAddition
	withdrawals   []entity.Withdrawal

	replies map[string]any
	applied map[string]int

	down bool

	// LoseAcks makes the next n mutations apply and then report a transport
	// failure, as when the response is lost on the way back.
	LoseAcks int

	// Reject, when set, may veto a mutation before it is applied.
	Reject func(method string, payload any) error
}

var _ Gateway = (*MemoryGateway)(nil)

func NewMemory() *MemoryGateway {
	return &MemoryGateway{
		replies: make(map[string]any),
		applied: make(map[string]int),
	}
}

// SetDown toggles a simulated outage.
func (g *MemoryGateway) SetDown(down bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.down = down
}

// Applied returns how many times the mutation with key took effect.
func (g *MemoryGateway) Applied(key string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.applied[key]
}

// Seed inserts server rows directly.
func (g *MemoryGateway) Seed(recs ...entity.Record) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, r := range recs {
		switch v := r.(type) {
		case entity.Item:
			g.items = append(g.items, v)
		case entity.Sale:
			g.sales = append(g.sales, v)
		case entity.StockDistribution:
			g.distributions = append(g.distributions, v)
		case entity.StockAddition:
			g.additions = append(g.additions, v)
		case entity.Withdrawal:
			g.withdrawals = append(g.withdrawals, v)
		}
	}
}

func unreachable() error {
	return apperror.NewUnreachable(ErrUnreachable)
}

// mutate runs apply at most once per key.
func mutate[T any](g *MemoryGateway, method, key string, payload any, apply func() (T, error)) (T, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var zero T
	if g.down {
		return zero, unreachable()
	}
	if key != "" {
		if prev, ok := g.replies[key]; ok {
			return prev.(T), nil
		}
	}
	if g.Reject != nil {
		if err := g.Reject(method, payload); err != nil {
			return zero, err
		}
	}

	out, err := apply()
	if err != nil {
		return zero, err
	}
	if key != "" {
		g.replies[key] = out
		g.applied[key]++
	}
	if g.LoseAcks > 0 {
		g.LoseAcks--
		return zero, unreachable()
	}
	return out, nil
}

func serverID(clientID string) string {
	if clientID == "" || id.IsTemp(clientID) {
		return id.New()
	}
	return clientID
}

func (g *MemoryGateway) Ping(context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.down {
		return unreachable()
	}
	return nil
}

func (g *MemoryGateway) findItem(itemID string) (int, error) {
	for i := range g.items {
		if g.items[i].ID == itemID {
			return i, nil
		}
	}
	return -1, apperror.NewNotFound("item", itemID)
}

func (g *MemoryGateway) CreateItem(_ context.Context, key string, item entity.Item) (entity.Item, error) {
	return mutate(g, "CreateItem", key, item, func() (entity.Item, error) {
		item.ID = serverID(item.ID)
		item.Active = true
		item.CreatedAt = time.Now().UTC()
		item.UpdatedAt = item.CreatedAt
		g.items = append(g.items, item)
		return item, nil
	})
}

func (g *MemoryGateway) UpdateItem(_ context.Context, key, itemID string, patch entity.ItemPatch) (entity.Item, error) {
	return mutate(g, "UpdateItem", key, patch, func() (entity.Item, error) {
		i, err := g.findItem(itemID)
		if err != nil {
			return entity.Item{}, err
		}
		hasDist := false
		for _, d := range g.distributions {
			if d.ItemID == itemID {
				hasDist = true
				break
			}
		}
		item := g.items[i]
		if err := patch.Apply(&item, hasDist); err != nil {
			return entity.Item{}, err
		}
		item.UpdatedAt = time.Now().UTC()
		g.items[i] = item
		return item, nil
	})
}

func (g *MemoryGateway) DeactivateItem(_ context.Context, key, itemID string) error {
	_, err := mutate(g, "DeactivateItem", key, itemID, func() (struct{}, error) {
		i, err := g.findItem(itemID)
		if err != nil {
			return struct{}{}, err
		}
		g.items[i].Active = false
		return struct{}{}, nil
	})
	return err
}

func (g *MemoryGateway) ListItems(context.Context) ([]entity.Item, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.down {
		return nil, unreachable()
	}
	return append([]entity.Item(nil), g.items...), nil
}

func (g *MemoryGateway) CreateSale(_ context.Context, key string, sale entity.Sale) (entity.Sale, error) {
	return mutate(g, "CreateSale", key, sale, func() (entity.Sale, error) {
		if _, err := g.findItem(sale.ItemID); err != nil {
			return entity.Sale{}, err
		}
		sale.ID = serverID(sale.ID)
		g.sales = append(g.sales, sale)
		return sale, nil
	})
}

func (g *MemoryGateway) UpdateSale(_ context.Context, key, saleID string, payment entity.SalePayment) (entity.Sale, error) {
	return mutate(g, "UpdateSale", key, payment, func() (entity.Sale, error) {
		for i := range g.sales {
			if g.sales[i].ID != saleID {
				continue
			}
			sale := g.sales[i]
			if sale.Credit != nil {
				c := *sale.Credit
				sale.Credit = &c
			}
			if err := sale.ApplyPayment(payment); err != nil {
				return entity.Sale{}, err
			}
			g.sales[i] = sale
			return sale, nil
		}
		return entity.Sale{}, apperror.NewNotFound("sale", saleID)
	})
}

func (g *MemoryGateway) ListSales(_ context.Context, f ListFilter) ([]entity.Sale, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.down {
		return nil, unreachable()
	}
	var out []entity.Sale
	for _, s := range g.sales {
		if (f.ItemID == "" || s.ItemID == f.ItemID) && (f.StallID == "" || s.AtStall(f.StallID)) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (g *MemoryGateway) CreateDistribution(_ context.Context, key string, d entity.StockDistribution) (entity.StockDistribution, error) {
	return mutate(g, "CreateDistribution", key, d, func() (entity.StockDistribution, error) {
		if _, err := g.findItem(d.ItemID); err != nil {
			return entity.StockDistribution{}, err
		}
		d.ID = serverID(d.ID)
		g.distributions = append(g.distributions, d)
		return d, nil
	})
}

func (g *MemoryGateway) CreateDistributions(_ context.Context, key string, ds []entity.StockDistribution) ([]entity.StockDistribution, error) {
	return mutate(g, "CreateDistributions", key, ds, func() ([]entity.StockDistribution, error) {
		out := make([]entity.StockDistribution, len(ds))
		for i, d := range ds {
			if _, err := g.findItem(d.ItemID); err != nil {
				return nil, err
			}
			d.ID = serverID(d.ID)
			out[i] = d
		}
		g.distributions = append(g.distributions, out...)
		return out, nil
	})
}

func (g *MemoryGateway) ListDistributions(_ context.Context, f ListFilter) ([]entity.StockDistribution, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.down {
		return nil, unreachable()
	}
	var out []entity.StockDistribution
	for _, d := range g.distributions {
		if (f.ItemID == "" || d.ItemID == f.ItemID) && (f.StallID == "" || d.StallID == f.StallID) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (g *MemoryGateway) CreateAddition(_ context.Context, key string, a entity.StockAddition) (entity.StockAddition, error) {
	return mutate(g, "CreateAddition", key, a, func() (entity.StockAddition, error) {
		i, err := g.findItem(a.ItemID)
		if err != nil {
			return entity.StockAddition{}, err
		}
		a.ID = serverID(a.ID)
		g.additions = append(g.additions, a)
		g.items[i].TotalAdded += a.QuantityAdded
		return a, nil
	})
}

func (g *MemoryGateway) ListAdditions(_ context.Context, f ListFilter) ([]entity.StockAddition, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.down {
		return nil, unreachable()
	}
	var out []entity.StockAddition
	for _, a := range g.additions {
		if f.ItemID == "" || a.ItemID == f.ItemID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (g *MemoryGateway) CreateWithdrawal(_ context.Context, key string, w entity.Withdrawal) (entity.Withdrawal, error) {
	return mutate(g, "CreateWithdrawal", key, w, func() (entity.Withdrawal, error) {
		if _, err := g.findItem(w.ItemID); err != nil {
			return entity.Withdrawal{}, err
		}
		w.ID = serverID(w.ID)
		g.withdrawals = append(g.withdrawals, w)
		return w, nil
	})
}

func (g *MemoryGateway) ListWithdrawals(_ context.Context, f ListFilter) ([]entity.Withdrawal, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.down {
		return nil, unreachable()
	}
	var out []entity.Withdrawal
	for _, w := range g.withdrawals {
		if f.ItemID == "" || w.ItemID == f.ItemID {
			out = append(out, w)
		}
	}
	return out, nil
}

// String summarises the server contents; handy in failing test output.
func (g *MemoryGateway) String() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return fmt.Sprintf("items=%d sales=%d distributions=%d additions=%d withdrawals=%d",
		len(g.items), len(g.sales), len(g.distributions), len(g.additions), len(g.withdrawals))
}
