package stock

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stallpos/internal/core/entity"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func stall(s string) *string { return &s }

func testItem(initial int64) entity.Item {
	return entity.Item{ID: "item-1", Name: "Soap", InitialStock: initial, Active: true}
}

func dist(stallID string, qty int64, at time.Time) entity.StockDistribution {
	return entity.StockDistribution{ID: "d-" + at.Format(time.RFC3339Nano), ItemID: "item-1", StallID: stallID, QuantityAllocated: qty, CreatedAt: at}
}

func sale(stallID string, qty int64, at time.Time) entity.Sale {
	s := entity.Sale{ItemID: "item-1", QuantitySold: qty, SaleType: entity.SaleTypeCash, CreatedAt: at}
	if stallID != "" {
		s.StallID = stall(stallID)
	}
	return s
}

func TestCentralStock(t *testing.T) {
	c := &Calculator{}
	item := testItem(10)

	got := c.CentralStock(item,
		[]entity.StockAddition{{ItemID: "item-1", QuantityAdded: 5}, {ItemID: "other", QuantityAdded: 100}},
		[]entity.StockDistribution{dist("X", 8, t0)},
		[]entity.Sale{sale("", 2, t0), sale("X", 3, t0)},
		[]entity.Withdrawal{{ItemID: "item-1", QuantityWithdrawn: 1}},
	)

	// 10 + 5 - 8 - 2 - 1; the stall sale and the other item are ignored
	assert.Equal(t, int64(4), got)
}

func TestStallStock(t *testing.T) {
	c := &Calculator{}
	item := testItem(0)
	dists := []entity.StockDistribution{dist("X", 8, t0), dist("Y", 4, t0), dist("X", 2, t0.Add(time.Hour))}
	sales := []entity.Sale{sale("X", 3, t0), sale("Y", 1, t0), sale("", 5, t0)}

	assert.Equal(t, int64(7), c.StallStock(item, "X", dists, sales))
	assert.Equal(t, int64(3), c.StallStock(item, "Y", dists, sales))
	assert.Equal(t, int64(0), c.StallStock(item, "Z", dists, sales))
}

func TestNonNegativity_AdversarialSequences(t *testing.T) {
	var clamps []ClampEvent
	c := NewCalculator(func(ev ClampEvent) { clamps = append(clamps, ev) })
	rng := rand.New(rand.NewSource(42))
	stalls := []string{"A", "B", "C"}

	for round := 0; round < 500; round++ {
		item := testItem(int64(rng.Intn(20)))
		var l Ledger
		for i := 0; i < 30; i++ {
			at := t0.Add(time.Duration(i) * time.Minute)
			qty := int64(rng.Intn(15) + 1)
			switch rng.Intn(4) {
			case 0:
				l.Additions = append(l.Additions, entity.StockAddition{ItemID: item.ID, QuantityAdded: qty})
			case 1:
				l.Distributions = append(l.Distributions, dist(stalls[rng.Intn(3)], qty, at))
			case 2:
				st := ""
				if rng.Intn(2) == 0 {
					st = stalls[rng.Intn(3)]
				}
				l.Sales = append(l.Sales, sale(st, qty, at))
			case 3:
				l.Withdrawals = append(l.Withdrawals, entity.Withdrawal{ItemID: item.ID, QuantityWithdrawn: qty})
			}
		}

		central := c.CentralStock(item, l.Additions, l.Distributions, l.CentralSales(), l.Withdrawals)
		require.GreaterOrEqual(t, central, int64(0), "round %d", round)
		for _, s := range stalls {
			require.GreaterOrEqual(t, c.StallStock(item, s, l.Distributions, l.Sales), int64(0), "round %d stall %s", round, s)
			b := c.StallInitialAndAdded(item, s, l.Distributions, l.Sales)
			require.GreaterOrEqual(t, b.PriorStock, int64(0))
		}
	}

	for _, ev := range clamps {
		assert.Negative(t, ev.Raw)
	}
}

func TestClampObserver_ReportsRawValue(t *testing.T) {
	var got []ClampEvent
	c := NewCalculator(func(ev ClampEvent) { got = append(got, ev) })
	item := testItem(5)

	central := c.CentralStock(item, nil, []entity.StockDistribution{dist("X", 6, t0), dist("Y", 3, t0)}, nil, nil)

	assert.Equal(t, int64(0), central)
	require.Len(t, got, 1)
	assert.Equal(t, ClampEvent{Scope: ScopeCentral, ItemID: "item-1", Raw: -4}, got[0])
}

func TestConservationIdentity(t *testing.T) {
	c := &Calculator{}
	item := testItem(10)
	l := Ledger{
		Additions:     []entity.StockAddition{{ItemID: "item-1", QuantityAdded: 5}},
		Distributions: []entity.StockDistribution{dist("X", 8, t0)},
		Sales: []entity.Sale{
			sale("X", 1, t0.Add(time.Minute)),
			sale("X", 1, t0.Add(2*time.Minute)),
			sale("X", 1, t0.Add(3*time.Minute)),
		},
	}

	r := c.Reconcile(item, l)

	assert.Equal(t, int64(7), r.Central)
	assert.Equal(t, int64(5), r.StallUnsold)
	assert.Equal(t, int64(3), r.Sold)
	assert.Equal(t, int64(0), r.Withdrawn)
	assert.Equal(t, int64(15), r.Initial+r.Added)
	assert.True(t, r.Balanced())

	snap := c.Snapshot(item, l)
	assert.Equal(t, int64(15), snap.TotalInventory)
}

func TestConservationIdentity_BreaksOnlyWhenOverCommitted(t *testing.T) {
	c := &Calculator{}
	item := testItem(3)
	l := Ledger{Distributions: []entity.StockDistribution{dist("X", 5, t0)}}

	assert.False(t, c.Reconcile(item, l).Balanced())
}

func TestStallInitialAndAdded(t *testing.T) {
	c := &Calculator{}
	item := testItem(100)

	t.Run("single distribution has zero prior stock", func(t *testing.T) {
		b := c.StallInitialAndAdded(item, "X", []entity.StockDistribution{dist("X", 20, t0)}, nil)
		assert.Equal(t, StallBreakdown{PriorStock: 0, LatestAdded: 20}, b)
	})

	t.Run("single distribution ignores earlier sales", func(t *testing.T) {
		b := c.StallInitialAndAdded(item, "X",
			[]entity.StockDistribution{dist("X", 20, t0)},
			[]entity.Sale{sale("X", 4, t0.Add(time.Hour))})
		assert.Equal(t, StallBreakdown{PriorStock: 0, LatestAdded: 20}, b)
	})

	t.Run("multiple distributions subtract sales before the latest", func(t *testing.T) {
		dists := []entity.StockDistribution{
			dist("X", 5, t0.Add(2*time.Hour)), // latest, deliberately out of order
			dist("X", 10, t0),
			dist("Y", 50, t0.Add(time.Hour)),
		}
		sales := []entity.Sale{
			sale("X", 3, t0.Add(time.Hour)),
			sale("X", 2, t0.Add(3*time.Hour)), // after the latest top-up
			sale("Y", 7, t0.Add(time.Hour)),
		}
		b := c.StallInitialAndAdded(item, "X", dists, sales)
		assert.Equal(t, StallBreakdown{PriorStock: 7, LatestAdded: 5}, b)
	})

	t.Run("prior stock is clamped", func(t *testing.T) {
		dists := []entity.StockDistribution{dist("X", 2, t0), dist("X", 5, t0.Add(2*time.Hour))}
		sales := []entity.Sale{sale("X", 9, t0.Add(time.Hour))}
		b := c.StallInitialAndAdded(item, "X", dists, sales)
		assert.Equal(t, int64(0), b.PriorStock)
	})

	t.Run("never allocated", func(t *testing.T) {
		assert.Equal(t, StallBreakdown{}, c.StallInitialAndAdded(item, "Z", nil, nil))
	})
}

func TestTotalSoldForItem(t *testing.T) {
	sales := []entity.Sale{sale("X", 3, t0), sale("", 2, t0), {ItemID: "other", QuantitySold: 9}}
	assert.Equal(t, int64(5), TotalSoldForItem("item-1", sales))
}

func TestStallView(t *testing.T) {
	c := &Calculator{}
	item := testItem(50)
	l := Ledger{
		Distributions: []entity.StockDistribution{dist("X", 20, t0)},
		Sales:         []entity.Sale{sale("X", 6, t0.Add(time.Minute))},
	}

	view, ok := c.StallView(item, "X", l)
	require.True(t, ok)
	assert.Equal(t, int64(20), view.Allocated)
	assert.Equal(t, int64(6), view.Sold)
	assert.Equal(t, int64(14), view.Available)
	assert.Equal(t, int64(20), view.LatestAdded)

	_, ok = c.StallView(item, "Y", l)
	assert.False(t, ok)
}
