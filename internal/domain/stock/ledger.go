package stock

import (
	"sort"

	"stallpos/internal/core/entity"
)

// Ledger is the materialised event history the calculator works on.
type Ledger struct {
	Additions     []entity.StockAddition
	Distributions []entity.StockDistribution
	Sales         []entity.Sale
	Withdrawals   []entity.Withdrawal
}

// ForItem returns the subset of the ledger that belongs to itemID.
func (l Ledger) ForItem(itemID string) Ledger {
	var out Ledger
	for _, a := range l.Additions {
		if a.ItemID == itemID {
			out.Additions = append(out.Additions, a)
		}
	}
	for _, d := range l.Distributions {
		if d.ItemID == itemID {
			out.Distributions = append(out.Distributions, d)
		}
	}
	for _, s := range l.Sales {
		if s.ItemID == itemID {
			out.Sales = append(out.Sales, s)
		}
	}
	for _, w := range l.Withdrawals {
		if w.ItemID == itemID {
			out.Withdrawals = append(out.Withdrawals, w)
		}
	}
	return out
}

// CentralSales returns sales made out of the central pool.
func (l Ledger) CentralSales() []entity.Sale {
	var out []entity.Sale
	for _, s := range l.Sales {
		if s.IsCentral() {
			out = append(out, s)
		}
	}
	return out
}

// Stalls returns the stalls that ever received the item, sorted.
func (l Ledger) Stalls(itemID string) []string {
	seen := make(map[string]struct{})
	for _, d := range l.Distributions {
		if d.ItemID == itemID {
			seen[d.StallID] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// ItemSnapshot holds the central-pool figures shown for an item.
type ItemSnapshot struct {
	Item              entity.Item `json:"item"`
	CurrentStock      int64       `json:"current_stock"`
	TotalAdded        int64       `json:"total_added"`
	TotalAllocated    int64       `json:"total_allocated"`
	DistributedUnsold int64       `json:"distributed_unsold"`
	TotalSold         int64       `json:"total_sold"`
	TotalWithdrawn    int64       `json:"total_withdrawn"`
	TotalInventory    int64       `json:"total_inventory"`
}

// Snapshot computes central figures for an item from the full ledger.
// TotalAdded and TotalAllocated come from the events, not the item's counters.
func (c *Calculator) Snapshot(item entity.Item, l Ledger) ItemSnapshot {
	own := l.ForItem(item.ID)
	snap := ItemSnapshot{
		Item:           item,
		CurrentStock:   c.CentralStock(item, own.Additions, own.Distributions, own.CentralSales(), own.Withdrawals),
		TotalAdded:     totalAdded(item.ID, own.Additions),
		TotalAllocated: totalDistributed(item.ID, "", own.Distributions),
		TotalSold:      TotalSoldForItem(item.ID, own.Sales),
		TotalWithdrawn: totalWithdrawn(item.ID, own.Withdrawals),
	}
	for _, stall := range own.Stalls(item.ID) {
		snap.DistributedUnsold += c.StallStock(item, stall, own.Distributions, own.Sales)
	}
	snap.TotalInventory = snap.CurrentStock + snap.DistributedUnsold + snap.TotalSold + snap.TotalWithdrawn
	return snap
}

// StallSnapshot holds stall-scoped figures for an item.
type StallSnapshot struct {
	Item      entity.Item `json:"item"`
	StallID   string      `json:"stall_id"`
	Allocated int64       `json:"allocated"`
	Sold      int64       `json:"sold"`
	Available int64       `json:"available"`
	StallBreakdown
}

// StallView computes stall figures for an item. ok is false when the item was
// never allocated to the stall.
func (c *Calculator) StallView(item entity.Item, stallID string, l Ledger) (StallSnapshot, bool) {
	own := l.ForItem(item.ID)
	allocated := totalDistributed(item.ID, stallID, own.Distributions)
	if allocated == 0 {
		return StallSnapshot{}, false
	}
	return StallSnapshot{
		Item:           item,
		StallID:        stallID,
		Allocated:      allocated,
		Sold:           soldAtStall(item.ID, stallID, own.Sales),
		Available:      c.StallStock(item, stallID, own.Distributions, own.Sales),
		StallBreakdown: c.StallInitialAndAdded(item, stallID, own.Distributions, own.Sales),
	}, true
}

// Reconciliation is the conservation identity for one item:
// Initial + Added = Central + StallUnsold + Sold + Withdrawn.
type Reconciliation struct {
	ItemID      string `json:"item_id"`
	Initial     int64  `json:"initial_stock"`
	Added       int64  `json:"total_added"`
	Central     int64  `json:"central_available"`
	StallUnsold int64  `json:"stall_unsold"`
	Sold        int64  `json:"sold"`
	Withdrawn   int64  `json:"withdrawn"`
}

// Balanced reports whether the identity holds. It fails only when some figure was
// clamped, i.e. the ledger is over-committed.
func (r Reconciliation) Balanced() bool {
	return r.Initial+r.Added == r.Central+r.StallUnsold+r.Sold+r.Withdrawn
}

// Reconcile computes the conservation identity for an item.
func (c *Calculator) Reconcile(item entity.Item, l Ledger) Reconciliation {
	snap := c.Snapshot(item, l)
	return Reconciliation{
		ItemID:      item.ID,
		Initial:     item.InitialStock,
		Added:       snap.TotalAdded,
		Central:     snap.CurrentStock,
		StallUnsold: snap.DistributedUnsold,
		Sold:        snap.TotalSold,
		Withdrawn:   snap.TotalWithdrawn,
	}
}
