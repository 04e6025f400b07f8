// Package stock derives stock figures from the inventory event ledger.
//
// Nothing here talks to storage or the network. Callers hand in materialised
// event slices and get quantities back; figures are recomputed on every read so
// a cached counter can never drift from the ledger.
package stock

import (
	"sort"

	"stallpos/internal/core/entity"
)

// Scope tells where a clamped figure was computed.
type Scope string

const (
	ScopeCentral Scope = "central"
	ScopeStall   Scope = "stall"
)

// ClampEvent describes a computed quantity that went negative and was shown as zero.
// It means the ledger is over-committed (e.g. two distributions authorised against
// the same stale snapshot).
type ClampEvent struct {
	Scope   Scope
	ItemID  string
	StallID string
	Raw     int64
}

// ClampObserver is notified whenever a figure is clamped to zero.
type ClampObserver func(ClampEvent)

// Calculator computes stock figures. The zero value is ready to use and ignores clamps.
type Calculator struct {
	OnClamp ClampObserver
}

// NewCalculator creates a calculator that reports clamps to observer.
func NewCalculator(observer ClampObserver) *Calculator {
	return &Calculator{OnClamp: observer}
}

func (c *Calculator) clamp(raw int64, ev ClampEvent) int64 {
	if raw >= 0 {
		return raw
	}
	if c != nil && c.OnClamp != nil {
		ev.Raw = raw
		c.OnClamp(ev)
	}
	return 0
}

// CentralStock returns the quantity available in the central pool:
// max(0, initial + Σadditions − Σdistributions − Σcentral sales − Σwithdrawals).
// Events belonging to other items and sales made at stalls are ignored.
func (c *Calculator) CentralStock(
	item entity.Item,
	additions []entity.StockAddition,
	distributions []entity.StockDistribution,
	centralSales []entity.Sale,
	withdrawals []entity.Withdrawal,
) int64 {
	raw := centralRaw(item, additions, distributions, centralSales, withdrawals)
	return c.clamp(raw, ClampEvent{Scope: ScopeCentral, ItemID: item.ID})
}

func centralRaw(
	item entity.Item,
	additions []entity.StockAddition,
	distributions []entity.StockDistribution,
	centralSales []entity.Sale,
	withdrawals []entity.Withdrawal,
) int64 {
	raw := item.InitialStock + totalAdded(item.ID, additions) - totalDistributed(item.ID, "", distributions)
	for _, s := range centralSales {
		if s.ItemID == item.ID && s.IsCentral() {
			raw -= s.QuantitySold
		}
	}
	return raw - totalWithdrawn(item.ID, withdrawals)
}

// StallStock returns max(0, Σdistributions(item, stall) − Σsales(item, stall)).
func (c *Calculator) StallStock(item entity.Item, stallID string, distributions []entity.StockDistribution, stallSales []entity.Sale) int64 {
	raw := totalDistributed(item.ID, stallID, distributions) - soldAtStall(item.ID, stallID, stallSales)
	return c.clamp(raw, ClampEvent{Scope: ScopeStall, ItemID: item.ID, StallID: stallID})
}

// StallBreakdown answers "how much did the stall have versus how much just arrived".
// It is a presentation view and has no bearing on the stock invariants.
type StallBreakdown struct {
	PriorStock  int64 `json:"prior_stock"`
	LatestAdded int64 `json:"latest_added"`
}

// StallInitialAndAdded splits a stall's stock into what it held before the most
// recent distribution and what that distribution brought. With one distribution the
// prior stock is zero; with several it is Σ(all but latest) minus the sales made
// strictly before the latest distribution, clamped at zero.
func (c *Calculator) StallInitialAndAdded(item entity.Item, stallID string, distributions []entity.StockDistribution, stallSales []entity.Sale) StallBreakdown {
	own := make([]entity.StockDistribution, 0, len(distributions))
	for _, d := range distributions {
		if d.ItemID == item.ID && d.StallID == stallID {
			own = append(own, d)
		}
	}
	if len(own) == 0 {
		return StallBreakdown{}
	}
	sort.SliceStable(own, func(i, j int) bool { return own[i].CreatedAt.Before(own[j].CreatedAt) })

	latest := own[len(own)-1]
	if len(own) == 1 {
		return StallBreakdown{PriorStock: 0, LatestAdded: latest.QuantityAllocated}
	}

	var before int64
	for _, d := range own[:len(own)-1] {
		before += d.QuantityAllocated
	}
	for _, s := range stallSales {
		if s.ItemID == item.ID && s.AtStall(stallID) && s.CreatedAt.Before(latest.CreatedAt) {
			before -= s.QuantitySold
		}
	}
	if before < 0 {
		before = 0
	}
	return StallBreakdown{PriorStock: before, LatestAdded: latest.QuantityAllocated}
}

// TotalSoldForItem sums quantity sold for the item across the central pool and all stalls.
func TotalSoldForItem(itemID string, sales []entity.Sale) int64 {
	var n int64
	for _, s := range sales {
		if s.ItemID == itemID {
			n += s.QuantitySold
		}
	}
	return n
}

func totalAdded(itemID string, additions []entity.StockAddition) int64 {
	var n int64
	for _, a := range additions {
		if a.ItemID == itemID {
			n += a.QuantityAdded
		}
	}
	return n
}

// totalDistributed sums distributions for the item; stallID "" means every stall.
func totalDistributed(itemID, stallID string, distributions []entity.StockDistribution) int64 {
	var n int64
	for _, d := range distributions {
		if d.ItemID == itemID && (stallID == "" || d.StallID == stallID) {
			n += d.QuantityAllocated
		}
	}
	return n
}

func soldAtStall(itemID, stallID string, sales []entity.Sale) int64 {
	var n int64
	for _, s := range sales {
		if s.ItemID == itemID && s.AtStall(stallID) {
			n += s.QuantitySold
		}
	}
	return n
}

func totalWithdrawn(itemID string, withdrawals []entity.Withdrawal) int64 {
	var n int64
	for _, w := range withdrawals {
		if w.ItemID == itemID {
			n += w.QuantityWithdrawn
		}
	}
	return n
}
