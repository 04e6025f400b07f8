// Package ledger is the authoritative side of the stock ledger. It admits
// events under a row lock on their item, so two terminals authorising against
// the same stale snapshot cannot both overdraw the pool.
package ledger

import (
	"context"

	"stallpos/internal/core/entity"
)

// ListFilter narrows list queries. Empty fields match everything.
type ListFilter struct {
	ItemID  string
	StallID string

	// ActiveOnly applies to items.
	ActiveOnly bool

	Limit  int
	Offset int
}

// ListResult is a page of records plus the unpaged total.
type ListResult[T any] struct {
	Items      []T   `json:"items"`
	TotalCount int64 `json:"totalCount"`
}

// ItemRepository persists items.
type ItemRepository interface {
	Create(ctx context.Context, item *entity.Item) error
	GetByID(ctx context.Context, itemID string) (entity.Item, error)

	// GetForUpdate locks the item row until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, itemID string) (entity.Item, error)

	Update(ctx context.Context, item *entity.Item) error

	// AddCounters increments total_added and total_allocated.
	AddCounters(ctx context.Context, itemID string, added, allocated int64) error

	List(ctx context.Context, f ListFilter) (ListResult[entity.Item], error)
}

// EventRepository persists an append-only event kind.
type EventRepository[T entity.ItemScoped] interface {
	Create(ctx context.Context, ev *T) error
	List(ctx context.Context, f ListFilter) (ListResult[T], error)
}

// SaleRepository adds the credit update, the only mutation a sale allows.
type SaleRepository interface {
	EventRepository[entity.Sale]
	GetByID(ctx context.Context, saleID string) (entity.Sale, error)
	UpdateCredit(ctx context.Context, sale *entity.Sale) error
}

// Repositories groups the ledger's storage.
type Repositories struct {
	Items         ItemRepository
	Additions     EventRepository[entity.StockAddition]
	Distributions EventRepository[entity.StockDistribution]
	Sales         SaleRepository
	Withdrawals   EventRepository[entity.Withdrawal]
}
