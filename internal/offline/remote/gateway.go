// Package remote is the client side of the authoritative server API.
package remote

import (
	"context"
	"errors"

	"stallpos/internal/core/entity"
)

// ErrUnreachable marks transport failures: the request may or may not have
// reached the server.
var ErrUnreachable = errors.New("remote server unreachable")

// HeaderIdempotencyKey carries the key that makes a mutation at-most-once.
const HeaderIdempotencyKey = "X-Idempotency-Key"

// ListFilter narrows event listings. Empty fields match everything.
type ListFilter struct {
	ItemID  string
	StallID string
}

// Gateway is the remote store of record. Every mutating call takes an
// idempotency key; an empty key sends none.
type Gateway interface {
	Ping(ctx context.Context) error

	CreateItem(ctx context.Context, key string, item entity.Item) (entity.Item, error)
	UpdateItem(ctx context.Context, key, itemID string, patch entity.ItemPatch) (entity.Item, error)
	DeactivateItem(ctx context.Context, key, itemID string) error
	ListItems(ctx context.Context) ([]entity.Item, error)

	CreateSale(ctx context.Context, key string, sale entity.Sale) (entity.Sale, error)
	UpdateSale(ctx context.Context, key, saleID string, payment entity.SalePayment) (entity.Sale, error)
	ListSales(ctx context.Context, f ListFilter) ([]entity.Sale, error)

	CreateDistribution(ctx context.Context, key string, d entity.StockDistribution) (entity.StockDistribution, error)
	// CreateDistributions commits every line or none.
	CreateDistributions(ctx context.Context, key string, ds []entity.StockDistribution) ([]entity.StockDistribution, error)
	ListDistributions(ctx context.Context, f ListFilter) ([]entity.StockDistribution, error)

	CreateAddition(ctx context.Context, key string, a entity.StockAddition) (entity.StockAddition, error)
	ListAdditions(ctx context.Context, f ListFilter) ([]entity.StockAddition, error)

	CreateWithdrawal(ctx context.Context, key string, w entity.Withdrawal) (entity.Withdrawal, error)
	ListWithdrawals(ctx context.Context, f ListFilter) ([]entity.Withdrawal, error)
}

// IsUnreachable reports whether err is a transport failure rather than a
// server verdict.
func IsUnreachable(err error) bool {
	return errors.Is(err, ErrUnreachable) ||
		errors.Is(err, context.DeadlineExceeded)
}

// Snapshot fetches every record kind from the server.
func Snapshot(ctx context.Context, g Gateway) (map[entity.Kind][]entity.Record, error) {
	out := make(map[entity.Kind][]entity.Record, len(entity.Kinds()))

	items, err := g.ListItems(ctx)
	if err != nil {
		return nil, err
	}
	out[entity.KindItems] = records(items)

	additions, err := g.ListAdditions(ctx, ListFilter{})
	if err != nil {
		return nil, err
	}
	out[entity.KindAdditions] = records(additions)

	dists, err := g.ListDistributions(ctx, ListFilter{})
	if err != nil {
		return nil, err
	}
	out[entity.KindDistributions] = records(dists)

	sales, err := g.ListSales(ctx, ListFilter{})
	if err != nil {
		return nil, err
	}
	out[entity.KindSales] = records(sales)

	withdrawals, err := g.ListWithdrawals(ctx, ListFilter{})
	if err != nil {
		return nil, err
	}
	out[entity.KindWithdrawals] = records(withdrawals)

	return out, nil
}

func records[T entity.Record](rows []T) []entity.Record {
	out := make([]entity.Record, len(rows))
	for i, r := range rows {
		out[i] = r
	}
	return out
}
