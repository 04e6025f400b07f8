package ledger_repo

import (
	"context"

	"stallpos/internal/core/entity"
	"stallpos/internal/domain/ledger"
	"stallpos/internal/infrastructure/storage/postgres"
)

// EventRepo stores event types whose fields map one to one onto columns.
type EventRepo[T entity.ItemScoped] struct {
	table[T]
}

var (
	_ ledger.EventRepository[entity.StockAddition]     = (*EventRepo[entity.StockAddition])(nil)
	_ ledger.EventRepository[entity.StockDistribution] = (*EventRepo[entity.StockDistribution])(nil)
	_ ledger.EventRepository[entity.Withdrawal]        = (*EventRepo[entity.Withdrawal])(nil)
)

func NewAdditionRepo(txm *postgres.TxManager) *EventRepo[entity.StockAddition] {
	return &EventRepo[entity.StockAddition]{newTable[entity.StockAddition](txm, "additions", false)}
}

func NewDistributionRepo(txm *postgres.TxManager) *EventRepo[entity.StockDistribution] {
	return &EventRepo[entity.StockDistribution]{newTable[entity.StockDistribution](txm, "distributions", true)}
}

func NewWithdrawalRepo(txm *postgres.TxManager) *EventRepo[entity.Withdrawal] {
	return &EventRepo[entity.Withdrawal]{newTable[entity.Withdrawal](txm, "withdrawals", false)}
}

func (r *EventRepo[T]) Create(ctx context.Context, ev *T) error {
	return r.insert(ctx, ev)
}

func (r *EventRepo[T]) List(ctx context.Context, f ledger.ListFilter) (ledger.ListResult[T], error) {
	rows, total, err := r.list(ctx, f)
	if err != nil {
		return ledger.ListResult[T]{}, err
	}
	return ledger.ListResult[T]{Items: rows, TotalCount: total}, nil
}

// NewRepositories wires every ledger repository to txm.
func NewRepositories(txm *postgres.TxManager) ledger.Repositories {
	return ledger.Repositories{
		Items:         NewItemRepo(txm),
		Additions:     NewAdditionRepo(txm),
		Distributions: NewDistributionRepo(txm),
		Sales:         NewSaleRepo(txm),
		Withdrawals:   NewWithdrawalRepo(txm),
	}
}
