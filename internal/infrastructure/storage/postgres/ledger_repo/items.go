package ledger_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stallpos/internal/core/apperror"
	"stallpos/internal/core/entity"
	"stallpos/internal/domain/ledger"
	"stallpos/internal/infrastructure/storage/postgres"
)

// ItemRepo stores items.
type ItemRepo struct {
	table[entity.Item]
}

var _ ledger.ItemRepository = (*ItemRepo)(nil)

func NewItemRepo(txm *postgres.TxManager) *ItemRepo {
	return &ItemRepo{newTable[entity.Item](txm, "items", false)}
}

func (r *ItemRepo) Create(ctx context.Context, item *entity.Item) error {
	return r.insert(ctx, item)
}

func (r *ItemRepo) get(ctx context.Context, itemID string, lock bool) (entity.Item, error) {
	q := builder().Select(r.cols...).From(r.name).Where(squirrel.Eq{"id": itemID})
	if lock {
		q = q.Suffix("FOR UPDATE")
	}
	sql, args, err := q.ToSql()
	if err != nil {
		return entity.Item{}, fmt.Errorf("build query: %w", err)
	}

	var item entity.Item
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &item, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return entity.Item{}, apperror.NewNotFound("item", itemID)
		}
		return entity.Item{}, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

func (r *ItemRepo) GetByID(ctx context.Context, itemID string) (entity.Item, error) {
	return r.get(ctx, itemID, false)
}

// GetForUpdate takes a row lock that serialises stock admission per item.
func (r *ItemRepo) GetForUpdate(ctx context.Context, itemID string) (entity.Item, error) {
	return r.get(ctx, itemID, true)
}

func (r *ItemRepo) Update(ctx context.Context, item *entity.Item) error {
	sql, args, err := builder().
		Update(r.name).
		SetMap(map[string]any{
			"item_name":     item.Name,
			"category":      item.Category,
			"unit_price":    item.UnitPrice,
			"buying_price":  item.BuyingPrice,
			"initial_stock": item.InitialStock,
			"active":        item.Active,
			"updated_at":    item.UpdatedAt,
		}).
		Where(squirrel.Eq{"id": item.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("item", item.ID)
	}
	return nil
}

func (r *ItemRepo) AddCounters(ctx context.Context, itemID string, added, allocated int64) error {
	sql, args, err := builder().
		Update(r.name).
		Set("total_added", squirrel.Expr("total_added + ?", added)).
		Set("total_allocated", squirrel.Expr("total_allocated + ?", allocated)).
		Where(squirrel.Eq{"id": itemID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("update item counters: %w", err)
	}
	return nil
}

func (r *ItemRepo) List(ctx context.Context, f ledger.ListFilter) (ledger.ListResult[entity.Item], error) {
	q := builder().Select(r.cols...).From(r.name).OrderBy("item_name", "id")
	if f.ActiveOnly {
		q = q.Where(squirrel.Eq{"active": true})
	}
	if f.ItemID != "" {
		q = q.Where(squirrel.Eq{"id": f.ItemID})
	}
	sql, args, err := q.ToSql()
	if err != nil {
		return ledger.ListResult[entity.Item]{}, fmt.Errorf("build list: %w", err)
	}

	items := make([]entity.Item, 0)
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &items, sql, args...); err != nil {
		return ledger.ListResult[entity.Item]{}, fmt.Errorf("list items: %w", err)
	}
	return ledger.ListResult[entity.Item]{Items: items, TotalCount: int64(len(items))}, nil
}
