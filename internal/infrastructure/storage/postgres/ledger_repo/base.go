// Package ledger_repo provides the PostgreSQL repositories of the ledger.
package ledger_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stallpos/internal/domain/ledger"
	"stallpos/internal/infrastructure/storage/postgres"
)

func builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

// table is the row-level plumbing shared by the repositories. R is the
// db-tagged row type.
type table[R any] struct {
	txm  *postgres.TxManager
	name string
	cols []string

	// hasStall enables the stall_id filter.
	hasStall bool
}

func newTable[R any](txm *postgres.TxManager, name string, hasStall bool) table[R] {
	return table[R]{txm: txm, name: name, cols: postgres.Columns[R](), hasStall: hasStall}
}

func (t table[R]) insert(ctx context.Context, row *R) error {
	sql, args, err := builder().Insert(t.name).SetMap(postgres.StructToMap(row)).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := t.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert %s: %w", t.name, err)
	}
	return nil
}

func (t table[R]) where(q squirrel.SelectBuilder, f ledger.ListFilter) squirrel.SelectBuilder {
	if f.ItemID != "" {
		q = q.Where(squirrel.Eq{"item_id": f.ItemID})
	}
	if f.StallID != "" && t.hasStall {
		q = q.Where(squirrel.Eq{"stall_id": f.StallID})
	}
	return q
}

// list returns one page in creation order and the unpaged count.
func (t table[R]) list(ctx context.Context, f ledger.ListFilter) ([]R, int64, error) {
	q := t.where(builder().Select(t.cols...).From(t.name), f).OrderBy("created_at", "id")
	if f.Limit > 0 {
		q = q.Limit(uint64(f.Limit))
	}
	if f.Offset > 0 {
		q = q.Offset(uint64(f.Offset))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build list: %w", err)
	}
	querier := t.txm.GetQuerier(ctx)
	rows := make([]R, 0)
	if err := pgxscan.Select(ctx, querier, &rows, sql, args...); err != nil {
		return nil, 0, fmt.Errorf("list %s: %w", t.name, err)
	}

	total := int64(len(rows))
	if f.Limit > 0 || f.Offset > 0 {
		sql, args, err := t.where(builder().Select("COUNT(*)").From(t.name), f).ToSql()
		if err != nil {
			return nil, 0, fmt.Errorf("build count: %w", err)
		}
		if err := querier.QueryRow(ctx, sql, args...).Scan(&total); err != nil {
			return nil, 0, fmt.Errorf("count %s: %w", t.name, err)
		}
	}
	return rows, total, nil
}
