package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"

	"stallpos/pkg/logger"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate applies the embedded schema files in name order. Every statement is
// idempotent, so running it on each start is safe.
func Migrate(ctx context.Context, txm *TxManager) error {
	names, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	sort.Strings(names)

	return txm.RunInTransaction(ctx, func(ctx context.Context) error {
		for _, name := range names {
			script, err := migrations.ReadFile(name)
			if err != nil {
				return fmt.Errorf("read %s: %w", name, err)
			}
			if _, err := txm.GetQuerier(ctx).Exec(ctx, string(script)); err != nil {
				return fmt.Errorf("apply %s: %w", name, err)
			}
			logger.Info(ctx, "migration applied", "file", name)
		}
		return nil
	})
}
