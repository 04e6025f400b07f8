// Package tx lets domain services demarcate transactions without importing
// the storage driver.
package tx

import (
	"context"
)

// Manager runs fn inside a transaction. An error from fn rolls it back.
// Nested calls reuse the transaction already carried by ctx.
type Manager interface {
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// ReadOnlyManager also supports read-only transactions.
type ReadOnlyManager interface {
	Manager
	ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error
}

// Passthrough runs fn directly. It backs in-memory repositories in tests.
type Passthrough struct{}

func (Passthrough) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (Passthrough) ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
