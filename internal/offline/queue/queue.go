package queue

import (
	"context"
	"errors"
	"time"

	"stallpos/internal/core/entity"
)

// ErrNotFound is returned when an operation id is unknown to the queue.
var ErrNotFound = errors.New("queued operation not found")

// QueuedOperation is one entry of the queue.
type QueuedOperation struct {
	ID        string
	Seq       uint64
	Type      OpType
	Table     entity.Kind
	Op        Operation
	CreatedAt time.Time
	Synced    bool
	Attempts  int
	LastError string
}

// Queue persists pending operations. Only the sync engine marks operations synced.
type Queue interface {
	// Enqueue appends op and returns its id.
	Enqueue(ctx context.Context, op Operation) (string, error)

	// ListPending returns unsynced operations in enqueue order.
	ListPending(ctx context.Context) ([]QueuedOperation, error)

	// MarkSynced flags an operation as delivered. Marking twice is a no-op.
	MarkSynced(ctx context.Context, id string) error

	// PurgeSynced removes every synced operation.
	PurgeSynced(ctx context.Context) error

	// RecordFailure increments the attempt counter and keeps the last error.
	RecordFailure(ctx context.Context, id string, cause error) error

	// Rewrite replaces the payload of a pending operation, keeping its id and position.
	Rewrite(ctx context.Context, id string, op Operation) error

	PendingCount(ctx context.Context) (int, error)
}
