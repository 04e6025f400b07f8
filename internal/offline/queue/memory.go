package queue

import (
	"context"
	"sync"
	"time"

	"stallpos/internal/core/id"
)

// MemoryQueue is a process-local queue used by tests and by agents running
// without a data file.
type MemoryQueue struct {
	mu   sync.Mutex
	seq  uint64
	ops  []*QueuedOperation
	byID map[string]*QueuedOperation
}

var _ Queue = (*MemoryQueue)(nil)

func NewMemory() *MemoryQueue {
	return &MemoryQueue{byID: make(map[string]*QueuedOperation)}
}

func (q *MemoryQueue) Enqueue(_ context.Context, op Operation) (string, error) {
	// round-trip through the codec so later mutation of op by the caller is not observed
	payload, err := Encode(op)
	if err != nil {
		return "", err
	}
	stored, err := Decode(op.Type(), op.Table(), payload)
	if err != nil {
		return "", err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.seq++
	e := &QueuedOperation{
		ID:        id.New(),
		Seq:       q.seq,
		Type:      op.Type(),
		Table:     op.Table(),
		Op:        stored,
		CreatedAt: time.Now().UTC(),
	}
	q.ops = append(q.ops, e)
	q.byID[e.ID] = e
	return e.ID, nil
}

func (q *MemoryQueue) ListPending(_ context.Context) ([]QueuedOperation, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]QueuedOperation, 0, len(q.ops))
	for _, e := range q.ops {
		if !e.Synced {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (q *MemoryQueue) MarkSynced(_ context.Context, opID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if e, ok := q.byID[opID]; ok {
		e.Synced = true
	}
	return nil
}

func (q *MemoryQueue) PurgeSynced(_ context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	kept := q.ops[:0]
	for _, e := range q.ops {
		if e.Synced {
			delete(q.byID, e.ID)
			continue
		}
		kept = append(kept, e)
	}
	q.ops = kept
	return nil
}

func (q *MemoryQueue) RecordFailure(_ context.Context, opID string, cause error) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.byID[opID]
	if !ok {
		return ErrNotFound
	}
	e.Attempts++
	if cause != nil {
		e.LastError = cause.Error()
	}
	return nil
}

func (q *MemoryQueue) Rewrite(_ context.Context, opID string, op Operation) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.byID[opID]
	if !ok {
		return ErrNotFound
	}
	e.Op = op
	return nil
}

func (q *MemoryQueue) PendingCount(_ context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, e := range q.ops {
		if !e.Synced {
			n++
		}
	}
	return n, nil
}
