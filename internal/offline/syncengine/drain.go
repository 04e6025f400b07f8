package syncengine

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	appctx "stallpos/internal/core/context"
	"stallpos/internal/core/entity"
	"stallpos/internal/core/id"
	"stallpos/internal/offline/eventstore"
	"stallpos/internal/offline/queue"
	"stallpos/internal/offline/remote"
)

// Sync drains pending operations, then refreshes the local store from the
// server. It is a no-op when offline or when a sync is already running.
// Remote failures are recorded on the operations and never returned; local
// storage failures are.
func (e *Engine) Sync(ctx context.Context) error {
	e.mu.Lock()
	if !e.online || e.syncing {
		e.mu.Unlock()
		return nil
	}
	e.syncing = true
	e.mu.Unlock()
	e.broadcast()

	defer func() {
		e.mu.Lock()
		e.syncing = false
		e.mu.Unlock()
		if err := e.RefreshStatus(context.WithoutCancel(ctx)); err != nil {
			e.log.Errorw("refresh sync status", "error", err)
		}
	}()

	ctx = appctx.WithTrace(ctx, appctx.NewTraceContext("sync"))
	ctx, span := tracer.Start(ctx, "sync.run")
	defer span.End()

	reachable, err := e.drain(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "drain failed")
		return err
	}
	if err := e.queue.PurgeSynced(ctx); err != nil {
		return fmt.Errorf("purge synced operations: %w", err)
	}
	if !reachable {
		return nil
	}

	refreshed, err := e.refresh(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "refresh failed")
		return err
	}
	if !refreshed {
		return nil
	}

	now := time.Now().UTC()
	if err := e.store.SetLastSync(ctx, now); err != nil {
		return fmt.Errorf("save last sync time: %w", err)
	}
	e.mu.Lock()
	e.lastSync = now
	e.mu.Unlock()
	return nil
}

// ManualSync is Sync triggered by the operator.
func (e *Engine) ManualSync(ctx context.Context) error {
	return e.Sync(ctx)
}

// drain sends pending operations in enqueue order. A failed operation is
// recorded and skipped. It reports false when a ping confirmed the server
// went down part way.
func (e *Engine) drain(ctx context.Context) (bool, error) {
	ctx, span := tracer.Start(ctx, "sync.drain")
	defer span.End()
	log := e.log.WithContext(ctx)

	pending, err := e.queue.ListPending(ctx)
	if err != nil {
		return false, fmt.Errorf("list pending operations: %w", err)
	}
	span.SetAttributes(attribute.Int("sync.pending", len(pending)))

	delivered := 0
	for i := range pending {
		qo := pending[i]

		if blockedBy := unresolved(qo.Op); blockedBy != "" {
			log.Debugw("operation waits for an unsynced record", "op_id", qo.ID, "ref", blockedBy)
			continue
		}

		created, err := e.dispatch(ctx, qo)
		if err != nil {
			if ferr := e.queue.RecordFailure(ctx, qo.ID, err); ferr != nil {
				return false, fmt.Errorf("record failure of %s: %w", qo.ID, ferr)
			}
			attempts := qo.Attempts + 1
			fields := []any{"op_id", qo.ID, "type", qo.Type, "table", qo.Table, "attempts", attempts, "error", err}
			if attempts >= e.cfg.StallThreshold {
				log.Errorw("operation stalled", fields...)
			} else {
				log.Warnw("operation failed", fields...)
			}
			// a timeout or lost reply fails this operation only; the batch
			// stops when the server itself no longer answers
			if remote.IsUnreachable(err) && !e.serverUp(ctx) {
				log.Infow("server down, drain paused", "remaining", len(pending)-i-1)
				return false, nil
			}
			continue
		}

		if err := e.queue.MarkSynced(ctx, qo.ID); err != nil {
			return false, fmt.Errorf("mark %s synced: %w", qo.ID, err)
		}
		delivered++

		if created != nil && created.RecordID() != "" {
			if err := e.adopt(ctx, qo.Op, created, pending[i+1:]); err != nil {
				return false, err
			}
		}
	}

	span.SetAttributes(attribute.Int("sync.delivered", delivered))
	return true, nil
}

// serverUp pings the server after a transport failure.
func (e *Engine) serverUp(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()
	return e.remote.Ping(ctx) == nil
}

// unresolved returns the first temporary id op still depends on.
func unresolved(op queue.Operation) string {
	for _, ref := range queue.References(op) {
		if id.IsTemp(ref) {
			return ref
		}
	}
	return ""
}

// dispatch sends one operation. It returns the server copy of the affected
// record when the server sent one.
func (e *Engine) dispatch(ctx context.Context, qo queue.QueuedOperation) (entity.Record, error) {
	ctx, span := tracer.Start(ctx, "sync.dispatch", trace.WithAttributes(
		attribute.String("op.id", qo.ID),
		attribute.String("op.type", string(qo.Type)),
		attribute.String("op.table", string(qo.Table)),
	))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()

	var (
		rec entity.Record
		err error
	)
	key := qo.ID
	switch op := qo.Op.(type) {
	case queue.CreateItem:
		rec, err = e.remote.CreateItem(ctx, key, op.Item)
	case queue.UpdateItem:
		rec, err = e.remote.UpdateItem(ctx, key, op.ItemID, op.Patch)
	case queue.DeleteItem:
		err = e.remote.DeactivateItem(ctx, key, op.ItemID)
	case queue.CreateSale:
		rec, err = e.remote.CreateSale(ctx, key, op.Sale)
	case queue.UpdateSale:
		rec, err = e.remote.UpdateSale(ctx, key, op.SaleID, op.Payment)
	case queue.CreateDistribution:
		rec, err = e.remote.CreateDistribution(ctx, key, op.Distribution)
	case queue.CreateAddition:
		rec, err = e.remote.CreateAddition(ctx, key, op.Addition)
	case queue.CreateWithdrawal:
		rec, err = e.remote.CreateWithdrawal(ctx, key, op.Withdrawal)
	default:
		err = fmt.Errorf("unsupported operation %T", qo.Op)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "dispatch failed")
		return nil, err
	}
	return rec, nil
}

// adopt replaces the optimistic record with the server copy and points later
// operations at the server id.
func (e *Engine) adopt(ctx context.Context, op queue.Operation, server entity.Record, later []queue.QueuedOperation) error {
	if local, ok := queue.Created(op); ok && local.RecordID() != server.RecordID() {
		kind := local.RecordKind()
		if err := e.store.Delete(ctx, kind, local.RecordID()); err != nil {
			return fmt.Errorf("drop optimistic %s %s: %w", kind, local.RecordID(), err)
		}
		for j := range later {
			next, changed := queue.Remap(later[j].Op, kind, local.RecordID(), server.RecordID())
			if !changed {
				continue
			}
			if err := e.queue.Rewrite(ctx, later[j].ID, next); err != nil {
				return fmt.Errorf("remap %s: %w", later[j].ID, err)
			}
			later[j].Op = next
		}
		e.log.Debugw("temporary id replaced", "kind", kind, "temp_id", local.RecordID(), "id", server.RecordID())
	}
	if err := e.store.Upsert(ctx, server); err != nil {
		return fmt.Errorf("store server %s %s: %w", server.RecordKind(), server.RecordID(), err)
	}
	return nil
}

// refresh replaces every kind with the server snapshot, then lays the
// optimistic effects of still pending operations back on top.
func (e *Engine) refresh(ctx context.Context) (bool, error) {
	ctx, span := tracer.Start(ctx, "sync.refresh")
	defer span.End()

	fetchCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout*time.Duration(len(entity.Kinds())))
	snapshot, err := remote.Snapshot(fetchCtx, e.remote)
	cancel()
	if err != nil {
		e.log.Warnw("refresh from server failed", "error", err)
		span.RecordError(err)
		return false, nil
	}

	for _, kind := range entity.Kinds() {
		if err := e.store.Replace(ctx, kind, snapshot[kind]); err != nil {
			return false, fmt.Errorf("replace %s: %w", kind, err)
		}
	}

	pending, err := e.queue.ListPending(ctx)
	if err != nil {
		return false, fmt.Errorf("list pending operations: %w", err)
	}
	for _, qo := range pending {
		if err := ApplyOptimistic(ctx, e.store, qo.Op); err != nil {
			return false, err
		}
	}
	return true, nil
}

// ApplyOptimistic writes the local effect of op into store so it is visible
// before the server has confirmed it.
func ApplyOptimistic(ctx context.Context, store eventstore.Store, op queue.Operation) error {
	if rec, ok := queue.Created(op); ok {
		return store.Upsert(ctx, rec)
	}

	switch o := op.(type) {
	case queue.UpdateItem:
		item, ok, err := eventstore.Get[entity.Item](ctx, store, entity.KindItems, o.ItemID)
		if err != nil || !ok {
			return err
		}
		// the server enforces the frozen initial stock when the patch syncs
		if o.Patch.Apply(&item, false) == nil {
			return store.Upsert(ctx, item)
		}
	case queue.DeleteItem:
		item, ok, err := eventstore.Get[entity.Item](ctx, store, entity.KindItems, o.ItemID)
		if err != nil || !ok {
			return err
		}
		item.Active = false
		return store.Upsert(ctx, item)
	case queue.UpdateSale:
		sale, ok, err := eventstore.Get[entity.Sale](ctx, store, entity.KindSales, o.SaleID)
		if err != nil || !ok {
			return err
		}
		if sale.ApplyPayment(o.Payment) == nil {
			return store.Upsert(ctx, sale)
		}
	}
	return nil
}
