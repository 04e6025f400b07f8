// Package pos is the point-of-sale facade the agent API calls. It validates
// input against the local ledger, then either writes through to the server
// (online) or records the change optimistically and queues it (offline).
package pos

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"stallpos/internal/core/apperror"
	"stallpos/internal/core/entity"
	"stallpos/internal/core/id"
	"stallpos/internal/domain/stock"
	"stallpos/internal/offline/eventstore"
	"stallpos/internal/offline/queue"
	"stallpos/internal/offline/remote"
	"stallpos/internal/offline/syncengine"
	"stallpos/pkg/logger"
)

// SyncEngine is the part of the sync engine the service relies on.
type SyncEngine interface {
	IsOnline() bool
	Status() syncengine.Status
	Subscribe(fn func(syncengine.Status)) func()
	ManualSync(ctx context.Context) error
	RefreshStatus(ctx context.Context) error
}

// Config holds service configuration.
type Config struct {
	// CallTimeout bounds write-through calls to the server.
	CallTimeout time.Duration
}

// Service implements the operations exposed to the point-of-sale UI.
type Service struct {
	cfg      Config
	store    eventstore.Store
	queue    queue.Queue
	remote   remote.Gateway
	engine   SyncEngine
	calc     *stock.Calculator
	validate *validator.Validate
	log      *logger.Logger
}

func NewService(cfg Config, store eventstore.Store, q queue.Queue, gw remote.Gateway, engine SyncEngine, calc *stock.Calculator, log *logger.Logger) *Service {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = syncengine.DefaultConfig().CallTimeout
	}
	if calc == nil {
		calc = &stock.Calculator{}
	}
	return &Service{
		cfg:      cfg,
		store:    store,
		queue:    q,
		remote:   gw,
		engine:   engine,
		calc:     calc,
		validate: newValidator(),
		log:      log.WithComponent("pos"),
	}
}

// --- Reads ---

// Inventory is the stock view for the central pool (StallID empty) or one stall.
type Inventory struct {
	StallID string                `json:"stall_id,omitempty"`
	Central []stock.ItemSnapshot  `json:"central,omitempty"`
	Stall   []stock.StallSnapshot `json:"stall,omitempty"`
}

// GetInventory recomputes stock from the local ledger on every call.
func (s *Service) GetInventory(ctx context.Context, stallID string) (Inventory, error) {
	items, ledger, err := s.loadLedger(ctx)
	if err != nil {
		return Inventory{}, err
	}

	inv := Inventory{StallID: stallID}
	for _, item := range items {
		if !item.Active {
			continue
		}
		if stallID == "" {
			inv.Central = append(inv.Central, s.calc.Snapshot(item, ledger))
			continue
		}
		if view, ok := s.calc.StallView(item, stallID, ledger); ok {
			inv.Stall = append(inv.Stall, view)
		}
	}
	return inv, nil
}

func (s *Service) loadLedger(ctx context.Context) ([]entity.Item, stock.Ledger, error) {
	var l stock.Ledger
	items, err := eventstore.All[entity.Item](ctx, s.store, entity.KindItems)
	if err != nil {
		return nil, l, apperror.NewStorage(err)
	}
	if l.Additions, err = eventstore.All[entity.StockAddition](ctx, s.store, entity.KindAdditions); err != nil {
		return nil, l, apperror.NewStorage(err)
	}
	if l.Distributions, err = eventstore.All[entity.StockDistribution](ctx, s.store, entity.KindDistributions); err != nil {
		return nil, l, apperror.NewStorage(err)
	}
	if l.Sales, err = eventstore.All[entity.Sale](ctx, s.store, entity.KindSales); err != nil {
		return nil, l, apperror.NewStorage(err)
	}
	if l.Withdrawals, err = eventstore.All[entity.Withdrawal](ctx, s.store, entity.KindWithdrawals); err != nil {
		return nil, l, apperror.NewStorage(err)
	}
	return items, l, nil
}

func (s *Service) getItem(ctx context.Context, itemID string) (entity.Item, error) {
	item, _, err := s.itemLedger(ctx, itemID)
	return item, err
}

// itemLedger returns the item and its own events. The local store answers
// when it holds the item; otherwise an online agent asks the server, which
// keeps writes working when the local store is unusable.
func (s *Service) itemLedger(ctx context.Context, itemID string) (entity.Item, stock.Ledger, error) {
	items, ledger, err := s.loadLedger(ctx)
	if err != nil {
		return entity.Item{}, stock.Ledger{}, err
	}
	for _, item := range items {
		if item.ID == itemID {
			return item, ledger.ForItem(itemID), nil
		}
	}
	if s.engine.IsOnline() {
		return s.fetchItem(ctx, itemID)
	}
	return entity.Item{}, stock.Ledger{}, apperror.NewNotFound("item", itemID)
}

func (s *Service) centralAvailable(item entity.Item, own stock.Ledger) int64 {
	return s.calc.CentralStock(item, own.Additions, own.Distributions, own.CentralSales(), own.Withdrawals)
}

// mirror copies server records into the local store. Failures are logged:
// the next refresh restores whatever is missing.
func (s *Service) mirror(ctx context.Context, recs ...entity.Record) {
	for _, r := range recs {
		if r.RecordID() == "" {
			continue
		}
		if err := s.store.Upsert(ctx, r); err != nil {
			s.log.WithContext(ctx).Warnw("mirror server record locally", "kind", r.RecordKind(), "id", r.RecordID(), "error", err)
			return
		}
	}
}

// --- Sync surface ---

func (s *Service) GetStatus() syncengine.Status {
	return s.engine.Status()
}

func (s *Service) Subscribe(fn func(syncengine.Status)) func() {
	return s.engine.Subscribe(fn)
}

func (s *Service) ManualSync(ctx context.Context) error {
	return s.engine.ManualSync(ctx)
}

// --- Write path ---

// submit applies op through the server when online, otherwise records local
// optimistically and queues op. Online failures propagate and nothing is queued.
func submit[T entity.Record](ctx context.Context, s *Service, op queue.Operation, local T, call func(ctx context.Context, key string) (T, error)) (T, error) {
	log := s.log.WithContext(ctx)

	if s.engine.IsOnline() {
		callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
		defer cancel()

		created, err := call(callCtx, id.New())
		if err != nil {
			if !apperror.IsAppError(err) {
				err = apperror.NewInternal(err)
			}
			return created, err
		}
		s.mirror(ctx, created)
		return created, nil
	}

	// the optimistic write goes first so an unusable store rejects the change
	// before anything is queued
	if err := syncengine.ApplyOptimistic(ctx, s.store, op); err != nil {
		if errors.Is(err, eventstore.ErrUnavailable) {
			return local, apperror.NewStorage(err)
		}
		log.Errorw("apply optimistic record", "type", op.Type(), "table", op.Table(), "error", err)
	}
	opID, err := s.queue.Enqueue(ctx, op)
	if err != nil {
		return local, apperror.NewStorage(fmt.Errorf("queue %s %s: %w", op.Type(), op.Table(), err))
	}
	if err := s.engine.RefreshStatus(ctx); err != nil {
		log.Warnw("refresh sync status", "error", err)
	}
	log.Infow("operation queued", "op_id", opID, "type", op.Type(), "table", op.Table())
	return local, nil
}

// CreateItem registers an item with zero lifecycle counters.
func (s *Service) CreateItem(ctx context.Context, in ItemInput) (entity.Item, error) {
	if err := check(s.validate, in); err != nil {
		return entity.Item{}, err
	}
	now := time.Now().UTC()
	item := entity.Item{
		ID:           id.NewTemp(),
		Name:         in.Name,
		Category:     in.Category,
		UnitPrice:    in.UnitPrice,
		BuyingPrice:  in.BuyingPrice,
		InitialStock: in.InitialStock,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := item.Validate(ctx); err != nil {
		return entity.Item{}, err
	}
	return submit(ctx, s, queue.CreateItem{Item: item}, item, func(ctx context.Context, key string) (entity.Item, error) {
		return s.remote.CreateItem(ctx, key, item)
	})
}

// UpdateItem changes mutable item fields. Initial stock is frozen once the
// item has been distributed.
func (s *Service) UpdateItem(ctx context.Context, itemID string, patch entity.ItemPatch) (entity.Item, error) {
	item, own, err := s.itemLedger(ctx, itemID)
	if err != nil {
		return entity.Item{}, err
	}
	hasDistributions := len(own.Distributions) > 0
	if err := patch.Apply(&item, hasDistributions); err != nil {
		return entity.Item{}, err
	}
	item.UpdatedAt = time.Now().UTC()

	return submit(ctx, s, queue.UpdateItem{ItemID: itemID, Patch: patch}, item, func(ctx context.Context, key string) (entity.Item, error) {
		return s.remote.UpdateItem(ctx, key, itemID, patch)
	})
}

// DeactivateItem hides an item from listings. Its history is kept.
func (s *Service) DeactivateItem(ctx context.Context, itemID string) error {
	item, err := s.getItem(ctx, itemID)
	if err != nil {
		return err
	}
	item.Active = false

	updated, err := submit(ctx, s, queue.DeleteItem{ItemID: itemID}, item, func(ctx context.Context, key string) (entity.Item, error) {
		if err := s.remote.DeactivateItem(ctx, key, itemID); err != nil {
			return entity.Item{}, err
		}
		return item, nil
	})
	if err != nil {
		return err
	}
	s.log.WithContext(ctx).Infow("item deactivated", "item_id", updated.ID)
	return nil
}

// AddStock receives units into the central pool.
func (s *Service) AddStock(ctx context.Context, in AdditionInput) (entity.StockAddition, error) {
	if err := check(s.validate, in); err != nil {
		return entity.StockAddition{}, err
	}
	if _, err := s.getItem(ctx, in.ItemID); err != nil {
		return entity.StockAddition{}, err
	}
	a := entity.StockAddition{
		ID:            id.NewTemp(),
		ItemID:        in.ItemID,
		QuantityAdded: in.Quantity,
		AddedBy:       in.AddedBy,
		CreatedAt:     time.Now().UTC(),
	}
	if err := a.Validate(ctx); err != nil {
		return entity.StockAddition{}, err
	}
	return submit(ctx, s, queue.CreateAddition{Addition: a}, a, func(ctx context.Context, key string) (entity.StockAddition, error) {
		return s.remote.CreateAddition(ctx, key, a)
	})
}

// RecordWithdrawal removes units from the central pool. It cannot take more
// than is currently there.
func (s *Service) RecordWithdrawal(ctx context.Context, in WithdrawalInput) (entity.Withdrawal, error) {
	if err := check(s.validate, in); err != nil {
		return entity.Withdrawal{}, err
	}
	item, own, err := s.itemLedger(ctx, in.ItemID)
	if err != nil {
		return entity.Withdrawal{}, err
	}
	if available := s.centralAvailable(item, own); in.Quantity > available {
		return entity.Withdrawal{}, apperror.NewInsufficientStock(item.ID, "", in.Quantity, available)
	}

	w := entity.Withdrawal{
		ID:                id.NewTemp(),
		ItemID:            in.ItemID,
		QuantityWithdrawn: in.Quantity,
		Reason:            in.Reason,
		CreatedAt:         time.Now().UTC(),
	}
	return submit(ctx, s, queue.CreateWithdrawal{Withdrawal: w}, w, func(ctx context.Context, key string) (entity.Withdrawal, error) {
		return s.remote.CreateWithdrawal(ctx, key, w)
	})
}
