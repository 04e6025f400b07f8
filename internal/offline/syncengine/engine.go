// Package syncengine drains the operation queue to the server and refreshes the
// local event store from it.
package syncengine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"

	"stallpos/internal/offline/eventstore"
	"stallpos/internal/offline/queue"
	"stallpos/internal/offline/remote"
	"stallpos/pkg/logger"
)

var tracer = otel.Tracer("stallpos/sync")

// Config holds sync engine configuration.
type Config struct {
	// Interval between periodic drains while online.
	Interval time.Duration

	// CallTimeout bounds every remote call.
	CallTimeout time.Duration

	// StallThreshold is the number of failed attempts after which an
	// operation is reported as stalled.
	StallThreshold int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Interval:       30 * time.Second,
		CallTimeout:    10 * time.Second,
		StallThreshold: 5,
	}
}

// Status is the observable state of the engine.
type Status struct {
	IsOnline          bool       `json:"isOnline"`
	IsSyncing         bool       `json:"isSyncing"`
	LastSyncTime      *time.Time `json:"lastSyncTime"`
	PendingOperations int        `json:"pendingOperations"`
	StalledOperations int        `json:"stalledOperations"`
}

// Engine is the only writer that marks queued operations synced and the only
// component that replaces event store contents with server data.
type Engine struct {
	cfg    Config
	store  eventstore.Store
	queue  queue.Queue
	remote remote.Gateway
	log    *logger.Logger

	mu       sync.Mutex
	online   bool
	syncing  bool
	lastSync time.Time
	pending  int
	stalled  int
	subs     map[int]func(Status)
	nextSub  int

	kick    chan struct{}
	stop    context.CancelFunc
	stopped chan struct{}
}

// New creates an engine. It starts offline; call SetOnline once connectivity is known.
func New(cfg Config, store eventstore.Store, q queue.Queue, gw remote.Gateway, log *logger.Logger) *Engine {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = def.CallTimeout
	}
	if cfg.StallThreshold <= 0 {
		cfg.StallThreshold = def.StallThreshold
	}
	return &Engine{
		cfg:    cfg,
		store:  store,
		queue:  q,
		remote: gw,
		log:    log.WithComponent("sync"),
		subs:   make(map[int]func(Status)),
		kick:   make(chan struct{}, 1),
	}
}

// Status returns the current state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.statusLocked()
}

func (e *Engine) statusLocked() Status {
	s := Status{
		IsOnline:          e.online,
		IsSyncing:         e.syncing,
		PendingOperations: e.pending,
		StalledOperations: e.stalled,
	}
	if !e.lastSync.IsZero() {
		t := e.lastSync
		s.LastSyncTime = &t
	}
	return s
}

// IsOnline reports the last known connectivity.
func (e *Engine) IsOnline() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.online
}

// Subscribe registers fn for status changes and immediately delivers the
// current status. The returned func unsubscribes.
func (e *Engine) Subscribe(fn func(Status)) func() {
	e.mu.Lock()
	key := e.nextSub
	e.nextSub++
	e.subs[key] = fn
	current := e.statusLocked()
	e.mu.Unlock()

	fn(current)

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.subs, key)
			e.mu.Unlock()
		})
	}
}

func (e *Engine) broadcast() {
	e.mu.Lock()
	s := e.statusLocked()
	fns := make([]func(Status), 0, len(e.subs))
	for _, fn := range e.subs {
		fns = append(fns, fn)
	}
	e.mu.Unlock()

	for _, fn := range fns {
		fn(s)
	}
}

// SetOnline records connectivity. A transition to online requests a sync.
func (e *Engine) SetOnline(online bool) {
	e.mu.Lock()
	changed := e.online != online
	e.online = online
	e.mu.Unlock()

	if !changed {
		return
	}
	e.log.Infow("connectivity changed", "online", online)
	e.broadcast()
	if online {
		e.requestSync()
	}
}

func (e *Engine) requestSync() {
	select {
	case e.kick <- struct{}{}:
	default:
	}
}

// RefreshStatus recounts pending and stalled operations and notifies
// subscribers. Callers that enqueue work use it.
func (e *Engine) RefreshStatus(ctx context.Context) error {
	pending, err := e.queue.ListPending(ctx)
	if err != nil {
		return fmt.Errorf("count pending operations: %w", err)
	}
	stalled := 0
	for _, op := range pending {
		if op.Attempts >= e.cfg.StallThreshold {
			stalled++
		}
	}

	e.mu.Lock()
	e.pending = len(pending)
	e.stalled = stalled
	e.mu.Unlock()

	e.broadcast()
	return nil
}

// Start loads persisted state and runs the periodic loop until Shutdown.
func (e *Engine) Start(ctx context.Context) error {
	last, err := e.store.LastSync(ctx)
	if err != nil {
		return fmt.Errorf("load last sync time: %w", err)
	}
	e.mu.Lock()
	e.lastSync = last
	e.mu.Unlock()

	if err := e.RefreshStatus(ctx); err != nil {
		return err
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	e.stop = cancel
	e.stopped = make(chan struct{})
	go e.run(loopCtx)

	e.log.Infow("sync engine started", "interval", e.cfg.Interval)
	return nil
}

func (e *Engine) run(ctx context.Context) {
	defer close(e.stopped)

	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.kick:
			e.runSync(ctx)
		case <-ticker.C:
			s := e.Status()
			if s.IsOnline && !s.IsSyncing && s.PendingOperations > 0 {
				e.runSync(ctx)
			}
		}
	}
}

func (e *Engine) runSync(ctx context.Context) {
	if err := e.Sync(ctx); err != nil {
		e.log.Errorw("sync failed", "error", err)
	}
}

// Shutdown stops the periodic loop and waits for an in-flight sync to finish.
func (e *Engine) Shutdown(ctx context.Context) error {
	if e.stop == nil {
		return nil
	}
	e.stop()
	select {
	case <-e.stopped:
		e.log.Info("sync engine stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
