// Package connectivity watches the server and reports reachability changes.
package connectivity

import (
	"context"
	"sync"
	"time"

	appctx "stallpos/internal/core/context"
	"stallpos/pkg/logger"
)

// Pinger is anything that can cheaply check the server.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Sink receives connectivity. The sync engine implements it.
type Sink interface {
	SetOnline(online bool)
}

// Config holds prober configuration.
type Config struct {
	Interval time.Duration
	Timeout  time.Duration

	// FailureThreshold is how many consecutive failed pings mark the link offline.
	FailureThreshold int
}

// DefaultConfig returns prober defaults.
func DefaultConfig() Config {
	return Config{
		Interval:         5 * time.Second,
		Timeout:          3 * time.Second,
		FailureThreshold: 2,
	}
}

// Prober pings the server on a ticker and forwards transitions to the sink.
type Prober struct {
	cfg    Config
	pinger Pinger
	sink   Sink
	log    *logger.Logger

	mu       sync.Mutex
	failures int
	online   bool
	known    bool
}

func NewProber(cfg Config, pinger Pinger, sink Sink, log *logger.Logger) *Prober {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 1
	}
	return &Prober{cfg: cfg, pinger: pinger, sink: sink, log: log.WithComponent("connectivity")}
}

// Run probes immediately and then every Interval until ctx is done.
func (p *Prober) Run(ctx context.Context) {
	ctx = appctx.WithTrace(ctx, appctx.NewTraceContext("probe"))

	p.Probe(ctx)

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Probe(ctx)
		}
	}
}

// Probe performs one check and reports whether the server is considered reachable.
func (p *Prober) Probe(ctx context.Context) bool {
	pingCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	err := p.pinger.Ping(pingCtx)
	cancel()

	p.mu.Lock()
	prev, known := p.online, p.known
	if err == nil {
		p.failures = 0
		p.online = true
	} else {
		p.failures++
		if p.failures >= p.cfg.FailureThreshold || !p.known {
			p.online = false
		}
	}
	p.known = true
	now := p.online
	p.mu.Unlock()

	if err != nil {
		p.log.Debugw("ping failed", "error", err)
	}
	if !known || prev != now {
		p.sink.SetOnline(now)
	}
	return now
}
