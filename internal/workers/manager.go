package workers

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const defaultRunTimeout = time.Minute

// Reaper converts stale in-flight assemblies into best-effort messages.
type Reaper interface {
	ReapStale(ctx context.Context) int
}

// Evicter drops expired store entries.
type Evicter interface {
	Evict() int
}

// Config holds worker intervals.
type Config struct {
	ReapInterval  time.Duration
	EvictInterval time.Duration
	RunTimeout    time.Duration
}

// Manager orchestrates the background worker loops.
type Manager struct {
	cfg Config
	wg  sync.WaitGroup
}

func NewManager(cfg Config) *Manager {
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = defaultRunTimeout
	}
	return &Manager{cfg: cfg}
}

// StartReaper launches the stale-assembly reaper loop.
func (m *Manager) StartReaper(ctx context.Context, r Reaper) {
	if m.cfg.ReapInterval <= 0 {
		slog.WarnContext(ctx, "Reaper disabled, no interval configured")
		return
	}
	m.start(ctx, "reassembly-reaper", m.cfg.ReapInterval, func(ctx context.Context) (int, error) {
		return r.ReapStale(ctx), nil
	})
}

// StartEvicter launches the store eviction loop.
func (m *Manager) StartEvicter(ctx context.Context, e Evicter) {
	if m.cfg.EvictInterval <= 0 {
		return
	}
	m.start(ctx, "store-evicter", m.cfg.EvictInterval, func(context.Context) (int, error) {
		return e.Evict(), nil
	})
}

func (m *Manager) start(ctx context.Context, name string, interval time.Duration, fn WorkerFunc) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		runWorkerLoop(ctx, name, interval, m.cfg.RunTimeout, fn)
	}()
}

// Wait blocks until every loop has returned after its context ended.
func (m *Manager) Wait() {
	m.wg.Wait()
}
