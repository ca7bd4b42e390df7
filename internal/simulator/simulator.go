package simulator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/thrillee/smppsim/internal/config"
)

// ErrUnknownConnection is returned for ids not in the registry.
var ErrUnknownConnection = errors.New("simulator: unknown connection")

// Simulator is the registry of configured connections.
type Simulator struct {
	deps Deps

	mu    sync.RWMutex
	conns map[int]*Connection
}

func New(deps Deps) *Simulator {
	return &Simulator{deps: deps, conns: make(map[int]*Connection)}
}

// Add registers a connection without starting it.
func (s *Simulator) Add(cfg config.ConnectionConfig) (*Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.conns[cfg.ID]; exists {
		return nil, fmt.Errorf("connection %d already registered", cfg.ID)
	}
	c, err := NewConnection(cfg, s.deps)
	if err != nil {
		return nil, err
	}
	s.conns[cfg.ID] = c
	return c, nil
}

// Start starts every registered connection and skips disabled ones.
func (s *Simulator) Start(ctx context.Context) error {
	var errs []error
	for _, c := range s.snapshot() {
		if c.cfg.Disabled {
			slog.InfoContext(ctx, "Connection disabled, not starting", slog.Int("conn_id", c.ID()))
			continue
		}
		if _, err := c.Start(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Replace tears the connection with cfg.ID down and starts a new one built
// from cfg.
func (s *Simulator) Replace(ctx context.Context, cfg config.ConnectionConfig) (*Connection, error) {
	next, err := NewConnection(cfg, s.deps)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	prev, ok := s.conns[cfg.ID]
	s.conns[cfg.ID] = next
	s.mu.Unlock()

	if ok {
		prev.Stop(ctx)
	}
	slog.InfoContext(ctx, "Connection replaced", slog.Int("conn_id", cfg.ID), slog.Bool("existed", ok))
	if cfg.Disabled {
		return next, nil
	}
	if _, err := next.Start(ctx); err != nil {
		return next, err
	}
	return next, nil
}

// Remove stops and forgets a connection.
func (s *Simulator) Remove(ctx context.Context, id int) bool {
	s.mu.Lock()
	c, ok := s.conns[id]
	delete(s.conns, id)
	s.mu.Unlock()
	if ok {
		c.Stop(ctx)
	}
	return ok
}

func (s *Simulator) Get(id int) (*Connection, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conns[id]
	return c, ok
}

// Send sends text on connection id.
func (s *Simulator) Send(ctx context.Context, id int, from, to, text string) (SendResult, error) {
	c, ok := s.Get(id)
	if !ok {
		return SendResult{}, fmt.Errorf("%w: %d", ErrUnknownConnection, id)
	}
	return c.SendText(ctx, from, to, text)
}

// Statuses lists every connection ordered by id.
func (s *Simulator) Statuses() []Status {
	conns := s.snapshot()
	out := make([]Status, 0, len(conns))
	for _, c := range conns {
		out = append(out, c.Status())
	}
	return out
}

// Shutdown stops every connection concurrently.
func (s *Simulator) Shutdown(ctx context.Context) {
	s.mu.Lock()
	conns := make([]*Connection, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.conns = make(map[int]*Connection)
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, c := range conns {
		wg.Add(1)
		go func(c *Connection) {
			defer wg.Done()
			c.Stop(ctx)
		}(c)
	}
	wg.Wait()
	slog.InfoContext(ctx, "Simulator shut down", slog.Int("connections", len(conns)))
}

func (s *Simulator) snapshot() []*Connection {
	s.mu.RLock()
	out := make([]*Connection, 0, len(s.conns))
	for _, c := range s.conns {
		out = append(out, c)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}
