package notification

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Listener receives events of type E.
type Listener[E any] interface {
	Notify(ctx context.Context, event E) error
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc[E any] func(ctx context.Context, event E) error

func (f ListenerFunc[E]) Notify(ctx context.Context, event E) error {
	return f(ctx, event)
}

// Dispatcher delivers events synchronously to every subscribed listener in
// subscription order. A listener that errors or panics is logged and the
// remaining listeners are still called.
type Dispatcher[E any] struct {
	mu        sync.RWMutex
	listeners []Listener[E]
}

func NewDispatcher[E any]() *Dispatcher[E] {
	return &Dispatcher[E]{}
}

// Subscribe adds a listener.
func (d *Dispatcher[E]) Subscribe(l Listener[E]) {
	d.mu.Lock()
	d.listeners = append(d.listeners, l)
	d.mu.Unlock()
}

// Notify calls every listener and returns how many failed.
func (d *Dispatcher[E]) Notify(ctx context.Context, event E) int {
	d.mu.RLock()
	listeners := make([]Listener[E], len(d.listeners))
	copy(listeners, d.listeners)
	d.mu.RUnlock()

	failed := 0
	for i, l := range listeners {
		if err := safeNotify(ctx, l, event); err != nil {
			failed++
			slog.WarnContext(ctx, "Event listener failed",
				slog.Int("listener", i), slog.String("event", fmt.Sprintf("%T", event)), slog.Any("error", err))
		}
	}
	return failed
}

func safeNotify[E any](ctx context.Context, l Listener[E], event E) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener panic: %v", r)
		}
	}()
	return l.Notify(ctx, event)
}
