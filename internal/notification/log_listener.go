package notification

import (
	"context"
	"log/slog"
)

// LogListener logs every event it receives.
type LogListener[E any] struct {
	Level slog.Level
}

func NewLogListener[E any]() *LogListener[E] {
	return &LogListener[E]{Level: slog.LevelInfo}
}

func (n *LogListener[E]) Notify(ctx context.Context, event E) error {
	slog.Log(ctx, n.Level, "Event", slog.Any("event", event))
	return nil
}

var _ Listener[string] = (*LogListener[string])(nil)
