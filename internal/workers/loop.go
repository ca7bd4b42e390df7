package workers

import (
	"context"
	"log/slog"
	"time"

	"github.com/thrillee/smppsim/internal/logging"
)

// WorkerFunc defines the function signature for work performed by a worker loop.
// It returns the number of items processed and any error encountered.
type WorkerFunc func(ctx context.Context) (int, error)

// runWorkerLoop runs a worker function on every tick until ctx is done.
func runWorkerLoop(ctx context.Context, name string, interval, timeout time.Duration, workerFunc WorkerFunc) {
	ctx = logging.ContextWithWorkerID(ctx, name)
	slog.InfoContext(ctx, "Worker starting", slog.Duration("interval", interval))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Worker stopping")
			return
		case <-ticker.C:
			runWork(ctx, timeout, workerFunc)
		}
	}
}

// runWork executes a single run of work under its own timeout.
func runWork(ctx context.Context, timeout time.Duration, workerFunc WorkerFunc) int {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	processedCount, err := workerFunc(runCtx)
	if err != nil {
		slog.ErrorContext(ctx, "Worker run failed", slog.Any("error", err))
	} else if processedCount > 0 {
		slog.InfoContext(ctx, "Worker processed items", slog.Int("count", processedCount))
	}
	return processedCount
}
