// Package monitor implements the per-connection keep-alive watchdog.
package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/thrillee/smppsim/pkg/codes"
)

const (
	DefaultIdleWindow = 60 * time.Second
	MinIdleWindow     = time.Second
)

// Prober is the liveness check the monitor drives.
type Prober interface {
	EnquireLink(ctx context.Context) error
	LastActivity() time.Time
}

// FailureFunc is told about a failed probe once per playing to paused transition.
type FailureFunc func(ctx context.Context, err error)

// Monitor sends a probe whenever the link has been idle for the idle window.
// All state lives under mu together with the channel the run loop waits on,
// so a state change made while the loop sleeps always wakes it.
type Monitor struct {
	prober    Prober
	idle      time.Duration
	onFailure FailureFunc
	now       func() time.Time

	mu        sync.Mutex
	state     string
	changed   chan struct{}
	lastProbe time.Time

	startOnce sync.Once
	done      chan struct{}
}

// New creates a paused monitor. idle below one second is raised to one second;
// zero means the default.
func New(p Prober, idle time.Duration, onFailure FailureFunc) *Monitor {
	if idle == 0 {
		idle = DefaultIdleWindow
	}
	if idle < MinIdleWindow {
		idle = MinIdleWindow
	}
	return &Monitor{
		prober:    p,
		idle:      idle,
		onFailure: onFailure,
		now:       time.Now,
		state:     codes.MonitorPaused,
		changed:   make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start launches the run loop. Later calls are no-ops.
func (m *Monitor) Start(ctx context.Context) {
	m.startOnce.Do(func() {
		go m.run(ctx)
	})
}

// Done is closed when the run loop has exited.
func (m *Monitor) Done() <-chan struct{} {
	return m.done
}

func (m *Monitor) State() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Wakeup moves paused to playing. It reports whether the state changed.
func (m *Monitor) Wakeup() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != codes.MonitorPaused {
		return false
	}
	m.setLocked(codes.MonitorPlaying)
	return true
}

// Pause stops probing until the next Wakeup. It fails only once stopped.
func (m *Monitor) Pause() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.state {
	case codes.MonitorStopped:
		return false
	case codes.MonitorPlaying:
		m.setLocked(codes.MonitorPaused)
	}
	return true
}

// ShutDownMonitor stops the monitor for good and wakes the run loop.
func (m *Monitor) ShutDownMonitor() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != codes.MonitorStopped {
		m.setLocked(codes.MonitorStopped)
	}
}

// setLocked must be called with mu held.
func (m *Monitor) setLocked(state string) {
	m.state = state
	close(m.changed)
	m.changed = make(chan struct{})
}

func (m *Monitor) snapshot() (string, chan struct{}, time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, m.changed, m.lastProbe
}

func (m *Monitor) run(ctx context.Context) {
	defer close(m.done)
	slog.DebugContext(ctx, "Keep-alive monitor started", slog.Duration("idle_window", m.idle))

	for {
		state, changed, lastProbe := m.snapshot()
		switch state {
		case codes.MonitorStopped:
			slog.DebugContext(ctx, "Keep-alive monitor stopped")
			return
		case codes.MonitorPaused:
			select {
			case <-changed:
			case <-ctx.Done():
				return
			}
			continue
		}

		last := m.prober.LastActivity()
		if lastProbe.After(last) {
			last = lastProbe
		}
		if idle := m.now().Sub(last); idle < m.idle {
			timer := time.NewTimer(m.idle - idle)
			select {
			case <-changed:
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return
			}
			timer.Stop()
			continue
		}

		err := m.prober.EnquireLink(ctx)

		m.mu.Lock()
		m.lastProbe = m.now()
		failed := err != nil && m.state == codes.MonitorPlaying && m.changed == changed
		if failed {
			m.setLocked(codes.MonitorPaused)
		}
		m.mu.Unlock()

		if failed {
			slog.WarnContext(ctx, "Keep-alive probe failed, pausing monitor", slog.Any("error", err))
			if m.onFailure != nil {
				m.onFailure(ctx, err)
			}
		}
	}
}
