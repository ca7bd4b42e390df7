// Package simulator wires one Manager and Monitor per configured endpoint,
// handles inbound traffic and keeps the registry of running connections.
package simulator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/thrillee/smppsim/internal/charset"
	"github.com/thrillee/smppsim/internal/concat"
	"github.com/thrillee/smppsim/internal/config"
	"github.com/thrillee/smppsim/internal/connection"
	"github.com/thrillee/smppsim/internal/logging"
	"github.com/thrillee/smppsim/internal/monitor"
	"github.com/thrillee/smppsim/internal/notification"
	"github.com/thrillee/smppsim/internal/reassembly"
	"github.com/thrillee/smppsim/internal/smpp"
	"github.com/thrillee/smppsim/internal/store"
	"github.com/thrillee/smppsim/pkg/codes"
	"github.com/thrillee/smppsim/pkg/segmenter"
)

// ErrReceiveOnly is returned when sending on a receiver bind.
var ErrReceiveOnly = errors.New("simulator: connection is bound as receiver")

// Deps are the collaborators shared by every connection.
type Deps struct {
	Store     store.Store
	Engine    *reassembly.Engine
	Detector  *charset.Detector
	Segmenter segmenter.Segmenter
	Dialer    connection.Dialer
}

// Status is the externally visible state of one connection.
type Status struct {
	ID           int       `json:"id"`
	Name         string    `json:"name"`
	Role         string    `json:"role"`
	BindOption   string    `json:"bind_option"`
	Addr         string    `json:"addr"`
	State        string    `json:"state"`
	Monitor      string    `json:"monitor"`
	LastActivity time.Time `json:"last_activity"`
}

var _ notification.Listener[connection.Event] = (*Connection)(nil)

// Connection is the facade for one configured endpoint.
type Connection struct {
	cfg        config.ConnectionConfig
	mgr        connection.Manager
	mon        *monitor.Monitor
	classifier *concat.Classifier
	deps       Deps
	logCtx     context.Context

	lifetime context.Context
	cancel   context.CancelFunc
	pool     errgroup.Group
	receipts sync.WaitGroup
	refSeq   atomic.Uint32
	stopping atomic.Bool
	stopOnce sync.Once
}

// NewConnection builds the manager and monitor for cfg without starting them.
func NewConnection(cfg config.ConnectionConfig, deps Deps) (*Connection, error) {
	if deps.Store == nil || deps.Engine == nil || deps.Detector == nil {
		return nil, errors.New("simulator: store, engine and detector are required")
	}
	if deps.Segmenter == nil {
		deps.Segmenter = segmenter.NewDefaultSegmenter()
	}
	cfg.ApplyDefaults()

	lifetime, cancel := context.WithCancel(context.Background())
	c := &Connection{
		cfg:        cfg,
		classifier: concat.NewClassifier(deps.Detector, concat.WithConnection(cfg.ID)),
		deps:       deps,
		logCtx:     logging.ContextWithSystemID(logging.ContextWithConnID(context.Background(), cfg.ID), cfg.SystemID),
		lifetime:   lifetime,
		cancel:     cancel,
	}
	c.pool.SetLimit(cfg.WorkerPoolSize)

	mgr, err := connection.New(cfg, connection.Options{
		Handler:   c.handleInbound,
		Dialer:    deps.Dialer,
		Listeners: []notification.Listener[connection.Event]{c, notification.NewLogListener[connection.Event]()},
	})
	if err != nil {
		cancel()
		return nil, err
	}
	c.mgr = mgr
	c.mon = monitor.New(mgr, cfg.EnquireLink, c.onProbeFailure)
	return c, nil
}

func (c *Connection) ID() int { return c.cfg.ID }

func (c *Connection) Config() config.ConnectionConfig { return c.cfg }

// Manager exposes the underlying session manager.
func (c *Connection) Manager() connection.Manager { return c.mgr }

// ListenAddr is the SMSC listener address once started.
func (c *Connection) ListenAddr() (net.Addr, bool) {
	return connection.ListenAddr(c.mgr)
}

// Start launches the monitor and the first bind.
func (c *Connection) Start(ctx context.Context) (connection.StartStatus, error) {
	c.mon.Start(c.logCtx)
	status, err := c.mgr.StartConnection(ctx)
	if err != nil {
		return status, fmt.Errorf("start connection %d: %w", c.cfg.ID, err)
	}
	slog.InfoContext(c.logCtx, "Connection started", slog.String("status", status.String()))
	return status, nil
}

// Stop shuts the monitor and the manager down and waits for in-flight work.
func (c *Connection) Stop(ctx context.Context) {
	c.stopOnce.Do(func() {
		c.stopping.Store(true)
		c.mon.ShutDownMonitor()
		c.mgr.ShutDown(ctx)
		c.cancel()
		if err := c.pool.Wait(); err != nil {
			slog.WarnContext(c.logCtx, "Worker pool finished with error", slog.Any("error", err))
		}
		c.receipts.Wait()
		slog.InfoContext(c.logCtx, "Connection stopped")
	})
}

func (c *Connection) Status() Status {
	return Status{
		ID:           c.cfg.ID,
		Name:         c.cfg.Name,
		Role:         string(c.cfg.Role),
		BindOption:   string(c.cfg.BindOption),
		Addr:         c.cfg.Addr(),
		State:        c.mgr.State(),
		Monitor:      c.mon.State(),
		LastActivity: c.mgr.LastActivity(),
	}
}

// Notify reacts to manager events: a successful bind starts the monitor,
// a lost session pauses it and starts binding again.
func (c *Connection) Notify(ctx context.Context, ev connection.Event) error {
	switch e := ev.(type) {
	case connection.EventStarted:
		if e.Success {
			c.mon.Wakeup()
		}
	case connection.EventClosed:
		c.mon.Pause()
		if e.Reconnect() && !c.stopping.Load() {
			if _, err := c.mgr.StartConnection(ctx); err != nil {
				return fmt.Errorf("restart after %s: %w", e.Reason, err)
			}
		}
	}
	return nil
}

// onProbeFailure forces the session closed and binds again.
func (c *Connection) onProbeFailure(ctx context.Context, err error) {
	if c.stopping.Load() {
		return
	}
	slog.WarnContext(ctx, "Keep-alive failed, reconnecting", slog.Any("error", err))
	if cerr := c.mgr.CloseConnection(ctx); cerr != nil {
		slog.WarnContext(ctx, "Close after probe failure", slog.Any("error", cerr))
	}
	if c.stopping.Load() {
		return
	}
	if _, serr := c.mgr.StartConnection(ctx); serr != nil {
		slog.ErrorContext(ctx, "Restart after probe failure", slog.Any("error", serr))
	}
}

// handleInbound runs on the session reader and hands the PDU to the worker
// pool, blocking while the pool is full.
func (c *Connection) handleInbound(ctx context.Context, f smpp.Frame) {
	c.pool.Go(func() error {
		c.process(ctx, f)
		return nil
	})
}

// declared picks the encoding hint for a data_coding value. The default
// alphabet defers to the configured encoding when there is one.
func (c *Connection) declared(dcs byte) charset.Encoding {
	if dcs == smpp.DataCodingDefault {
		if e, ok := c.cfg.DeclaredEncoding(); ok {
			return e
		}
	}
	return charset.FromDataCoding(dcs)
}

func (c *Connection) process(ctx context.Context, f smpp.Frame) {
	m, err := smpp.ParseMessage(f)
	if err != nil {
		slog.WarnContext(ctx, "Malformed message PDU", slog.Any("error", err))
		c.respond(ctx, smpp.MessageResponse(f, smpp.StatusInvMsgLen, ""))
		return
	}
	if m.IsReceipt() {
		c.processReceipt(ctx, m)
		c.respond(ctx, smpp.MessageResponse(f, smpp.StatusOk, ""))
		return
	}

	declared := c.declared(m.DataCoding)
	desc, err := c.classifier.Classify(m, declared)
	if err != nil {
		slog.WarnContext(ctx, "Dropping segment", slog.Any("error", err))
		c.respond(ctx, smpp.MessageResponse(f, smpp.StatusInvMsgLen, ""))
		return
	}

	msgID := uuid.NewString()
	ctx = logging.ContextWithMessageID(ctx, msgID)
	out, err := c.deps.Engine.Add(ctx, reassembly.Segment{
		ConnectionID: c.cfg.ID,
		MessageID:    msgID,
		Direction:    codes.DirectionIn,
		Descriptor:   desc,
		From:         m.Source.Addr,
		To:           m.Destination.Addr,
		Declared:     declared,
		DataCoding:   m.DataCoding,
		ReceivedAt:   time.Now(),
	})
	if err != nil {
		slog.WarnContext(ctx, "Dropping segment", slog.Any("error", err))
		c.respond(ctx, smpp.MessageResponse(f, smpp.StatusInvMsgLen, ""))
		return
	}
	slog.DebugContext(ctx, "Message accepted",
		slog.String("scheme", string(desc.Scheme)), slog.String("result", out.Result.String()))

	c.respond(ctx, smpp.MessageResponse(f, smpp.StatusOk, msgID))

	if c.wantsReceipt(m) {
		c.scheduleReceipt(msgID, m, out.Record.Text)
	}
}

func (c *Connection) respond(ctx context.Context, f smpp.Frame) {
	if err := c.mgr.Respond(ctx, f); err != nil {
		slog.WarnContext(ctx, "Response not sent", slog.Any("error", err))
	}
}
