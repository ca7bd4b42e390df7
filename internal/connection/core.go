package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/thrillee/smppsim/internal/config"
	"github.com/thrillee/smppsim/internal/logging"
	"github.com/thrillee/smppsim/internal/notification"
	"github.com/thrillee/smppsim/internal/smpp"
	"github.com/thrillee/smppsim/pkg/codes"
)

const maxSequence = 0x7FFFFFFF

// core is the state machine and transport shared by both variants.
// mu guards state, conn, sessionDone and the bind loop handle. writeMu
// serialises writes to the transport.
type core struct {
	cfg     config.ConnectionConfig
	handler Handler
	events  *notification.Dispatcher[Event]
	logCtx  context.Context

	lifetime       context.Context
	cancelLifetime context.CancelFunc

	mu          sync.Mutex
	state       string
	conn        net.Conn
	sessionDone chan struct{}
	loopCtx     context.Context
	stopLoop    context.CancelFunc

	writeMu      sync.Mutex
	pending      cmap.ConcurrentMap[uint32, chan smpp.Frame]
	seq          atomic.Uint32
	attempts     atomic.Int32
	lastActivity atomic.Int64
}

func newCore(cfg config.ConnectionConfig, opts Options) *core {
	lifetime, cancel := context.WithCancel(context.Background())
	logCtx := logging.ContextWithConnID(context.Background(), cfg.ID)
	logCtx = logging.ContextWithSystemID(logCtx, cfg.SystemID)

	c := &core{
		cfg:            cfg,
		handler:        opts.Handler,
		events:         notification.NewDispatcher[Event](),
		logCtx:         logCtx,
		lifetime:       lifetime,
		cancelLifetime: cancel,
		state:          codes.StatusInitializing,
		pending:        cmap.NewWithCustomShardingFunction[uint32, chan smpp.Frame](func(k uint32) uint32 { return k }),
	}
	for _, l := range opts.Listeners {
		c.events.Subscribe(l)
	}
	c.touch()
	return c
}

func (c *core) State() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *core) LastActivity() time.Time {
	return time.Unix(0, c.lastActivity.Load())
}

func (c *core) Subscribe(l notification.Listener[Event]) {
	c.events.Subscribe(l)
}

func (c *core) touch() {
	c.lastActivity.Store(time.Now().UnixNano())
}

// nextSeq returns sequence numbers in 1..0x7FFFFFFF.
func (c *core) nextSeq() uint32 {
	for {
		n := c.seq.Add(1) & maxSequence
		if n != 0 {
			return n
		}
	}
}

func (c *core) notify(ev Event) {
	c.events.Notify(c.logCtx, ev)
}

func (c *core) notifyAttempt(success bool, outcome string) {
	c.notify(EventStarted{
		ConnectionID: c.cfg.ID,
		Success:      success,
		Outcome:      outcome,
		Attempt:      int(c.attempts.Add(1)),
	})
}

// beginStart moves the manager into binding and hands out the context that
// stops the bind loop.
func (c *core) beginStart() (StartStatus, context.Context, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case codes.StatusShutdown:
		return StartShutdown, nil, false
	case codes.StatusBound:
		return StartAlreadyBound, nil, false
	case codes.StatusBinding:
		return StartAlreadyBinding, nil, false
	}
	ctx, cancel := context.WithCancel(c.lifetime)
	c.loopCtx, c.stopLoop = ctx, cancel
	c.state = codes.StatusBinding
	slog.InfoContext(c.logCtx, "Binding", slog.String("role", string(c.cfg.Role)), slog.String("addr", c.cfg.Addr()))
	return StartBinding, ctx, true
}

// stopBinding interrupts a running bind loop.
func (c *core) stopBinding() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopLoop != nil {
		c.stopLoop()
		c.stopLoop, c.loopCtx = nil, nil
	}
	if c.state == codes.StatusBinding {
		c.state = codes.StatusUnbound
	}
}

// attach installs conn as the bound session and starts its reader. loop is
// the bind loop that produced conn; nil accepts any binding state. It fails
// when the loop was stopped in the meantime.
func (c *core) attach(loop context.Context, conn net.Conn) bool {
	c.mu.Lock()
	if c.state != codes.StatusBinding || (loop != nil && loop.Err() != nil) {
		c.mu.Unlock()
		return false
	}
	done := make(chan struct{})
	c.state = codes.StatusBound
	c.conn = conn
	c.sessionDone = done
	if c.stopLoop != nil {
		c.stopLoop()
		c.stopLoop, c.loopCtx = nil, nil
	}
	c.mu.Unlock()

	c.touch()
	slog.InfoContext(c.logCtx, "Session bound", slog.String("remote_addr", conn.RemoteAddr().String()))
	go c.readLoop(conn)
	return true
}

// session returns the bound transport.
func (c *core) session() (net.Conn, chan struct{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != codes.StatusBound || c.conn == nil {
		return nil, nil, ErrNotBound
	}
	return c.conn, c.sessionDone, nil
}

// detach takes conn out of the manager, moving bound to unbinding. It
// reports false when conn is no longer the current session.
func (c *core) detach(conn net.Conn) (chan struct{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if conn == nil || c.conn != conn {
		return nil, false
	}
	done := c.sessionDone
	c.conn, c.sessionDone = nil, nil
	c.state = codes.StatusUnbinding
	return done, true
}

func (c *core) finishClose(conn net.Conn, done chan struct{}, reason string, err error) {
	if cerr := conn.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
		slog.DebugContext(c.logCtx, "Transport close error", slog.Any("error", cerr))
	}
	close(done)

	c.mu.Lock()
	if c.state == codes.StatusUnbinding {
		c.state = codes.StatusUnbound
	}
	c.mu.Unlock()

	attrs := []any{slog.String("reason", reason)}
	if err != nil {
		attrs = append(attrs, slog.Any("error", err))
	}
	slog.InfoContext(c.logCtx, "Session closed", attrs...)
	c.notify(EventClosed{ConnectionID: c.cfg.ID, Reason: reason, Err: err})
}

// sessionLost forces the session down after a transport failure or a peer unbind.
func (c *core) sessionLost(conn net.Conn, reason string, err error) {
	done, ok := c.detach(conn)
	if !ok {
		return
	}
	c.finishClose(conn, done, reason, err)
}

// closeSession unbinds gracefully when bound. The transport is closed even
// if the unbind exchange fails.
func (c *core) closeSession(ctx context.Context, reason string) bool {
	c.mu.Lock()
	conn := c.conn
	bound := c.state == codes.StatusBound
	c.mu.Unlock()
	if !bound {
		return false
	}
	done, ok := c.detach(conn)
	if !ok {
		return false
	}
	if err := c.unbind(ctx, conn); err != nil {
		slog.WarnContext(ctx, "Unbind was not acknowledged", slog.Any("error", err))
	}
	c.finishClose(conn, done, reason, nil)
	return true
}

func (c *core) unbind(ctx context.Context, conn net.Conn) error {
	seq := c.nextSeq()
	f, err := smpp.NewUnbindFrame(seq)
	if err != nil {
		return err
	}
	ch := make(chan smpp.Frame, 1)
	c.pending.Set(seq, ch)
	defer c.pending.Remove(seq)

	if err := c.write(conn, f); err != nil {
		return err
	}
	timer := time.NewTimer(c.cfg.ResponseTimeout)
	defer timer.Stop()
	select {
	case <-ch:
		return nil
	case <-timer.C:
		return ErrResponseTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *core) write(conn net.Conn, f smpp.Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.writeLocked(conn, f)
}

// writeLocked must be called with writeMu held.
func (c *core) writeLocked(conn net.Conn, f smpp.Frame) error {
	if err := conn.SetWriteDeadline(time.Now().Add(c.cfg.ResponseTimeout)); err != nil {
		return err
	}
	if err := smpp.WriteFrame(conn, f); err != nil {
		return err
	}
	c.touch()
	return nil
}

// Send transmits a request and waits for the response with the same
// sequence number. The frame's sequence number is assigned here.
func (c *core) Send(ctx context.Context, f smpp.Frame) (smpp.Frame, error) {
	conn, done, err := c.session()
	if err != nil {
		return smpp.Frame{}, err
	}
	seq := c.nextSeq()
	f.SequenceNumber = seq
	ch := make(chan smpp.Frame, 1)
	c.pending.Set(seq, ch)
	defer c.pending.Remove(seq)

	if err := c.write(conn, f); err != nil {
		c.sessionLost(conn, ReasonTransport, err)
		return smpp.Frame{}, fmt.Errorf("send %s: %w", smpp.CommandIDToString(f.CommandID), err)
	}

	timer := time.NewTimer(c.cfg.ResponseTimeout)
	defer timer.Stop()
	select {
	case resp := <-ch:
		return resp, nil
	case <-timer.C:
		return smpp.Frame{}, ErrResponseTimeout
	case <-done:
		return smpp.Frame{}, ErrSessionClosed
	case <-ctx.Done():
		return smpp.Frame{}, ctx.Err()
	}
}

// Respond writes a response frame on the bound session.
func (c *core) Respond(ctx context.Context, f smpp.Frame) error {
	conn, _, err := c.session()
	if err != nil {
		return err
	}
	if err := c.write(conn, f); err != nil {
		c.sessionLost(conn, ReasonTransport, err)
		return fmt.Errorf("respond %s: %w", smpp.CommandIDToString(f.CommandID), err)
	}
	return nil
}

// EnquireLink sends a keep-alive probe and checks its answer.
func (c *core) EnquireLink(ctx context.Context) error {
	req, err := smpp.NewEnquireLinkFrame(0)
	if err != nil {
		return err
	}
	resp, err := c.Send(ctx, req)
	if err != nil {
		return err
	}
	if resp.CommandID != smpp.CommandEnquireLinkResp {
		return fmt.Errorf("enquire_link answered with %s", smpp.CommandIDToString(resp.CommandID))
	}
	if resp.CommandStatus != smpp.StatusOk {
		return fmt.Errorf("enquire_link_resp status 0x%08X", resp.CommandStatus)
	}
	return nil
}

// CloseConnection stops binding and unbinds a bound session.
func (c *core) CloseConnection(ctx context.Context) error {
	c.stopBinding()
	c.closeSession(ctx, ReasonLocalClose)
	return nil
}

// shutDown is terminal and idempotent.
func (c *core) shutDown(ctx context.Context) bool {
	c.mu.Lock()
	if c.state == codes.StatusShutdown {
		c.mu.Unlock()
		return false
	}
	c.mu.Unlock()

	c.stopBinding()
	c.closeSession(ctx, ReasonShutdown)

	c.mu.Lock()
	c.state = codes.StatusShutdown
	c.mu.Unlock()
	c.cancelLifetime()
	slog.InfoContext(c.logCtx, "Connection shut down")
	return true
}

func (c *core) readLoop(conn net.Conn) {
	ctx := logging.ContextWithRemoteAddr(c.logCtx, conn.RemoteAddr().String())
	for {
		f, err := smpp.ReadFrame(conn)
		if err != nil {
			c.sessionLost(conn, ReasonTransport, err)
			return
		}
		c.touch()
		pctx := logging.ContextWithPDUInfo(ctx, smpp.CommandIDToString(f.CommandID), f.SequenceNumber)

		switch {
		case f.IsResponse():
			if ch, ok := c.pending.Pop(f.SequenceNumber); ok {
				ch <- f
			} else {
				slog.WarnContext(pctx, "Dropping response with no pending request")
			}
		case f.CommandID == smpp.CommandEnquireLink:
			c.answerControl(pctx, conn, f)
		case f.CommandID == smpp.CommandUnbind:
			slog.InfoContext(pctx, "Peer requested unbind")
			c.answerControl(pctx, conn, f)
			c.sessionLost(conn, ReasonPeerUnbind, nil)
			return
		case smpp.IsMessageCommand(f.CommandID):
			if c.handler != nil {
				c.handler(pctx, f)
			} else if err := c.write(conn, smpp.MessageResponse(f, smpp.StatusOk, "")); err != nil {
				c.sessionLost(conn, ReasonTransport, err)
				return
			}
		case smpp.IsBindCommand(f.CommandID):
			c.reply(pctx, conn, smpp.ResponseFor(f, smpp.StatusAlyBnd))
		default:
			slog.WarnContext(pctx, "Unsupported command")
			c.reply(pctx, conn, smpp.NewFrame(smpp.CommandGenericNack, smpp.StatusInvCmdID, f.SequenceNumber, nil))
		}
	}
}

func (c *core) answerControl(ctx context.Context, conn net.Conn, req smpp.Frame) {
	resp, err := smpp.ControlResponse(req)
	if err != nil {
		slog.WarnContext(ctx, "Cannot build control response", slog.Any("error", err))
		resp = smpp.ResponseFor(req, smpp.StatusOk)
	}
	c.reply(ctx, conn, resp)
}

func (c *core) reply(ctx context.Context, conn net.Conn, f smpp.Frame) {
	if err := c.write(conn, f); err != nil {
		slog.WarnContext(ctx, "Write failed", slog.Any("error", err))
	}
}
