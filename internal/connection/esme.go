package connection

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/thrillee/smppsim/internal/config"
	"github.com/thrillee/smppsim/internal/smpp"
	"github.com/thrillee/smppsim/pkg/codes"
	"github.com/thrillee/smppsim/pkg/errormapper"
)

// esme dials the peer and binds with the configured credentials, retrying
// with backoff until bound or stopped.
type esme struct {
	*core
	dialer Dialer
}

func newESME(c *core, d Dialer) *esme {
	if d == nil {
		d = &net.Dialer{}
	}
	return &esme{core: c, dialer: d}
}

func (e *esme) BindRole() config.Role { return config.RoleESME }

func (e *esme) StartConnection(ctx context.Context) (StartStatus, error) {
	status, loop, ok := e.beginStart()
	if !ok {
		slog.DebugContext(ctx, "Start ignored", slog.String("status", status.String()))
		return status, nil
	}
	go e.bindLoop(loop)
	return StartBinding, nil
}

func (e *esme) ShutDown(ctx context.Context) {
	e.shutDown(ctx)
}

func (e *esme) bindLoop(ctx context.Context) {
	backoff := Backoff{
		Base:       e.cfg.RetryDelay,
		Threshold:  e.cfg.RetryThreshold,
		Multiplier: e.cfg.RetryMultiplier,
	}
	for {
		if ctx.Err() != nil {
			return
		}
		conn, outcome := e.bind(ctx)
		if outcome == codes.BindSuccess {
			if e.attach(ctx, conn) {
				e.notifyAttempt(true, outcome)
				return
			}
			conn.Close()
			return
		}
		e.notifyAttempt(false, outcome)

		delay := backoff.Next()
		slog.WarnContext(e.logCtx, "Bind attempt failed, retrying",
			slog.String("outcome", outcome), slog.Duration("delay", delay))
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// bind runs one attempt: fresh transport, bind request, classified response.
// The returned conn is non-nil only on success.
func (e *esme) bind(ctx context.Context) (net.Conn, string) {
	dialCtx, cancel := context.WithTimeout(ctx, e.cfg.ResponseTimeout)
	defer cancel()
	conn, err := e.dialer.DialContext(dialCtx, "tcp", e.cfg.Addr())
	if err != nil {
		slog.DebugContext(e.logCtx, "Dial failed", slog.Any("error", err))
		return nil, codes.BindTransportException
	}

	bt, _ := smpp.BindingType(string(e.cfg.BindOption))
	req, err := smpp.NewBindFrame(bt, e.cfg.SystemID, e.cfg.Password, e.cfg.SystemType, e.nextSeq())
	if err != nil {
		conn.Close()
		slog.ErrorContext(e.logCtx, "Cannot build bind request", slog.Any("error", err))
		return nil, codes.BindFailed
	}

	if err := conn.SetDeadline(time.Now().Add(e.cfg.ResponseTimeout)); err != nil {
		conn.Close()
		return nil, codes.BindTransportException
	}
	if err := smpp.WriteFrame(conn, req); err != nil {
		conn.Close()
		return nil, codes.BindTransportException
	}
	resp, err := smpp.ReadFrame(conn)
	if err != nil {
		conn.Close()
		if isTimeout(err) {
			return nil, codes.BindNoResponse
		}
		return nil, codes.BindTransportException
	}
	if resp.CommandID != smpp.ResponseID(req.CommandID) || resp.SequenceNumber != req.SequenceNumber {
		conn.Close()
		slog.WarnContext(e.logCtx, "Unexpected answer to bind",
			slog.String("cmd_id", smpp.CommandIDToString(resp.CommandID)), slog.Any("seq_num", resp.SequenceNumber))
		return nil, codes.BindFailed
	}

	outcome := errormapper.BindOutcome(resp.CommandStatus)
	if outcome != codes.BindSuccess {
		conn.Close()
		return nil, outcome
	}
	if err := conn.SetDeadline(time.Time{}); err != nil {
		conn.Close()
		return nil, codes.BindTransportException
	}
	return conn, outcome
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
