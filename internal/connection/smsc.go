package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/linxGnu/gosmpp/pdu"

	"github.com/thrillee/smppsim/internal/auth"
	"github.com/thrillee/smppsim/internal/config"
	"github.com/thrillee/smppsim/internal/logging"
	"github.com/thrillee/smppsim/internal/smpp"
	"github.com/thrillee/smppsim/pkg/codes"
	"github.com/thrillee/smppsim/pkg/errormapper"
)

// smsc listens on host:port and admits one authenticated peer at a time.
// The listener stays open across sessions until ShutDown.
type smsc struct {
	*core

	lnMu sync.Mutex
	ln   net.Listener
}

func newSMSC(c *core) *smsc {
	return &smsc{core: c}
}

func (s *smsc) BindRole() config.Role { return config.RoleSMSC }

// StartConnection opens the listener if needed and waits for a peer to bind.
func (s *smsc) StartConnection(ctx context.Context) (StartStatus, error) {
	status, _, ok := s.beginStart()
	if !ok {
		slog.DebugContext(ctx, "Start ignored", slog.String("status", status.String()))
		return status, nil
	}
	if err := s.listen(); err != nil {
		s.stopBinding()
		return status, err
	}
	return StartBinding, nil
}

func (s *smsc) ShutDown(ctx context.Context) {
	if !s.shutDown(ctx) {
		return
	}
	s.lnMu.Lock()
	defer s.lnMu.Unlock()
	if s.ln != nil {
		s.ln.Close()
		s.ln = nil
	}
}

// Addr is the bound listener address, nil before the first start.
func (s *smsc) Addr() net.Addr {
	s.lnMu.Lock()
	defer s.lnMu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

func (s *smsc) listen() error {
	s.lnMu.Lock()
	defer s.lnMu.Unlock()
	if s.ln != nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr(), err)
	}
	s.ln = ln
	slog.InfoContext(s.logCtx, "SMSC listening", slog.String("addr", ln.Addr().String()))
	go s.acceptLoop(ln)
	return nil
}

func (s *smsc) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				slog.DebugContext(s.logCtx, "Listener closed")
				return
			}
			slog.WarnContext(s.logCtx, "Accept failed", slog.Any("error", err))
			time.Sleep(100 * time.Millisecond)
			continue
		}
		go s.handshake(conn)
	}
}

// handshake expects a bind request within the response timeout and answers it.
func (s *smsc) handshake(conn net.Conn) {
	ctx := logging.ContextWithRemoteAddr(s.logCtx, conn.RemoteAddr().String())

	if err := conn.SetReadDeadline(time.Now().Add(s.cfg.ResponseTimeout)); err != nil {
		conn.Close()
		return
	}
	f, err := smpp.ReadFrame(conn)
	if err != nil {
		conn.Close()
		outcome := codes.BindTransportException
		if isTimeout(err) {
			outcome = codes.BindNoResponse
		}
		slog.WarnContext(ctx, "Peer did not bind", slog.Any("error", err))
		s.notifyAttempt(false, outcome)
		return
	}
	conn.SetReadDeadline(time.Time{})

	var br *pdu.BindRequest
	if smpp.IsBindCommand(f.CommandID) {
		if p, err := smpp.DecodePDU(f); err == nil {
			br, _ = p.(*pdu.BindRequest)
		}
	}
	if br == nil {
		slog.WarnContext(ctx, "Expected bind request", slog.String("cmd_id", smpp.CommandIDToString(f.CommandID)))
		s.rejectRaw(conn, smpp.NewFrame(smpp.CommandGenericNack, smpp.StatusInvBndSts, f.SequenceNumber, nil))
		s.notifyAttempt(false, codes.BindFailed)
		return
	}
	ctx = logging.ContextWithSystemID(ctx, br.SystemID)

	status := s.authenticate(br)
	if status == smpp.StatusOk {
		s.writeMu.Lock()
		if s.attach(nil, conn) {
			resp, err := smpp.BindResponseFrame(br, status, s.cfg.SystemID)
			if err == nil {
				err = s.writeLocked(conn, resp)
			}
			s.writeMu.Unlock()
			if err != nil {
				s.sessionLost(conn, ReasonTransport, err)
				s.notifyAttempt(false, codes.BindTransportException)
				return
			}
			slog.InfoContext(ctx, "Peer bound")
			s.notifyAttempt(true, codes.BindSuccess)
			return
		}
		s.writeMu.Unlock()
		status = errormapper.BindStatus(codes.BindFailed)
		if s.State() == codes.StatusBound {
			status = smpp.StatusAlyBnd
		}
	}

	outcome := errormapper.BindOutcome(status)
	slog.WarnContext(ctx, "Bind rejected", slog.String("outcome", outcome), slog.Any("status", status))
	if resp, err := smpp.BindResponseFrame(br, status, s.cfg.SystemID); err == nil {
		s.rejectRaw(conn, resp)
	} else {
		conn.Close()
	}
	s.notifyAttempt(false, outcome)
}

func (s *smsc) authenticate(br *pdu.BindRequest) uint32 {
	switch {
	case br.SystemID != s.cfg.SystemID:
		return smpp.StatusInvSysID
	case !auth.CheckPassword(br.Password, s.cfg.Password):
		return smpp.StatusInvPasswd
	case s.cfg.SystemType != "" && br.SystemType != s.cfg.SystemType:
		return smpp.StatusInvSysTyp
	}
	return smpp.StatusOk
}

// rejectRaw answers a peer that never became the session, then drops it.
func (s *smsc) rejectRaw(conn net.Conn, f smpp.Frame) {
	conn.SetWriteDeadline(time.Now().Add(s.cfg.ResponseTimeout))
	if err := smpp.WriteFrame(conn, f); err != nil {
		slog.DebugContext(s.logCtx, "Reject write failed", slog.Any("error", err))
	}
	conn.Close()
}

// ListenAddr returns the listening address of an SMSC manager.
func ListenAddr(m Manager) (net.Addr, bool) {
	s, ok := m.(*smsc)
	if !ok {
		return nil, false
	}
	addr := s.Addr()
	return addr, addr != nil
}
