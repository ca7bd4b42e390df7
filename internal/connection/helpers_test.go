package connection

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/linxGnu/gosmpp/pdu"
	"github.com/stretchr/testify/require"

	"github.com/thrillee/smppsim/internal/config"
	"github.com/thrillee/smppsim/internal/smpp"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Notify(_ context.Context, e Event) error {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	return nil
}

func (r *recorder) started() []EventStarted {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []EventStarted
	for _, e := range r.events {
		if s, ok := e.(EventStarted); ok {
			out = append(out, s)
		}
	}
	return out
}

func (r *recorder) closed() []EventClosed {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []EventClosed
	for _, e := range r.events {
		if c, ok := e.(EventClosed); ok {
			out = append(out, c)
		}
	}
	return out
}

// fakeSMSC is a raw TCP peer that rejects the first rejectFirst binds and
// then serves the session: it answers unbind, enquire_link and submit_sm
// (unless silent) and forwards everything it reads to frames.
type fakeSMSC struct {
	ln          net.Listener
	rejectFirst int32
	binds       atomic.Int32
	silent      atomic.Bool
	bound       chan net.Conn
	frames      chan smpp.Frame
}

func newFakeSMSC(t *testing.T, rejectFirst int) *fakeSMSC {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	p := &fakeSMSC{
		ln:          ln,
		rejectFirst: int32(rejectFirst),
		bound:       make(chan net.Conn, 4),
		frames:      make(chan smpp.Frame, 64),
	}
	t.Cleanup(func() { ln.Close() })
	go p.accept()
	return p
}

func (p *fakeSMSC) port() int {
	return p.ln.Addr().(*net.TCPAddr).Port
}

func (p *fakeSMSC) accept() {
	for {
		conn, err := p.ln.Accept()
		if err != nil {
			return
		}
		go p.handle(conn)
	}
}

func (p *fakeSMSC) handle(conn net.Conn) {
	f, err := smpp.ReadFrame(conn)
	if err != nil {
		conn.Close()
		return
	}
	decoded, err := smpp.DecodePDU(f)
	if err != nil {
		conn.Close()
		return
	}
	br := decoded.(*pdu.BindRequest)
	status := smpp.StatusOk
	if p.binds.Add(1) <= p.rejectFirst {
		status = smpp.StatusInvPasswd
	}
	resp, _ := smpp.BindResponseFrame(br, status, "fake")
	smpp.WriteFrame(conn, resp)
	if status != smpp.StatusOk {
		conn.Close()
		return
	}
	p.bound <- conn
	p.serve(conn)
}

func (p *fakeSMSC) serve(conn net.Conn) {
	defer conn.Close()
	for {
		f, err := smpp.ReadFrame(conn)
		if err != nil {
			return
		}
		select {
		case p.frames <- f:
		default:
		}
		switch f.CommandID {
		case smpp.CommandUnbind:
			resp, _ := smpp.ControlResponse(f)
			smpp.WriteFrame(conn, resp)
			return
		case smpp.CommandEnquireLink:
			resp, _ := smpp.ControlResponse(f)
			smpp.WriteFrame(conn, resp)
		case smpp.CommandSubmitSM:
			if !p.silent.Load() {
				resp, _ := smpp.SubmitResponseFrame(f.SequenceNumber, smpp.StatusOk, fmt.Sprintf("msg-%d", f.SequenceNumber))
				smpp.WriteFrame(conn, resp)
			}
		}
	}
}

func waitFrame(t *testing.T, ch <-chan smpp.Frame, cmdID uint32) smpp.Frame {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case f := <-ch:
			if f.CommandID == cmdID {
				return f
			}
		case <-deadline:
			t.Fatalf("no %s received", smpp.CommandIDToString(cmdID))
			return smpp.Frame{}
		}
	}
}

func testConfig(role config.Role, port int) config.ConnectionConfig {
	return config.ConnectionConfig{
		ID:              7,
		Name:            "test",
		Role:            role,
		BindOption:      config.BindTransceiver,
		Host:            "127.0.0.1",
		Port:            port,
		SystemID:        "esme1",
		Password:        "secret",
		ResponseTimeout: 300 * time.Millisecond,
		RetryDelay:      10 * time.Millisecond,
		RetryThreshold:  30,
		RetryMultiplier: 2,
	}
}

func submitFrame(text string) smpp.Frame {
	m := &smpp.MessagePDU{
		CommandID:    smpp.CommandSubmitSM,
		Source:       smpp.Address{Addr: "100"},
		Destination:  smpp.Address{Addr: "200"},
		ShortMessage: []byte(text),
	}
	return m.Frame()
}

func waitState(t *testing.T, m Manager, state string) {
	t.Helper()
	require.Eventually(t, func() bool { return m.State() == state }, 3*time.Second, 5*time.Millisecond,
		"state stayed %s", m.State())
}
