package connection

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/thrillee/smppsim/internal/auth"
	"github.com/thrillee/smppsim/internal/config"
	"github.com/thrillee/smppsim/internal/notification"
	"github.com/thrillee/smppsim/internal/smpp"
	"github.com/thrillee/smppsim/pkg/codes"
)

func newESMEManager(t *testing.T, cfg config.ConnectionConfig, h Handler) (Manager, *recorder) {
	t.Helper()
	rec := &recorder{}
	m, err := New(cfg, Options{Handler: h, Listeners: []notification.Listener[Event]{rec}})
	require.NoError(t, err)
	t.Cleanup(func() { m.ShutDown(context.Background()) })
	return m, rec
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig("PEER", 1)
	_, err := New(cfg, Options{})
	assert.Error(t, err)

	cfg = testConfig(config.RoleESME, 1)
	cfg.BindOption = "both"
	_, err = New(cfg, Options{})
	assert.Error(t, err)
}

func TestBindRetriesUntilBound(t *testing.T) {
	peer := newFakeSMSC(t, 2)
	m, rec := newESMEManager(t, testConfig(config.RoleESME, peer.port()), nil)
	assert.Equal(t, config.RoleESME, m.BindRole())
	assert.Equal(t, codes.StatusInitializing, m.State())

	status, err := m.StartConnection(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StartBinding, status)
	waitState(t, m, codes.StatusBound)
	require.Eventually(t, func() bool { return len(rec.started()) == 3 }, time.Second, 5*time.Millisecond)

	started := rec.started()
	successes := 0
	for i, s := range started {
		assert.Equal(t, i+1, s.Attempt)
		assert.Equal(t, 7, s.ConnectionID)
		if s.Success {
			successes++
			assert.Equal(t, codes.BindSuccess, s.Outcome)
		} else {
			assert.Equal(t, codes.BindBadCredentials, s.Outcome)
		}
	}
	assert.Equal(t, 1, successes)
	assert.True(t, started[2].Success)

	status, err = m.StartConnection(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StartAlreadyBound, status)
}

func TestStartWhileBinding(t *testing.T) {
	peer := newFakeSMSC(t, 1000)
	m, _ := newESMEManager(t, testConfig(config.RoleESME, peer.port()), nil)

	status, err := m.StartConnection(context.Background())
	require.NoError(t, err)
	require.Equal(t, StartBinding, status)
	status, err = m.StartConnection(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StartAlreadyBinding, status)

	require.NoError(t, m.CloseConnection(context.Background()))
	assert.Equal(t, codes.StatusUnbound, m.State())
}

func TestUnreachablePeerReportsTransportException(t *testing.T) {
	peer := newFakeSMSC(t, 0)
	port := peer.port()
	peer.ln.Close()

	m, rec := newESMEManager(t, testConfig(config.RoleESME, port), nil)
	_, err := m.StartConnection(context.Background())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(rec.started()) >= 2 }, 2*time.Second, 5*time.Millisecond)
	for _, s := range rec.started() {
		assert.False(t, s.Success)
		assert.Equal(t, codes.BindTransportException, s.Outcome)
	}
	assert.Equal(t, codes.StatusBinding, m.State())
}

func TestShutDownIsTerminalAndIdempotent(t *testing.T) {
	peer := newFakeSMSC(t, 0)
	m, rec := newESMEManager(t, testConfig(config.RoleESME, peer.port()), nil)
	_, err := m.StartConnection(context.Background())
	require.NoError(t, err)
	waitState(t, m, codes.StatusBound)

	m.ShutDown(context.Background())
	assert.Equal(t, codes.StatusShutdown, m.State())
	waitFrame(t, peer.frames, smpp.CommandUnbind)

	m.ShutDown(context.Background())
	status, err := m.StartConnection(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StartShutdown, status)

	closed := rec.closed()
	require.Len(t, closed, 1)
	assert.Equal(t, ReasonShutdown, closed[0].Reason)
	assert.False(t, closed[0].Reconnect())

	_, err = m.Send(context.Background(), submitFrame("late"))
	assert.ErrorIs(t, err, ErrNotBound)
}

func TestSendFailsFastWhenNotBound(t *testing.T) {
	m, _ := newESMEManager(t, testConfig(config.RoleESME, 1), nil)
	_, err := m.Send(context.Background(), submitFrame("hi"))
	assert.ErrorIs(t, err, ErrNotBound)
	assert.ErrorIs(t, m.Respond(context.Background(), smpp.ResponseFor(submitFrame("x"), 0)), ErrNotBound)
}

func TestSendMatchesResponsesBySequence(t *testing.T) {
	peer := newFakeSMSC(t, 0)
	m, _ := newESMEManager(t, testConfig(config.RoleESME, peer.port()), nil)
	_, err := m.StartConnection(context.Background())
	require.NoError(t, err)
	waitState(t, m, codes.StatusBound)

	var wg sync.WaitGroup
	ids := make([]string, 10)
	errs := make([]error, 10)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := m.Send(context.Background(), submitFrame(fmt.Sprintf("m%d", i)))
			errs[i] = err
			if err == nil {
				assert.Equal(t, smpp.CommandSubmitSMResp, resp.CommandID)
				ids[i] = smpp.ResponseMessageID(resp)
			}
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for i := range ids {
		require.NoError(t, errs[i])
		assert.NotEmpty(t, ids[i])
		seen[ids[i]] = true
	}
	assert.Len(t, seen, 10)
}

func TestSendTimesOut(t *testing.T) {
	peer := newFakeSMSC(t, 0)
	peer.silent.Store(true)
	m, _ := newESMEManager(t, testConfig(config.RoleESME, peer.port()), nil)
	_, err := m.StartConnection(context.Background())
	require.NoError(t, err)
	waitState(t, m, codes.StatusBound)

	start := time.Now()
	_, err = m.Send(context.Background(), submitFrame("hello"))
	assert.ErrorIs(t, err, ErrResponseTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 250*time.Millisecond)
	assert.Equal(t, codes.StatusBound, m.State())
}

func TestPeerControlPDUs(t *testing.T) {
	peer := newFakeSMSC(t, 0)
	got := make(chan smpp.Frame, 1)
	m, rec := newESMEManager(t, testConfig(config.RoleESME, peer.port()), func(_ context.Context, f smpp.Frame) {
		got <- f
	})
	_, err := m.StartConnection(context.Background())
	require.NoError(t, err)
	srv := <-peer.bound
	waitState(t, m, codes.StatusBound)

	el, err := smpp.NewEnquireLinkFrame(77)
	require.NoError(t, err)
	require.NoError(t, smpp.WriteFrame(srv, el))
	resp := waitFrame(t, peer.frames, smpp.CommandEnquireLinkResp)
	assert.Equal(t, uint32(77), resp.SequenceNumber)

	deliver := (&smpp.MessagePDU{CommandID: smpp.CommandDeliverSM, SequenceNumber: 5, ShortMessage: []byte("mo")}).Frame()
	require.NoError(t, smpp.WriteFrame(srv, deliver))
	select {
	case f := <-got:
		assert.Equal(t, smpp.CommandDeliverSM, f.CommandID)
		require.NoError(t, m.Respond(context.Background(), smpp.MessageResponse(f, smpp.StatusOk, "")))
	case <-time.After(2 * time.Second):
		t.Fatal("handler not called")
	}
	waitFrame(t, peer.frames, smpp.CommandDeliverSMResp)

	ub, err := smpp.NewUnbindFrame(78)
	require.NoError(t, err)
	require.NoError(t, smpp.WriteFrame(srv, ub))
	waitFrame(t, peer.frames, smpp.CommandUnbindResp)
	waitState(t, m, codes.StatusUnbound)

	require.Eventually(t, func() bool { return len(rec.closed()) == 1 }, time.Second, 5*time.Millisecond)
	closed := rec.closed()[0]
	assert.Equal(t, ReasonPeerUnbind, closed.Reason)
	assert.True(t, closed.Reconnect())
}

func TestTransportFailureUnbinds(t *testing.T) {
	peer := newFakeSMSC(t, 0)
	m, rec := newESMEManager(t, testConfig(config.RoleESME, peer.port()), nil)
	_, err := m.StartConnection(context.Background())
	require.NoError(t, err)
	srv := <-peer.bound
	waitState(t, m, codes.StatusBound)

	srv.Close()
	waitState(t, m, codes.StatusUnbound)
	require.Eventually(t, func() bool { return len(rec.closed()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, ReasonTransport, rec.closed()[0].Reason)

	_, err = m.Send(context.Background(), submitFrame("x"))
	assert.True(t, errors.Is(err, ErrNotBound))

	status, err := m.StartConnection(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StartBinding, status)
	waitState(t, m, codes.StatusBound)
}

func TestEnquireLinkProbe(t *testing.T) {
	peer := newFakeSMSC(t, 0)
	m, _ := newESMEManager(t, testConfig(config.RoleESME, peer.port()), nil)
	_, err := m.StartConnection(context.Background())
	require.NoError(t, err)
	waitState(t, m, codes.StatusBound)

	before := m.LastActivity()
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, m.EnquireLink(context.Background()))
	assert.True(t, m.LastActivity().After(before))
}

func TestESMEAgainstSMSCManager(t *testing.T) {
	// Minimum cost keeps the bind check fast under the race detector.
	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	require.NoError(t, err)
	require.True(t, auth.IsHash(string(hash)))

	smscCfg := testConfig(config.RoleSMSC, 0)
	smscCfg.Password = string(hash)
	smscCfg.ResponseTimeout = 5 * time.Second
	inbound := make(chan smpp.Frame, 1)
	var smscMgr Manager
	smscRec := &recorder{}
	smscMgr, err = New(smscCfg, Options{
		Listeners: []notification.Listener[Event]{smscRec},
		Handler: func(ctx context.Context, f smpp.Frame) {
			inbound <- f
			smscMgr.Respond(ctx, smpp.MessageResponse(f, smpp.StatusOk, "abc"))
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { smscMgr.ShutDown(context.Background()) })
	assert.Equal(t, config.RoleSMSC, smscMgr.BindRole())

	status, err := smscMgr.StartConnection(context.Background())
	require.NoError(t, err)
	require.Equal(t, StartBinding, status)
	addr, ok := ListenAddr(smscMgr)
	require.True(t, ok)

	esmeCfg := testConfig(config.RoleESME, addr.(*net.TCPAddr).Port)
	esmeCfg.ResponseTimeout = 5 * time.Second
	esmeMgr, esmeRec := newESMEManager(t, esmeCfg, nil)
	_, err = esmeMgr.StartConnection(context.Background())
	require.NoError(t, err)
	waitState(t, esmeMgr, codes.StatusBound)
	waitState(t, smscMgr, codes.StatusBound)

	resp, err := esmeMgr.Send(context.Background(), submitFrame("hello"))
	require.NoError(t, err)
	assert.Equal(t, "abc", smpp.ResponseMessageID(resp))
	f := <-inbound
	assert.Equal(t, smpp.CommandSubmitSM, f.CommandID)

	require.NoError(t, esmeMgr.CloseConnection(context.Background()))
	assert.Equal(t, codes.StatusUnbound, esmeMgr.State())
	waitState(t, smscMgr, codes.StatusUnbound)

	require.Eventually(t, func() bool { return len(smscRec.closed()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, ReasonPeerUnbind, smscRec.closed()[0].Reason)
	require.Len(t, esmeRec.closed(), 1)
	assert.Equal(t, ReasonLocalClose, esmeRec.closed()[0].Reason)
	assert.False(t, esmeRec.closed()[0].Reconnect())
}

func TestSMSCRejectsBadCredentials(t *testing.T) {
	smscRec := &recorder{}
	smscMgr, err := New(testConfig(config.RoleSMSC, 0), Options{Listeners: []notification.Listener[Event]{smscRec}})
	require.NoError(t, err)
	t.Cleanup(func() { smscMgr.ShutDown(context.Background()) })
	_, err = smscMgr.StartConnection(context.Background())
	require.NoError(t, err)
	addr, ok := ListenAddr(smscMgr)
	require.True(t, ok)

	cfg := testConfig(config.RoleESME, addr.(*net.TCPAddr).Port)
	cfg.Password = "wrong"
	esmeMgr, esmeRec := newESMEManager(t, cfg, nil)
	_, err = esmeMgr.StartConnection(context.Background())
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(esmeRec.started()) >= 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, codes.BindBadCredentials, esmeRec.started()[0].Outcome)
	require.Eventually(t, func() bool { return len(smscRec.started()) >= 1 }, 2*time.Second, 5*time.Millisecond)
	assert.False(t, smscRec.started()[0].Success)
	assert.Equal(t, codes.BindBadCredentials, smscRec.started()[0].Outcome)
	assert.Equal(t, codes.StatusBinding, smscMgr.State())
}

func TestBackoff(t *testing.T) {
	b := Backoff{Base: time.Second, Threshold: 3, Multiplier: 12}
	assert.Equal(t, time.Second, b.Next())
	assert.Equal(t, time.Second, b.Next())
	assert.Equal(t, 12*time.Second, b.Next())
	assert.Equal(t, time.Second, b.Next())
	b.Reset()
	assert.Equal(t, time.Second, b.Next())
	assert.Equal(t, time.Second, b.Next())
	assert.Equal(t, 12*time.Second, b.Next())
}

func TestStartStatusString(t *testing.T) {
	assert.Equal(t, "already_bound", StartAlreadyBound.String())
	assert.Equal(t, "StartStatus(9)", StartStatus(9).String())
}
