// Package connection owns the SMPP transport session and bind state machine
// for one configured endpoint, in either the dialing (ESME) or listening
// (SMSC) role.
package connection

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/thrillee/smppsim/internal/config"
	"github.com/thrillee/smppsim/internal/notification"
	"github.com/thrillee/smppsim/internal/smpp"
)

var (
	// ErrNotBound is returned by Send and Respond outside the bound state.
	ErrNotBound = errors.New("connection: not bound")
	// ErrResponseTimeout is returned when no response arrives in time.
	ErrResponseTimeout = errors.New("connection: response timeout")
	// ErrSessionClosed is returned to senders whose session ended while waiting.
	ErrSessionClosed = errors.New("connection: session closed")
)

// StartStatus reports how StartConnection handled the request.
type StartStatus int

const (
	StartBinding StartStatus = iota
	StartAlreadyBound
	StartAlreadyBinding
	StartShutdown
)

func (s StartStatus) String() string {
	switch s {
	case StartBinding:
		return "binding"
	case StartAlreadyBound:
		return "already_bound"
	case StartAlreadyBinding:
		return "already_binding"
	case StartShutdown:
		return "shutdown"
	}
	return fmt.Sprintf("StartStatus(%d)", int(s))
}

// Close reasons carried by EventClosed.
const (
	ReasonPeerUnbind = "peer_unbind"
	ReasonTransport  = "transport_error"
	ReasonLocalClose = "local_close"
	ReasonShutdown   = "shutdown"
)

// Event is published to subscribers of a Manager.
type Event interface {
	eventName() string
}

// EventStarted is published once per bind attempt.
type EventStarted struct {
	ConnectionID int
	Success      bool
	Outcome      string
	Attempt      int
}

// EventClosed is published when a bound session ends.
type EventClosed struct {
	ConnectionID int
	Reason       string
	Err          error
}

func (EventStarted) eventName() string { return "started" }
func (EventClosed) eventName() string  { return "closed" }

// Reconnect reports whether the owner should start binding again.
func (e EventClosed) Reconnect() bool {
	return e.Reason != ReasonLocalClose && e.Reason != ReasonShutdown
}

// Handler receives inbound submit_sm, deliver_sm and data_sm requests.
// Control PDUs are answered by the manager itself.
type Handler func(ctx context.Context, f smpp.Frame)

// Manager is the capability every connection variant provides.
type Manager interface {
	BindRole() config.Role
	State() string
	StartConnection(ctx context.Context) (StartStatus, error)
	CloseConnection(ctx context.Context) error
	ShutDown(ctx context.Context)
	Send(ctx context.Context, f smpp.Frame) (smpp.Frame, error)
	Respond(ctx context.Context, f smpp.Frame) error
	EnquireLink(ctx context.Context) error
	LastActivity() time.Time
	Subscribe(l notification.Listener[Event])
}

// Dialer opens the ESME transport.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Options carries the collaborators of a Manager.
type Options struct {
	Handler   Handler
	Listeners []notification.Listener[Event]
	Dialer    Dialer
}

// New returns the variant matching cfg.Role.
func New(cfg config.ConnectionConfig, opts Options) (Manager, error) {
	cfg.ApplyDefaults()
	if _, ok := smpp.BindingType(string(cfg.BindOption)); !ok {
		return nil, fmt.Errorf("connection %d: invalid bind option %q", cfg.ID, cfg.BindOption)
	}
	c := newCore(cfg, opts)
	switch cfg.Role {
	case config.RoleESME:
		return newESME(c, opts.Dialer), nil
	case config.RoleSMSC:
		return newSMSC(c), nil
	}
	return nil, fmt.Errorf("connection %d: invalid role %q", cfg.ID, cfg.Role)
}
