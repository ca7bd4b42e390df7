package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v2"

	"github.com/thrillee/smppsim/internal/charset"
	"github.com/thrillee/smppsim/pkg/codes"
)

// Role is the side of the SMPP session a connection plays.
type Role string

const (
	RoleESME Role = "ESME"
	RoleSMSC Role = "SMSC"
)

// BindOption selects the bind PDU.
type BindOption string

const (
	BindReceiver    BindOption = "receiver"
	BindTransmitter BindOption = "transmitter"
	BindTransceiver BindOption = "transceiver"
)

const (
	DefaultWorkerPoolSize  = 4
	DefaultResponseTimeout = 10 * time.Second
	DefaultEnquireLink     = 60 * time.Second
	DefaultRetryDelay      = 5 * time.Second
	DefaultRetryThreshold  = 30
	DefaultRetryMultiplier = 12
	DefaultReceiptDelay    = time.Second
)

// AddressDefaults are the TON/NPI (and optional address) used when sending.
type AddressDefaults struct {
	TON     byte   `yaml:"ton"`
	NPI     byte   `yaml:"npi"`
	Address string `yaml:"address"`
}

// ConnectionConfig is one endpoint definition. It is read-only after
// startup; changing it means replacing the connection.
type ConnectionConfig struct {
	ID              int             `yaml:"id"`
	Name            string          `yaml:"name"`
	Role            Role            `yaml:"role"`
	BindOption      BindOption      `yaml:"bind_option"`
	Host            string          `yaml:"host"`
	Port            int             `yaml:"port"`
	SystemID        string          `yaml:"system_id"`
	Password        string          `yaml:"password"`
	SystemType      string          `yaml:"system_type"`
	Source          AddressDefaults `yaml:"source"`
	Destination     AddressDefaults `yaml:"destination"`
	Callback        AddressDefaults `yaml:"callback"`
	Encoding        string          `yaml:"encoding"`
	ConcatMode      string          `yaml:"concat_mode"`
	WorkerPoolSize  int             `yaml:"worker_pool_size"`
	ResponseTimeout time.Duration   `yaml:"response_timeout"`
	EnquireLink     time.Duration   `yaml:"enquire_link"`
	RetryDelay      time.Duration   `yaml:"retry_delay"`
	RetryThreshold  int             `yaml:"retry_threshold"`
	RetryMultiplier int             `yaml:"retry_multiplier"`
	DeliveryReceipt bool            `yaml:"delivery_receipt"`
	ReceiptDelay    time.Duration   `yaml:"receipt_delay"`
	Disabled        bool            `yaml:"disabled"`
}

type connectionsFile struct {
	Connections []ConnectionConfig `yaml:"connections"`
}

// Addr is host:port.
func (c ConnectionConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DeclaredEncoding is the configured text encoding, if any.
func (c ConnectionConfig) DeclaredEncoding() (charset.Encoding, bool) {
	if c.Encoding == "" {
		return "", false
	}
	return charset.Normalize(c.Encoding)
}

// ApplyDefaults fills unset tunables.
func (c *ConnectionConfig) ApplyDefaults() {
	c.Role = Role(strings.ToUpper(string(c.Role)))
	c.BindOption = BindOption(strings.ToLower(string(c.BindOption)))
	c.ConcatMode = strings.ToUpper(c.ConcatMode)
	if c.BindOption == "" {
		c.BindOption = BindTransceiver
	}
	if c.ConcatMode == "" {
		c.ConcatMode = codes.ConcatHeader
	}
	if c.Host == "" && c.Role == RoleSMSC {
		c.Host = "0.0.0.0"
	}
	if c.WorkerPoolSize <= 0 {
		c.WorkerPoolSize = DefaultWorkerPoolSize
	}
	if c.ResponseTimeout <= 0 {
		c.ResponseTimeout = DefaultResponseTimeout
	}
	if c.EnquireLink <= 0 {
		c.EnquireLink = DefaultEnquireLink
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.RetryThreshold <= 0 {
		c.RetryThreshold = DefaultRetryThreshold
	}
	if c.RetryMultiplier <= 0 {
		c.RetryMultiplier = DefaultRetryMultiplier
	}
	if c.ReceiptDelay <= 0 {
		c.ReceiptDelay = DefaultReceiptDelay
	}
}

// Validate reports every problem with the definition.
func (c ConnectionConfig) Validate() error {
	var errs []error
	switch c.Role {
	case RoleESME, RoleSMSC:
	default:
		errs = append(errs, fmt.Errorf("invalid role %q", c.Role))
	}
	switch c.BindOption {
	case BindReceiver, BindTransmitter, BindTransceiver:
	default:
		errs = append(errs, fmt.Errorf("invalid bind option %q", c.BindOption))
	}
	if c.Role == RoleESME && c.Host == "" {
		errs = append(errs, errors.New("host is required"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port %d", c.Port))
	}
	if c.SystemID == "" {
		errs = append(errs, errors.New("system_id is required"))
	}
	if c.Password == "" {
		errs = append(errs, errors.New("password is required"))
	}
	switch c.ConcatMode {
	case codes.ConcatNone, codes.ConcatHeader, codes.ConcatSegmentTLV, codes.ConcatPayload, codes.ConcatHeaderPayload:
	default:
		errs = append(errs, fmt.Errorf("invalid concat mode %q", c.ConcatMode))
	}
	if c.Encoding != "" {
		if _, ok := charset.Normalize(c.Encoding); !ok {
			errs = append(errs, fmt.Errorf("unknown encoding %q", c.Encoding))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("connection %d (%s): %w", c.ID, c.Name, errors.Join(errs...))
	}
	return nil
}

// ParseConnections decodes, defaults and validates connection definitions.
func ParseConnections(r io.Reader) ([]ConnectionConfig, error) {
	var file connectionsFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("decode connections: %w", err)
	}
	if len(file.Connections) == 0 {
		return nil, errors.New("no connections defined")
	}
	seen := make(map[int]bool, len(file.Connections))
	for i := range file.Connections {
		c := &file.Connections[i]
		c.ApplyDefaults()
		if err := c.Validate(); err != nil {
			return nil, err
		}
		if seen[c.ID] {
			return nil, fmt.Errorf("duplicate connection id %d", c.ID)
		}
		seen[c.ID] = true
	}
	return file.Connections, nil
}

// LoadConnections reads connection definitions from a YAML file.
func LoadConnections(path string) ([]ConnectionConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseConnections(f)
}
