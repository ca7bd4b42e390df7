package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thrillee/smppsim/internal/charset"
	"github.com/thrillee/smppsim/pkg/codes"
)

const sample = `
connections:
  - id: 1
    name: local-smsc
    role: smsc
    port: 2775
    system_id: esme1
    password: secret
    delivery_receipt: true
  - id: 2
    name: upstream
    role: ESME
    bind_option: Transmitter
    host: 127.0.0.1
    port: 2775
    system_id: esme1
    password: secret
    encoding: ucs2
    concat_mode: segment_tlv
    response_timeout: 3s
    source: {ton: 5, npi: 0, address: SIM}
`

func TestParseConnections(t *testing.T) {
	conns, err := ParseConnections(strings.NewReader(sample))
	require.NoError(t, err)
	require.Len(t, conns, 2)

	smsc := conns[0]
	assert.Equal(t, RoleSMSC, smsc.Role)
	assert.Equal(t, BindTransceiver, smsc.BindOption)
	assert.Equal(t, "0.0.0.0:2775", smsc.Addr())
	assert.Equal(t, codes.ConcatHeader, smsc.ConcatMode)
	assert.Equal(t, DefaultWorkerPoolSize, smsc.WorkerPoolSize)
	assert.Equal(t, DefaultResponseTimeout, smsc.ResponseTimeout)
	assert.Equal(t, DefaultEnquireLink, smsc.EnquireLink)
	assert.True(t, smsc.DeliveryReceipt)

	esme := conns[1]
	assert.Equal(t, BindTransmitter, esme.BindOption)
	assert.Equal(t, codes.ConcatSegmentTLV, esme.ConcatMode)
	assert.Equal(t, 3*time.Second, esme.ResponseTimeout)
	assert.Equal(t, byte(5), esme.Source.TON)
	assert.Equal(t, "SIM", esme.Source.Address)
	enc, ok := esme.DeclaredEncoding()
	require.True(t, ok)
	assert.Equal(t, charset.UTF16BE, enc)
}

func TestParseConnectionsInvalid(t *testing.T) {
	cases := map[string]string{
		"role":     "connections:\n  - {id: 1, role: PEER, host: h, port: 1, system_id: a, password: b}\n",
		"bind":     "connections:\n  - {id: 1, role: ESME, bind_option: both, host: h, port: 1, system_id: a, password: b}\n",
		"host":     "connections:\n  - {id: 1, role: ESME, port: 1, system_id: a, password: b}\n",
		"creds":    "connections:\n  - {id: 1, role: ESME, host: h, port: 1}\n",
		"dup":      "connections:\n  - {id: 1, role: ESME, host: h, port: 1, system_id: a, password: b}\n  - {id: 1, role: ESME, host: h, port: 2, system_id: a, password: b}\n",
		"empty":    "connections: []\n",
		"encoding": "connections:\n  - {id: 1, role: ESME, host: h, port: 1, system_id: a, password: b, encoding: klingon}\n",
	}
	for name, doc := range cases {
		_, err := ParseConnections(strings.NewReader(doc))
		assert.Error(t, err, name)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE_BACKEND", "redis")
	t.Setenv("REASSEMBLY_STALE_TIMEOUT", "2m")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "redis", cfg.Store.Backend)
	assert.Equal(t, 2*time.Minute, cfg.Reassembly.StaleTimeout)
	assert.Equal(t, 30*time.Second, cfg.Reassembly.ReapInterval)
	assert.Equal(t, ":8081", cfg.API.Addr)
	assert.Equal(t, "info", cfg.LogLevel)
}
