package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-i2p/tnlconn/conn"
)

func TestDefaultMatchesSpecDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, conn.DefaultPingTimeout, cfg.PingTimeout())
	assert.Equal(t, uint32(conn.DefaultPingRetryCount), cfg.PingRetryCount)
	assert.Zero(t, cfg.SimulatedPacketLoss)
}

func TestParsePartialDocumentKeepsDefaults(t *testing.T) {
	cfg, err := Parse([]byte("simulated_packet_loss: 0.1\n"))
	require.NoError(t, err)
	assert.Equal(t, 0.1, cfg.SimulatedPacketLoss)
	assert.Equal(t, conn.DefaultPingTimeout, cfg.PingTimeout())
}

func TestParseFullDocument(t *testing.T) {
	doc := []byte(`
ping_timeout_ms: 2000
ping_retry_count: 3
simulated_packet_loss: 0.05
simulated_latency_ms: 50
tick_interval_ms: 100
`)
	cfg, err := Parse(doc)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, cfg.PingTimeout())
	assert.Equal(t, uint32(3), cfg.PingRetryCount)
	assert.Equal(t, 50*time.Millisecond, cfg.SimulatedLatency())
	assert.Equal(t, 100*time.Millisecond, cfg.TickInterval())
}

func TestApplyKeepAlive(t *testing.T) {
	cfg, err := Parse([]byte("ping_timeout_ms: 1234\nping_retry_count: 7\n"))
	require.NoError(t, err)

	ka := conn.NewKeepAlive()
	cfg.ApplyKeepAlive(ka)
	assert.Equal(t, 1234*time.Millisecond, ka.PingTimeout)
	assert.Equal(t, uint32(7), ka.PingRetryCount)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/does-not-exist.yaml")
	assert.Error(t, err)
}
