// Package config loads per-connection configuration from a YAML document,
// the way the teacher's own ecosystem favors for connection/daemon config
// (spec.md §6 "Configuration"; SPEC_FULL §10).
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/go-i2p/tnlconn/conn"
)

// Config is the YAML-serializable per-connection configuration (spec.md
// §6): keep-alive timing and the simulated-network hooks of §4.10. The
// symmetric cipher itself is installed programmatically
// (Connection.SetSymmetricCipher) rather than carried in config, since key
// material is handshake output, not static configuration.
type Config struct {
	PingTimeoutMS       int64   `yaml:"ping_timeout_ms"`
	PingRetryCount      uint32  `yaml:"ping_retry_count"`
	SimulatedPacketLoss float64 `yaml:"simulated_packet_loss"`
	SimulatedLatencyMS  int64   `yaml:"simulated_latency_ms"`
	TickIntervalMS      int64   `yaml:"tick_interval_ms"`
}

// Default returns the configuration matching spec.md §4.8's defaults
// exactly (conn.DefaultPingTimeout, conn.DefaultPingRetryCount) with no
// simulated loss or latency.
func Default() Config {
	return Config{
		PingTimeoutMS:  conn.DefaultPingTimeout.Milliseconds(),
		PingRetryCount: conn.DefaultPingRetryCount,
		TickIntervalMS: 250,
	}
}

// Load reads and parses a YAML configuration file, filling in Default()
// values for any field the document omits.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a YAML document into a Config, starting from Default() so
// a partial document only overrides the fields it sets.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse: %w", err)
	}
	return cfg, nil
}

// PingTimeout returns the configured ping timeout as a time.Duration.
func (c Config) PingTimeout() time.Duration {
	return time.Duration(c.PingTimeoutMS) * time.Millisecond
}

// SimulatedLatency returns the configured simulated send latency as a
// time.Duration.
func (c Config) SimulatedLatency() time.Duration {
	return time.Duration(c.SimulatedLatencyMS) * time.Millisecond
}

// TickInterval returns the configured host tick interval as a
// time.Duration.
func (c Config) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalMS) * time.Millisecond
}

// ApplyKeepAlive mutates a conn.KeepAlive's exported fields to reflect this
// configuration. Called once by the handshake driver right after a
// Connection is constructed.
func (c Config) ApplyKeepAlive(ka *conn.KeepAlive) {
	ka.PingTimeout = c.PingTimeout()
	ka.PingRetryCount = c.PingRetryCount
}
