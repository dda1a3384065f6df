// Package config loads the gateway configuration file. Parsing happens
// once at startup in the gateway binary; the core packages only ever see
// the parsed structures. A configuration that fails to load or validate
// is the one fatal startup condition the gateway has.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sensilo/sensilo/internal/sink"
)

// Device is one known node entry.
type Device struct {
	Name     string `json:"name"`
	HexAddr  string `json:"hex_addr"`
	Location string `json:"location,omitempty"`
}

// Batch tunes the ingest pipeline's batching and retry behavior. Zero
// values fall back to the pipeline defaults.
type Batch struct {
	MaxSize         int `json:"max_size,omitempty"`
	FlushIntervalMS int `json:"flush_interval_ms,omitempty"`
	MaxAttempts     int `json:"max_attempts,omitempty"`
	BaseDelayMS     int `json:"base_delay_ms,omitempty"`
}

// Config is the gateway's parsed configuration.
type Config struct {
	// Exactly one sink is selected by name.
	Sink   string            `json:"sink"` // "influx", "sqlite" or "log"
	Influx sink.InfluxConfig `json:"influx,omitempty"`
	Sqlite struct {
		Path string `json:"path,omitempty"`
	} `json:"sqlite,omitempty"`

	// Capture source; the first non-empty of PcapFile, PcapIface,
	// SerialPort and ListenUDP wins.
	ListenUDP  string `json:"listen_udp,omitempty"`
	SerialPort string `json:"serial_port,omitempty"`
	SerialBaud int    `json:"serial_baud,omitempty"`
	PcapFile   string `json:"pcap_file,omitempty"`
	PcapIface  string `json:"pcap_iface,omitempty"`

	QueueSize int      `json:"queue_size,omitempty"`
	Batch     Batch    `json:"batch,omitempty"`
	Devices   []Device `json:"devices"`
}

// Load reads and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate checks the invariants the core components rely on.
func (c *Config) Validate() error {
	if len(c.Devices) == 0 {
		return fmt.Errorf("at least one device is required")
	}
	if c.ListenUDP == "" && c.SerialPort == "" && c.PcapFile == "" && c.PcapIface == "" {
		return fmt.Errorf("a capture source is required (listen_udp, serial_port, pcap_file or pcap_iface)")
	}
	switch c.Sink {
	case "influx":
		if c.Influx.URL == "" || c.Influx.Database == "" {
			return fmt.Errorf("influx sink needs url and database")
		}
	case "sqlite":
		if c.Sqlite.Path == "" {
			return fmt.Errorf("sqlite sink needs a path")
		}
	case "log":
	case "":
		return fmt.Errorf("a sink is required (influx, sqlite or log)")
	default:
		return fmt.Errorf("unknown sink %q", c.Sink)
	}
	return nil
}
