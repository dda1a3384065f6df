package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gateway.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `{
		"sink": "influx",
		"influx": {"url": "http://localhost:8086", "database": "sensilo", "user": "gw", "pass": "pw"},
		"listen_udp": ":9871",
		"queue_size": 128,
		"batch": {"max_size": 32, "flush_interval_ms": 2000},
		"devices": [
			{"name": "Sensilo1", "hex_addr": "864fe067997a", "location": "Kitchen"},
			{"name": "Sensilo2", "hex_addr": "aabbccddeeff"}
		]
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "influx", cfg.Sink)
	assert.Equal(t, "sensilo", cfg.Influx.Database)
	assert.Equal(t, ":9871", cfg.ListenUDP)
	assert.Equal(t, 128, cfg.QueueSize)
	assert.Equal(t, 32, cfg.Batch.MaxSize)
	require.Len(t, cfg.Devices, 2)
	assert.Equal(t, "Kitchen", cfg.Devices[0].Location)
	assert.Empty(t, cfg.Devices[1].Location)
}

func TestLoadFailures(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"invalid json", `{`},
		{"no devices", `{"sink": "log", "listen_udp": ":9871", "devices": []}`},
		{"no source", `{"sink": "log", "devices": [{"name": "a", "hex_addr": "864fe067997a"}]}`},
		{"no sink", `{"listen_udp": ":9871", "devices": [{"name": "a", "hex_addr": "864fe067997a"}]}`},
		{"unknown sink", `{"sink": "kafka", "listen_udp": ":9871", "devices": [{"name": "a", "hex_addr": "864fe067997a"}]}`},
		{"influx missing database", `{"sink": "influx", "influx": {"url": "http://x"}, "listen_udp": ":9871", "devices": [{"name": "a", "hex_addr": "864fe067997a"}]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
