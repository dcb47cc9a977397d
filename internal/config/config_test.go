package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(`
bulbs:
  - name: desk
    ip: 192.168.1.20
`))
	require.NoError(t, err)

	require.Len(t, cfg.Bulbs, 1)
	assert.Equal(t, 9999, cfg.Bulbs[0].Port)
	assert.Equal(t, 3*time.Second, cfg.Bulbs[0].Timeout.Duration())
	assert.Equal(t, "info", cfg.Log.GetLevel())
	assert.Equal(t, "./kl130d.sqlite", cfg.Database.Path)
	assert.Equal(t, 8080, cfg.API.Port)
	assert.Equal(t, 9090, cfg.Healthcheck.Port)
	assert.Equal(t, time.Duration(0), cfg.Poll.Interval.Duration())
	assert.Equal(t, 10.0, cfg.Exchange.RateLimitRPS)
	assert.Equal(t, 30*24*time.Hour, cfg.Ledger.Retention())
	assert.Equal(t, 5*time.Second, cfg.GetShutdownTimeout())
	assert.Equal(t, 4, cfg.EventBus.GetWorkers())
	assert.Equal(t, 100, cfg.EventBus.GetQueueSize())
}

func TestParse_Explicit(t *testing.T) {
	cfg, err := Parse([]byte(`
bulbs:
  - name: desk
    ip: 192.168.1.20
    port: 10999
    timeout: 500ms
log:
  level: debug
  json: true
poll:
  interval: 1m
api:
  enabled: true
  port: 8181
`))
	require.NoError(t, err)

	assert.Equal(t, 10999, cfg.Bulbs[0].Port)
	assert.Equal(t, 500*time.Millisecond, cfg.Bulbs[0].Timeout.Duration())
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.UseJSON)
	assert.Equal(t, time.Minute, cfg.Poll.Interval.Duration())
	assert.True(t, cfg.API.Enabled)
	assert.Equal(t, 8181, cfg.API.Port)
}

func TestParse_EnvExpansion(t *testing.T) {
	t.Setenv("KL130_TEST_IP", "10.0.0.7")

	cfg, err := Parse([]byte(`
bulbs:
  - name: desk
    ip: ${KL130_TEST_IP}
  - name: hall
    ip: ${KL130_TEST_UNSET:10.0.0.8}
`))
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.7", cfg.Bulbs[0].IP)
	assert.Equal(t, "10.0.0.8", cfg.Bulbs[1].IP)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "missing name", yaml: "bulbs:\n  - ip: 10.0.0.1\n"},
		{name: "bad ip", yaml: "bulbs:\n  - name: a\n    ip: bulb.local\n"},
		{name: "duplicate", yaml: "bulbs:\n  - name: a\n    ip: 10.0.0.1\n  - name: a\n    ip: 10.0.0.2\n"},
		{name: "bad port", yaml: "bulbs:\n  - name: a\n    ip: 10.0.0.1\n    port: 70000\n"},
		{name: "bad duration", yaml: "poll:\n  interval: soon\n"},
		{name: "ipv6", yaml: "bulbs:\n  - name: a\n    ip: \"fe80::1\"\n"},
		{name: "negative bulb timeout", yaml: "bulbs:\n  - name: a\n    ip: 10.0.0.1\n    timeout: -1s\n"},
		{name: "negative poll interval", yaml: "poll:\n  interval: -1m\n"},
		{name: "negative cleanup interval", yaml: "ledger:\n  cleanup_interval: -1h\n"},
		{name: "negative retention", yaml: "ledger:\n  retention_days: -3\n"},
		{name: "negative shutdown timeout", yaml: "shutdown_timeout: -5s\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("bulbs:\n  - name: desk\n    ip: 10.0.0.1\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "desk", cfg.Bulbs[0].Name)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
