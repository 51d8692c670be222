package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, BackendPostgres, cfg.Store.Backend)
	assert.Equal(t, 80.0, cfg.Alerts.WarningPct)
	assert.Equal(t, 95.0, cfg.Alerts.FullPct)
	assert.Equal(t, 10*time.Second, cfg.Simulator.Interval)
	assert.Len(t, cfg.Simulator.Bins, 2)
	assert.Equal(t, 3, cfg.Summary.RetryCount)
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  port: "9090"
store:
  backend: memory
simulator:
  enabled: true
  interval_seconds: 3
alerts:
  warning_pct: 70
  full_pct: 90
`)
	t.Setenv("PORT", "7070")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "7070", cfg.Server.Port)
	assert.Equal(t, BackendMemory, cfg.Store.Backend)
	assert.True(t, cfg.Simulator.Enabled)
	assert.Equal(t, 3*time.Second, cfg.Simulator.Interval)
	assert.Equal(t, 70.0, cfg.Alerts.WarningPct)
	assert.True(t, cfg.Kafka.Enabled)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	testCases := []struct {
		name string
		body string
	}{
		{"unknown backend", "store:\n  backend: mongo\n"},
		{"warning above full", "alerts:\n  warning_pct: 96\n  full_pct: 95\n"},
		{"threshold out of range", "alerts:\n  warning_pct: 80\n  full_pct: 120\n"},
		{"bad weekday", "summary:\n  weekday: someday\n"},
		{"bad hour", "summary:\n  hour: 25\n"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			assert.Error(t, err)
		})
	}
}

func TestSummaryConfig_ParsedWeekday(t *testing.T) {
	d, err := SummaryConfig{Weekday: "Wednesday"}.ParsedWeekday()
	require.NoError(t, err)
	assert.Equal(t, time.Wednesday, d)
}
