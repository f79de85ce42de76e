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
	path := filepath.Join(t.TempDir(), "eggscan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, `
scan:
  targets: ["minecraft:dragon_egg", " minecraft:beacon "]
  workers: 3
  chunk_workers: 5
  extension: .mca
  malformed_names: skip
logging:
  level: debug
  dir: logs
metrics:
  addr: ":2112"
telemetry:
  enabled: true
notify:
  nats_url: nats://localhost:4222
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, []string{"minecraft:dragon_egg", "minecraft:beacon"}, cfg.Scan.GetTargets())
	assert.Equal(t, 3, cfg.Scan.GetWorkers())
	assert.Equal(t, 5, cfg.Scan.GetChunkWorkers())
	assert.Equal(t, "mca", cfg.Scan.GetExtension())
	assert.Equal(t, "skip", cfg.Scan.GetMalformedNames())
	assert.Equal(t, "debug", cfg.Logging.GetLevel())
	assert.Equal(t, ":2112", cfg.Metrics.GetAddr())
	assert.True(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "nats://localhost:4222", cfg.Notify.GetNATSURL())
}

func TestLoadWithoutPath(t *testing.T) {
	t.Setenv("EGGSCAN_CONFIG", "")
	cfg, err := Load("")
	assert.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestLoadFromEnv(t *testing.T) {
	path := writeConfig(t, "scan:\n  workers: 9\n")
	t.Setenv("EGGSCAN_CONFIG", path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Scan.GetWorkers())
}

func TestLoadRejectsBadPolicy(t *testing.T) {
	path := writeConfig(t, "scan:\n  malformed_names: guess\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestDefaults(t *testing.T) {
	t.Setenv("EGGSCAN_WORKERS", "")
	t.Setenv("EGGSCAN_CHUNK_WORKERS", "")
	t.Setenv("EGGSCAN_LOG_LEVEL", "")
	t.Setenv("EGGSCAN_METRICS_ADDR", "")
	t.Setenv("EGGSCAN_NATS_URL", "")
	t.Setenv("EGGSCAN_NATS_SUBJECT", "")

	var cfg Config
	assert.Equal(t, []string{DefaultTarget}, cfg.Scan.GetTargets())
	assert.Greater(t, cfg.Scan.GetWorkers(), 0)
	assert.Equal(t, cfg.Scan.GetWorkers(), cfg.Scan.GetChunkWorkers())
	assert.Equal(t, "mca", cfg.Scan.GetExtension())
	assert.Equal(t, "fatal", cfg.Scan.GetMalformedNames())
	assert.Equal(t, "info", cfg.Logging.GetLevel())
	assert.Equal(t, "", cfg.Metrics.GetAddr())
	assert.Equal(t, "", cfg.Notify.GetNATSURL())
	assert.Equal(t, "eggscan.hits", cfg.Notify.GetSubject())
	assert.NoError(t, cfg.Validate())
}

func TestEnvFallback(t *testing.T) {
	t.Setenv("EGGSCAN_WORKERS", "6")
	t.Setenv("EGGSCAN_LOG_LEVEL", "warn")

	var cfg Config
	assert.Equal(t, 6, cfg.Scan.GetWorkers())
	assert.Equal(t, "warn", cfg.Logging.GetLevel())

	cfg.Scan.Workers = 2
	assert.Equal(t, 2, cfg.Scan.GetWorkers())
}
