package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:8080", cfg.App.Addr())
	assert.Equal(t, 2*time.Hour, cfg.SLA.RiskWindow)
	assert.Equal(t, 30*time.Second, cfg.App.RequestTimeout())
	assert.False(t, cfg.Kafka.Enabled)
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
app:
  port: "9090"
sla:
  risk_window: 30m
  auto_escalate: true
kafka:
  enabled: true
  brokers: ["k1:9092"]
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("APP_PORT", "7070")
	t.Setenv("KAFKA_BROKERS", "a:1, b:2")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "7070", cfg.App.Port)
	assert.Equal(t, 30*time.Minute, cfg.SLA.RiskWindow)
	assert.True(t, cfg.SLA.AutoEscalate)
	assert.True(t, cfg.Kafka.Enabled)
	assert.Equal(t, []string{"a:1", "b:2"}, cfg.Kafka.Brokers)
}

func TestLoad_InvalidRedisDB(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("REDIS_DB", "zero")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("app: [unterminated"), 0o600))
	t.Setenv("CONFIG_FILE", path)

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_BootstrapAdminFromEnv(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.Auth.BootstrapEnabled())
	assert.Equal(t, "default", cfg.Auth.BootstrapTenant)

	t.Setenv("AUTH_BOOTSTRAP_ADMIN_EMAIL", "root@acme.test")
	t.Setenv("AUTH_BOOTSTRAP_ADMIN_PASSWORD", "bootstrap-pass")
	t.Setenv("AUTH_BOOTSTRAP_TENANT", "acme")

	cfg, err = Load()
	require.NoError(t, err)
	assert.True(t, cfg.Auth.BootstrapEnabled())
	assert.Equal(t, "root@acme.test", cfg.Auth.BootstrapAdminEmail)
	assert.Equal(t, "bootstrap-pass", cfg.Auth.BootstrapAdminPassword)
	assert.Equal(t, "acme", cfg.Auth.BootstrapTenant)
}
