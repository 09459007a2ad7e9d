package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	tmpFile, err := os.CreateTemp("", "walletmon-config-*.yaml")
	require.NoError(t, err)
	t.Cleanup(func() { os.Remove(tmpFile.Name()) })

	_, err = tmpFile.WriteString(body)
	require.NoError(t, err)
	tmpFile.Close()
	return tmpFile.Name()
}

func TestLoadConfig(t *testing.T) {
	yaml := `
general:
  instance_id: "test-node"
  environment: "development"
  log_level: "debug"

solana:
  rpc_endpoint: "https://rpc.example.com"
  timeout: 3s

helius:
  api_key: "key-1"
  webhook_url: "https://hooks.example.com/api/webhooks/helius"

monitor:
  poll_interval: 30s
  tx_fetch_limit: 25

storage:
  driver: postgres
  postgres_dsn: "postgres://u:p@localhost:5432/walletmon"
`
	cfg, err := Load(writeTempConfig(t, yaml))
	require.NoError(t, err)

	assert.Equal(t, "test-node", cfg.General.InstanceID)
	assert.Equal(t, "debug", cfg.General.LogLevel)
	assert.Equal(t, "https://rpc.example.com", cfg.Solana.RPCEndpoint)
	assert.Equal(t, 3*time.Second, cfg.Solana.Timeout)
	assert.Equal(t, 30*time.Second, cfg.Monitor.PollInterval)
	assert.Equal(t, 25, cfg.Monitor.TxFetchLimit)
	assert.Equal(t, "postgres", cfg.Storage.Driver)
	assert.True(t, cfg.PushAvailable())
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := Load(writeTempConfig(t, "general:\n  log_level: info\n"))
	require.NoError(t, err)

	assert.Equal(t, "walletmon-1", cfg.General.InstanceID)
	assert.Equal(t, "json", cfg.General.LogFormat)
	assert.Equal(t, 8.0, cfg.RateLimit.RPS)
	assert.Equal(t, 8, cfg.RateLimit.Burst)
	assert.Equal(t, int64(33000), cfg.RateLimit.DailyBudget)
	assert.Equal(t, int64(5), cfg.RateLimit.CostPerCall)
	assert.Equal(t, 200, cfg.Cache.MaxEntries)
	assert.Equal(t, 60*time.Second, cfg.Cache.TTL)
	assert.Equal(t, 120*time.Second, cfg.Monitor.PollInterval)
	assert.Equal(t, 5*time.Second, cfg.Monitor.WebhookInitDelay)
	assert.Equal(t, 10, cfg.Monitor.TxFetchLimit)
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.False(t, cfg.PushAvailable())
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigEnvExpansion(t *testing.T) {
	t.Setenv("TEST_WALLETMON_HELIUS_KEY", "env-key")

	cfg, err := Load(writeTempConfig(t, "helius:\n  api_key: \"${TEST_WALLETMON_HELIUS_KEY}\"\n"))
	require.NoError(t, err)

	assert.Equal(t, "env-key", cfg.Helius.APIKey)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/walletmon.yaml")
	assert.Error(t, err)
}

func TestValidate_Rejects(t *testing.T) {
	cfg, err := Load(writeTempConfig(t, "storage:\n  driver: postgres\n"))
	require.NoError(t, err)
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres_dsn")

	cfg.Storage.Driver = "sqlite"
	assert.Error(t, cfg.Validate())

	cfg.Storage.Driver = "memory"
	cfg.Helius.WebhookURL = "https://hooks.example.com"
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_key")
}
