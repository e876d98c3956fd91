package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chTempDir(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(origDir) })
}

func TestLoadDefaults(t *testing.T) {
	chTempDir(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "https://api.hubapi.com", cfg.HubSpot.BaseURL)
	assert.InDelta(t, 8, cfg.HubSpot.RateLimit, 0.001)
	assert.Equal(t, "text-embedding-3-small", cfg.OpenAI.EmbeddingModel)
	assert.Equal(t, "claude-haiku-4-5-20251001", cfg.Anthropic.Model)
	assert.Equal(t, "anthropic", cfg.Oracle.Provider)
	assert.Equal(t, 100, cfg.Sync.PageSize)
	assert.Equal(t, 250, cfg.Sync.PageDelayMS)
	assert.Equal(t, 10000, cfg.Sync.MaxRecords)
	assert.Empty(t, cfg.Sync.DealStages)
	assert.Equal(t, 5, cfg.Scoring.TopK)
	assert.Equal(t, 1, cfg.Scoring.QueueConcurrency)
	assert.InDelta(t, 0.80, cfg.Pricing.Completion["claude-haiku-4-5-20251001"].Input, 0.001)
	assert.InDelta(t, 0.02, cfg.Pricing.Embedding["text-embedding-3-small"], 0.001)
}

func TestLoadFromYAML(t *testing.T) {
	chTempDir(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
  format: console
server:
  port: 9090
scoring:
  top_k: 8
`
	dir, _ := os.Getwd()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 8, cfg.Scoring.TopK)
	// Defaults still apply for unset values
	assert.Equal(t, 100, cfg.Sync.PageSize)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	chTempDir(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	dir, _ := os.Getwd()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("FITSCORE_STORE_DRIVER", "postgres")
	t.Setenv("FITSCORE_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chTempDir(t)

	t.Setenv("FITSCORE_SERVER_PORT", "3000")
	t.Setenv("FITSCORE_HUBSPOT_CLIENT_ID", "app-123")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "app-123", cfg.HubSpot.ClientID)
}

// validConfig returns a Config that passes every mode's validation.
func validConfig() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "postgres"
	cfg.Store.DatabaseURL = "postgres://localhost/fitscore"
	cfg.Crypto.Key = "0123456789abcdef0123456789abcdef"
	cfg.HubSpot.ClientID = "app-123"
	cfg.HubSpot.ClientSecret = "secret"
	cfg.OpenAI.Key = "sk-openai"
	cfg.Anthropic.Key = "sk-ant"
	cfg.Oracle.Provider = "anthropic"
	cfg.Pinecone.Key = "pc-key"
	cfg.Pinecone.Index = "fitscore"
	cfg.Server.Port = 8080
	cfg.Scoring.QueueConcurrency = 1
	return cfg
}

func TestValidateSync_AllPresent(t *testing.T) {
	assert.NoError(t, validConfig().Validate("sync"))
}

func TestValidateSync_MissingFields(t *testing.T) {
	cfg := &Config{}
	cfg.Store.Driver = "postgres"

	err := cfg.Validate("sync")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")
	assert.Contains(t, err.Error(), "hubspot.client_id is required")
	assert.Contains(t, err.Error(), "openai.key is required")
	assert.Contains(t, err.Error(), "pinecone.key is required")
}

func TestValidateScore_OpenAIProviderSkipsAnthropicKey(t *testing.T) {
	cfg := validConfig()
	cfg.Oracle.Provider = "openai"
	cfg.Anthropic.Key = ""

	assert.NoError(t, cfg.Validate("score"))
}

func TestValidateMigrate_OnlyNeedsStore(t *testing.T) {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	assert.NoError(t, cfg.Validate("migrate"))
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateUnknownMode(t *testing.T) {
	err := validConfig().Validate("unknown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateConcurrencyBounds(t *testing.T) {
	cfg := validConfig()

	cfg.Scoring.QueueConcurrency = 17
	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue_concurrency must be between 0 and 16")

	cfg.Scoring.QueueConcurrency = 16
	assert.NoError(t, cfg.Validate("serve"))
}

func TestInitLoggerConsole(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "info", Format: "json"}))
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	assert.Error(t, InitLogger(LogConfig{Level: "invalid", Format: "json"}))
}
