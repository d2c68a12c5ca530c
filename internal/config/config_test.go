package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.Executor.DefaultTimeout)
	assert.Equal(t, 10, cfg.Batch.ConcurrencyLimit)
	assert.True(t, cfg.Healing.AutoSave)
	assert.Equal(t, "workflows/backups", cfg.Storage.BackupDir)
	assert.Equal(t, 30, cfg.Storage.RetentionDays)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("MENDER_BATCH__CONCURRENCY_LIMIT", "4")
	t.Setenv("MENDER_EXECUTOR__DEFAULT_TIMEOUT", "5s")
	t.Setenv("MENDER_EXECUTOR__HEALING_ENABLED", "false")
	t.Setenv("MENDER_DATABASE_URL", "postgres://mender@localhost/mender")
	t.Setenv("MENDER_OPENAI__API_KEY", "sk-test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Batch.ConcurrencyLimit)
	assert.Equal(t, 5*time.Second, cfg.Executor.DefaultTimeout)
	assert.False(t, cfg.Executor.HealingEnabled)
	assert.Equal(t, "postgres://mender@localhost/mender", cfg.DatabaseURL)
	assert.True(t, cfg.OpenAI.Enabled())
}

func TestLoad_AzureFallback(t *testing.T) {
	t.Setenv("AZURE_OPENAI_API_KEY", "azure-key")
	t.Setenv("AZURE_OPENAI_ENDPOINT", "https://mender.openai.azure.com/openai/v1")
	t.Setenv("AZURE_OPENAI_DEPLOYMENT_NAME", "gpt-4o")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "azure-key", cfg.OpenAI.APIKey)
	assert.Equal(t, "https://mender.openai.azure.com/openai/v1", cfg.OpenAI.BaseURL)
	assert.Equal(t, "gpt-4o", cfg.OpenAI.Model)

	t.Setenv("MENDER_OPENAI__MODEL", "gpt-4.1-mini")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, "gpt-4.1-mini", cfg.OpenAI.Model)
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("MENDER_BATCH__CONCURRENCY_LIMIT", "0")

	_, err := Load()
	require.ErrorIs(t, err, ErrInvalid)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, Validate(&cfg))

	cfg.Storage.LogsDir = ""
	require.ErrorIs(t, Validate(&cfg), ErrInvalid)
}
