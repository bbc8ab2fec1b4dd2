package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DISCORD_TOKEN", "bot-token")
	t.Setenv("DISCORD_GUILD_ID", "guild-1")
	t.Setenv("LEDGER_SPREADSHEET_ID", "sheet-1")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, ":9091", cfg.MetricsAddr)
	assert.Equal(t, "Purchases", cfg.SheetName)
	assert.Equal(t, 30*time.Second, cfg.LedgerTimeout)
	assert.Equal(t, 8, cfg.MaxConcurrentReconciles)
	assert.Equal(t, 90, cfg.HistoryRetentionDays)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ROLESYNC_LISTEN", ":9999")
	t.Setenv("LEDGER_TIMEOUT", "5s")
	t.Setenv("ROLESYNC_MAX_CONCURRENT", "2")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.ListenAddr)
	assert.Equal(t, 5*time.Second, cfg.LedgerTimeout)
	assert.Equal(t, 2, cfg.MaxConcurrentReconciles)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestValidateMissingRequired(t *testing.T) {
	cfg := &Config{MaxConcurrentReconciles: 1}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DISCORD_TOKEN")
	assert.Contains(t, err.Error(), "DISCORD_GUILD_ID")
	assert.Contains(t, err.Error(), "LEDGER_SPREADSHEET_ID")
}
