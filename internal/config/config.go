package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config holds all runtime configuration for the rolesync server.
type Config struct {
	// HTTP listener for the webhook/health endpoints
	ListenAddr string
	// Dedicated listener for Prometheus metrics
	MetricsAddr string

	// Discord (membership directory)
	DiscordToken string
	GuildID      string

	// Google Sheets (purchase ledger)
	SpreadsheetID       string
	SheetName           string
	GoogleCredentials   string // path to service-account JSON key
	LedgerTimeout       time.Duration

	// Product catalog file (JSON), loaded once at startup
	CatalogPath string

	// Optional bcrypt hash of the webhook bearer token. Empty disables auth.
	WebhookTokenHash string

	// Reconciliation worker pool bound
	MaxConcurrentReconciles int

	// History store
	DataPath             string
	HistoryRetentionDays int

	LogLevel  string
	LogFormat string
}

// Load builds configuration from the environment, with .env autoload for
// development setups.
func Load() (*Config, error) {
	if err := godotenv.Load(); err == nil {
		log.Info().Msg("Loaded configuration from .env in current directory")
	}

	cfg := &Config{
		ListenAddr:              getEnv("ROLESYNC_LISTEN", ":8080"),
		MetricsAddr:             getEnv("ROLESYNC_METRICS_LISTEN", ":9091"),
		DiscordToken:            os.Getenv("DISCORD_TOKEN"),
		GuildID:                 os.Getenv("DISCORD_GUILD_ID"),
		SpreadsheetID:           os.Getenv("LEDGER_SPREADSHEET_ID"),
		SheetName:               getEnv("LEDGER_SHEET_NAME", "Purchases"),
		GoogleCredentials:       os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"),
		LedgerTimeout:           getEnvDuration("LEDGER_TIMEOUT", 30*time.Second),
		CatalogPath:             getEnv("ROLESYNC_CATALOG_PATH", "catalog.json"),
		WebhookTokenHash:        os.Getenv("ROLESYNC_WEBHOOK_TOKEN_HASH"),
		MaxConcurrentReconciles: getEnvInt("ROLESYNC_MAX_CONCURRENT", 8),
		DataPath:                getEnv("ROLESYNC_DATA_PATH", "/var/lib/rolesync"),
		HistoryRetentionDays:    getEnvInt("ROLESYNC_HISTORY_RETENTION_DAYS", 90),
		LogLevel:                getEnv("LOG_LEVEL", "info"),
		LogFormat:               getEnv("LOG_FORMAT", "auto"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that required settings are present.
func (c *Config) Validate() error {
	var missing []string
	if c.DiscordToken == "" {
		missing = append(missing, "DISCORD_TOKEN")
	}
	if c.GuildID == "" {
		missing = append(missing, "DISCORD_GUILD_ID")
	}
	if c.SpreadsheetID == "" {
		missing = append(missing, "LEDGER_SPREADSHEET_ID")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	if c.MaxConcurrentReconciles < 1 {
		return fmt.Errorf("ROLESYNC_MAX_CONCURRENT must be at least 1")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		log.Warn().Str("key", key).Str("value", value).Msg("Invalid integer in environment, using default")
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		log.Warn().Str("key", key).Str("value", value).Msg("Invalid duration in environment, using default")
		return fallback
	}
	return parsed
}
