package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

// parseEnv overlays Config with environment variables. A .env file in the
// working directory is loaded first if present; real environment variables
// still win over it (godotenv never overrides existing ones).
func parseEnv(cfg *Config) {
	_ = godotenv.Load()

	if v := os.Getenv("DEALERDESK_SERVER_ADDR"); v != "" {
		cfg.ServerEndpointAddr = v
	}
	if v := os.Getenv("DEALERDESK_DB_PATH"); v != "" {
		cfg.DatabasePath = v
	}
	if v := os.Getenv("DEALERDESK_LOG_PATH"); v != "" {
		cfg.LogPath = v
	}
	if v := os.Getenv("DEALERDESK_ENCRYPTION_SECRET"); v != "" {
		cfg.EncryptionSecret = v
	}
	envDuration("DEALERDESK_SYNC_INITIAL_DELAY", &cfg.SyncInitialDelay)
	envDuration("DEALERDESK_SYNC_INTERVAL", &cfg.SyncInterval)
	envDuration("DEALERDESK_SYNC_TIMEOUT", &cfg.SyncTimeout)
	envDuration("DEALERDESK_SHUTDOWN_GRACE", &cfg.ShutdownGrace)
}

func envDuration(key string, dst *time.Duration) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil {
		*dst = d
	}
}
