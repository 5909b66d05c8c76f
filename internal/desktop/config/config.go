package config

import "time"

// Config holds runtime settings for the standalone desktop data layer.
//
// Fields:
//   - ServerEndpointAddr: base URL of the hosted platform's sync API.
//   - DatabasePath: location of the local SQLite database file.
//   - LogPath: rotating log file location; empty logs to stderr only.
//   - EncryptionSecret: installation secret for at-rest document encryption;
//     empty disables encryption (development only).
//   - SyncInitialDelay: one-time delay before the first sync after sign-in.
//   - SyncInterval: fixed period between sync cycles.
//   - SyncTimeout: hard budget for one cycle.
//   - ShutdownGrace: budget for the best-effort final sync on exit.
type Config struct {
	ServerEndpointAddr string
	DatabasePath       string
	LogPath            string
	EncryptionSecret   string
	SyncInitialDelay   time.Duration
	SyncInterval       time.Duration
	SyncTimeout        time.Duration
	ShutdownGrace      time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "https://api.dealerdesk.app"
	c.DatabasePath = "dealerdesk.db"
	c.LogPath = "dealerdesk.log"
	c.SyncInitialDelay = 30 * time.Second
	c.SyncInterval = 5 * time.Minute
	c.SyncTimeout = 2 * time.Minute
	c.ShutdownGrace = 10 * time.Second
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// the environment (including a .env file if present), a JSON file, and
// command-line flags. Later sources take precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseEnv(cfg)
	parseJSON(cfg)
	parseFlags(cfg)
	return cfg
}
