package config

import (
	"encoding/json"
	"os"

	"github.com/dealersoft/dealerdesk/internal/flagx"
	"github.com/dealersoft/dealerdesk/internal/timex"
)

// jsonConfig is a DTO used exclusively for JSON unmarshalling. It relies on
// timex.Duration so the file can specify intervals either as strings like
// "5m" or as integer nanoseconds.
type jsonConfig struct {
	ServerEndpointAddr string          `json:"server_endpoint_addr"`
	DatabasePath       string          `json:"database_path"`
	LogPath            string          `json:"log_path"`
	EncryptionSecret   string          `json:"encryption_secret"`
	SyncInitialDelay   *timex.Duration `json:"sync_initial_delay"`
	SyncInterval       *timex.Duration `json:"sync_interval"`
	SyncTimeout        *timex.Duration `json:"sync_timeout"`
	ShutdownGrace      *timex.Duration `json:"shutdown_grace"`
}

// parseJSON overlays Config with values from the JSON file named by -c or
// -config. Absent file path means no JSON overlay; unreadable or malformed
// content panics, since running with a half-applied config is worse than not
// starting.
func parseJSON(cfg *Config) {
	path := flagx.JSONConfigFile()
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}
	var jc jsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.ServerEndpointAddr != "" {
		cfg.ServerEndpointAddr = jc.ServerEndpointAddr
	}
	if jc.DatabasePath != "" {
		cfg.DatabasePath = jc.DatabasePath
	}
	if jc.LogPath != "" {
		cfg.LogPath = jc.LogPath
	}
	if jc.EncryptionSecret != "" {
		cfg.EncryptionSecret = jc.EncryptionSecret
	}
	if jc.SyncInitialDelay != nil {
		cfg.SyncInitialDelay = jc.SyncInitialDelay.Duration
	}
	if jc.SyncInterval != nil {
		cfg.SyncInterval = jc.SyncInterval.Duration
	}
	if jc.SyncTimeout != nil {
		cfg.SyncTimeout = jc.SyncTimeout.Duration
	}
	if jc.ShutdownGrace != nil {
		cfg.ShutdownGrace = jc.ShutdownGrace.Duration
	}
}
