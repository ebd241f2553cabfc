package config

// Config is the on-disk configuration (JSON or YAML).
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Server   ServerConfig   `json:"server"`
	Realtime RealtimeConfig `json:"realtime"`
	Sync     SyncConfig     `json:"sync"`
	Desktop  DesktopConfig  `json:"desktop"`
	Logging  LoggingConfig  `json:"logging"`
	Storage  *StorageConfig `json:"storage,omitempty"`
}

// ServerConfig identifies the backend and the user the engine runs for.
type ServerConfig struct {
	APIBase string `json:"api_base"`
	UserID  string `json:"user_id"`
	// Token is a bearer token (do not log).
	Token string `json:"token,omitempty"`
}

// RealtimeConfig controls the persistent event channel.
//
// Defaults (when fields are omitted/zero):
//   - reconnect_base: "1s"
//   - max_reconnect_attempts: 5
//   - handshake_timeout: "10s"
type RealtimeConfig struct {
	Endpoint             string `json:"endpoint"`
	ReconnectBase        string `json:"reconnect_base,omitempty"`
	MaxReconnectAttempts int    `json:"max_reconnect_attempts,omitempty"`
	HandshakeTimeout     string `json:"handshake_timeout,omitempty"`
}

// SyncConfig controls baseline fetching.
//
// Resync is either a cron expression ("*/5 * * * *", "@every 2m") or a plain
// duration ("5m"). Empty disables periodic resync; the baseline is still
// fetched on every connect.
type SyncConfig struct {
	BaselineLimit  int    `json:"baseline_limit,omitempty"`
	Resync         string `json:"resync,omitempty"`
	RequestTimeout string `json:"request_timeout,omitempty"`
}

// DesktopConfig controls desktop notifications.
//
// Driver values: "auto" (freedesktop when available, else log), "freedesktop",
// "log", "none".
type DesktopConfig struct {
	Enabled       bool    `json:"enabled"`
	Driver        string  `json:"driver,omitempty"`
	AppName       string  `json:"app_name,omitempty"`
	Icon          string  `json:"icon,omitempty"`
	AutoDismiss   string  `json:"auto_dismiss,omitempty"`
	RatePerSec    float64 `json:"rate_per_sec,omitempty"`
	PersistSeen   bool    `json:"persist_seen,omitempty"`
	SeenRetention string  `json:"seen_retention,omitempty"`
}

// LoggingConfig format is "console" (default) or "json" for stdout.
type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	Format  string      `json:"format,omitempty"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig controls the optional persistence layer.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./state/notifysync.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}
