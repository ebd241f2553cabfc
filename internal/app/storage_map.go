package app

import (
	"fmt"
	"strings"
	"time"

	"notifysync/internal/config"
	"notifysync/internal/storage"
)

// mapStorageConfig resolves the storage section. ok is false when audit and
// seen-state persistence are turned off.
func mapStorageConfig(cfg *Config) (sc storage.Config, ok bool, err error) {
	if cfg == nil || cfg.Storage == nil {
		return sc, false, nil
	}
	raw := cfg.Storage
	switch d := strings.ToLower(strings.TrimSpace(raw.Driver)); d {
	case "", "none":
		return sc, false, nil
	case "file":
		sc.Driver = "file"
	case "sqlite", "sqlite3":
		sc.Driver = "sqlite"
		if sc.BusyTimeout, err = config.ParseDurationOrDefault("storage.busy_timeout", raw.BusyTimeout, time.Second); err != nil {
			return storage.Config{}, false, err
		}
	default:
		return sc, false, fmt.Errorf("unknown storage.driver: %s", raw.Driver)
	}
	if sc.Path = strings.TrimSpace(raw.Path); sc.Path == "" {
		return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=%s", sc.Driver)
	}
	return sc, true, nil
}
