package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	logx "notifysync/pkg/logx"
)

// Validate checks the fields the engine cannot run without and every
// duration field.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error

	if strings.TrimSpace(cfg.Server.UserID) == "" {
		errs = append(errs, errors.New("server.user_id is required"))
	}
	if err := checkURL("server.api_base", cfg.Server.APIBase, "http", "https"); err != nil {
		errs = append(errs, err)
	}
	if err := checkURL("realtime.endpoint", cfg.Realtime.Endpoint, "ws", "wss", "http", "https"); err != nil {
		errs = append(errs, err)
	}
	if cfg.Realtime.MaxReconnectAttempts < 0 {
		errs = append(errs, errors.New("realtime.max_reconnect_attempts must be >= 0"))
	}
	if cfg.Sync.BaselineLimit < 0 {
		errs = append(errs, errors.New("sync.baseline_limit must be >= 0"))
	}
	if cfg.Desktop.RatePerSec < 0 {
		errs = append(errs, errors.New("desktop.rate_per_sec must be >= 0"))
	}
	if !logx.ValidFormat(cfg.Logging.Format) {
		errs = append(errs, fmt.Errorf("logging.format: unknown format %q", cfg.Logging.Format))
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Desktop.Driver)) {
	case "", "auto", "freedesktop", "log", "none":
	default:
		errs = append(errs, fmt.Errorf("desktop.driver: unknown driver %q", cfg.Desktop.Driver))
	}

	for path, raw := range map[string]string{
		"realtime.reconnect_base":    cfg.Realtime.ReconnectBase,
		"realtime.handshake_timeout": cfg.Realtime.HandshakeTimeout,
		"sync.request_timeout":       cfg.Sync.RequestTimeout,
		"desktop.auto_dismiss":       cfg.Desktop.AutoDismiss,
		"desktop.seen_retention":     cfg.Desktop.SeenRetention,
	} {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}
	if cfg.Storage != nil {
		switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
		case "", "none":
		case "file", "sqlite", "sqlite3":
			if strings.TrimSpace(cfg.Storage.Path) == "" {
				errs = append(errs, errors.New("storage.path is required"))
			}
		default:
			errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver))
		}
		if _, err := ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func checkURL(path, raw string, schemes ...string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("%s is required", path)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	for _, s := range schemes {
		if strings.EqualFold(u.Scheme, s) && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("%s: unsupported url %q", path, raw)
}
