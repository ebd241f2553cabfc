package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"notifysync/internal/api"
	"notifysync/internal/client"
	"notifysync/internal/config"
	"notifysync/internal/connection"
	"notifysync/internal/desktop"
	"notifysync/internal/desktop/freedesktop"
	logx "notifysync/pkg/logx"
)

type Config = config.Config

type ConfigManager = config.ConfigManager

var NewConfigManager = config.NewConfigManager

const defaultAppName = "notifysync"

func mapLogConfig(cfg *Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		Format:  cfg.Logging.Format,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapAPIConfig(cfg *Config) (api.Config, error) {
	timeout, err := config.ParseDurationOrDefault("sync.request_timeout", cfg.Sync.RequestTimeout, 15*time.Second)
	if err != nil {
		return api.Config{}, err
	}
	return api.Config{
		BaseURL: strings.TrimSpace(cfg.Server.APIBase),
		Token:   cfg.Server.Token,
		UserID:  strings.TrimSpace(cfg.Server.UserID),
		Timeout: timeout,
	}, nil
}

func mapDesktopConfig(cfg *Config) (desktop.Config, error) {
	d := cfg.Desktop
	autoDismiss, err := config.ParseDurationOrDefault("desktop.auto_dismiss", d.AutoDismiss, 10*time.Second)
	if err != nil {
		return desktop.Config{}, err
	}
	retention, err := config.ParseDurationOrDefault("desktop.seen_retention", d.SeenRetention, 30*24*time.Hour)
	if err != nil {
		return desktop.Config{}, err
	}
	name := strings.TrimSpace(d.AppName)
	if name == "" {
		name = defaultAppName
	}
	return desktop.Config{
		Enabled:       d.Enabled && desktopDriver(cfg) != "none",
		AppName:       name,
		Icon:          strings.TrimSpace(d.Icon),
		AutoDismiss:   autoDismiss,
		RatePerSec:    d.RatePerSec,
		PersistSeen:   d.PersistSeen,
		SeenRetention: retention,
	}, nil
}

func desktopDriver(cfg *Config) string {
	d := strings.ToLower(strings.TrimSpace(cfg.Desktop.Driver))
	if d == "" {
		return "auto"
	}
	return d
}

func mapClientOptions(cfg *Config) (client.Options, error) {
	base, err := config.ParseDurationOrDefault("realtime.reconnect_base", cfg.Realtime.ReconnectBase, connection.DefaultReconnectBase)
	if err != nil {
		return client.Options{}, err
	}
	handshake, err := config.ParseDurationOrDefault("realtime.handshake_timeout", cfg.Realtime.HandshakeTimeout, 10*time.Second)
	if err != nil {
		return client.Options{}, err
	}
	reqTimeout, err := config.ParseDurationOrDefault("sync.request_timeout", cfg.Sync.RequestTimeout, 15*time.Second)
	if err != nil {
		return client.Options{}, err
	}
	dc, err := mapDesktopConfig(cfg)
	if err != nil {
		return client.Options{}, err
	}
	attempts := cfg.Realtime.MaxReconnectAttempts
	if attempts == 0 {
		attempts = connection.DefaultMaxAttempts
	}
	return client.Options{
		Identity: connection.Identity{
			UserID: strings.TrimSpace(cfg.Server.UserID),
			Token:  cfg.Server.Token,
		},
		Connection: connection.Config{
			Endpoint:         strings.TrimSpace(cfg.Realtime.Endpoint),
			ReconnectBase:    base,
			MaxAttempts:      attempts,
			HandshakeTimeout: handshake,
		},
		BaselineLimit:  cfg.Sync.BaselineLimit,
		Desktop:        dc,
		RequestTimeout: reqTimeout,
	}, nil
}

// openPlatform picks the desktop platform for the configured driver. The
// returned close func is never nil.
func openPlatform(ctx context.Context, cfg *Config, log logx.Logger) (desktop.Platform, func() error, error) {
	noop := func() error { return nil }
	if !cfg.Desktop.Enabled {
		return desktop.Nop{}, noop, nil
	}
	name := strings.TrimSpace(cfg.Desktop.AppName)
	if name == "" {
		name = defaultAppName
	}
	switch desktopDriver(cfg) {
	case "none":
		return desktop.Nop{}, noop, nil
	case "log":
		return desktop.LogPlatform{Log: log}, noop, nil
	case "freedesktop":
		p, err := freedesktop.New(ctx, name, log)
		if err != nil {
			return nil, nil, err
		}
		return p, p.Close, nil
	default:
		p, err := freedesktop.New(ctx, name, log)
		if err == nil {
			return p, p.Close, nil
		}
		if !errors.Is(err, freedesktop.ErrUnsupported) {
			log.Warn("desktop notifications unavailable; logging instead", logx.Err(err))
		}
		return desktop.LogPlatform{Log: log}, noop, nil
	}
}
