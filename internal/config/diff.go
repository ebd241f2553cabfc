package config

import (
	"sort"
	"strings"

	logx "notifysync/pkg/logx"
)

// Sections applied at runtime; any other changed section needs a restart.
var hotSections = map[string]bool{"logging": true, "desktop": true}

// SummarizeConfigChange returns the changed sections and safe structured
// attrs for logging (never includes the token).
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	o, n := oldCfg.Server, newCfg.Server
	if trim(o.APIBase) != trim(n.APIBase) || trim(o.UserID) != trim(n.UserID) || o.Token != n.Token {
		changed = append(changed, "server")
		attrs = append(attrs,
			logx.String("server.api_base", trim(n.APIBase)),
			logx.String("server.user_id", trim(n.UserID)),
			logx.Bool("server.token_changed", o.Token != n.Token),
		)
	}

	if oldCfg.Realtime != newCfg.Realtime {
		r := newCfg.Realtime
		changed = append(changed, "realtime")
		attrs = append(attrs,
			logx.String("realtime.endpoint", trim(r.Endpoint)),
			logx.String("realtime.reconnect_base", trim(r.ReconnectBase)),
			logx.Int("realtime.max_reconnect_attempts", r.MaxReconnectAttempts),
		)
	}

	if oldCfg.Sync != newCfg.Sync {
		s := newCfg.Sync
		changed = append(changed, "sync")
		attrs = append(attrs,
			logx.Int("sync.baseline_limit", s.BaselineLimit),
			logx.String("sync.resync", trim(s.Resync)),
		)
	}

	if oldCfg.Desktop != newCfg.Desktop {
		d := newCfg.Desktop
		changed = append(changed, "desktop")
		attrs = append(attrs,
			logx.Bool("desktop.enabled", d.Enabled),
			logx.String("desktop.driver", trim(d.Driver)),
			logx.String("desktop.auto_dismiss", trim(d.AutoDismiss)),
			logx.Any("desktop.rate_per_sec", d.RatePerSec),
		)
	}

	if oldCfg.Logging.Level != newCfg.Logging.Level ||
		oldCfg.Logging.Console != newCfg.Logging.Console ||
		trim(oldCfg.Logging.Format) != trim(newCfg.Logging.Format) ||
		oldCfg.Logging.File.Enabled != newCfg.Logging.File.Enabled ||
		trim(oldCfg.Logging.File.Path) != trim(newCfg.Logging.File.Path) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.String("logging.format", trim(newCfg.Logging.Format)),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	// Nil means disabled.
	var oS, nS StorageConfig
	if oldCfg.Storage != nil {
		oS = *oldCfg.Storage
	}
	if newCfg.Storage != nil {
		nS = *newCfg.Storage
	}
	if trim(oS.Driver) != trim(nS.Driver) || trim(oS.Path) != trim(nS.Path) || trim(oS.BusyTimeout) != trim(nS.BusyTimeout) {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", trim(nS.Driver)),
			logx.Bool("storage.path_set", trim(nS.Path) != ""),
			logx.String("storage.busy_timeout", trim(nS.BusyTimeout)),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

// RestartRequired returns the changed sections that are not applied at
// runtime.
func RestartRequired(changed []string) []string {
	var out []string
	for _, s := range changed {
		if !hotSections[s] {
			out = append(out, s)
		}
	}
	return out
}

func trim(s string) string { return strings.TrimSpace(s) }
