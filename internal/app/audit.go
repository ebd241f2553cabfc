package app

import (
	"context"
	"errors"

	"notifysync/internal/storage"
	logx "notifysync/pkg/logx"
)

var ErrStorageDisabled = errors.New("storage is disabled in config")

// RecentAudit opens the configured store read-side and returns up to n
// audit entries, newest first. It does not start the engine.
func RecentAudit(ctx context.Context, cfgPath string, n int) ([]storage.AuditEntry, error) {
	cfg, err := NewConfigManager(cfgPath).Load()
	if err != nil {
		return nil, err
	}
	sc, enabled, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	if !enabled {
		return nil, ErrStorageDisabled
	}
	st, err := storage.Open(sc, logx.Nop())
	if err != nil {
		return nil, err
	}
	defer st.Close()
	return st.RecentAudit(ctx, n)
}
