package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "notifysync/pkg/logx"
)

// Store is the persistence API used by the client and the desktop notifier.
type Store interface {
	AppendAudit(ctx context.Context, e AuditEntry) error
	// PutSeen records key as seen until the given time.
	PutSeen(ctx context.Context, key string, until time.Time) error
	GetSeen(ctx context.Context, key string) (until time.Time, ok bool, err error)
	// RecentAudit returns up to n audit entries, newest first.
	RecentAudit(ctx context.Context, n int) ([]AuditEntry, error)
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "storage"), logx.String("driver", driver))

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
