package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	logx "notifysync/pkg/logx"
)

//go:embed migrations.sql
var migrations string

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger

	closed     atomic.Bool
	opCount    atomic.Uint64
	pruneEvery uint64
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection: writes are tiny and SQLite serializes them anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{"PRAGMA journal_mode = WAL", "PRAGMA synchronous = NORMAL"}
	if cfg.BusyTimeout > 0 {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			log.Debug("sqlite pragma failed", logx.String("pragma", p), logx.Err(err))
		}
	}
	if _, err := db.ExecContext(context.Background(), migrations); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	log.Debug("sqlite store opened", logx.String("path", path))
	return &sqliteStore{db: db, log: log, pruneEvery: 500}, nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil || !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.db.Close()
}

// usable reports ErrDisabled or ErrClosed when the store cannot serve.
func (s *sqliteStore) usable() error {
	switch {
	case s == nil || s.db == nil:
		return ErrDisabled
	case s.closed.Load():
		return ErrClosed
	}
	return nil
}

func (s *sqliteStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	if err := s.usable(); err != nil {
		return err
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	ok := 0
	if e.OK {
		ok = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit(at, user_id, action, target, ok, err, took_ms, request_id)
		 VALUES(?,?,?,?,?,?,?,?)`,
		e.At.UTC().Format(time.RFC3339Nano), nullStr(e.UserID), e.Action, nullStr(e.Target),
		ok, nullStr(e.Error), e.TookMS, nullStr(e.RequestID),
	)
	return err
}

func (s *sqliteStore) RecentAudit(ctx context.Context, n int) ([]AuditEntry, error) {
	if err := s.usable(); err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT at, COALESCE(user_id,''), action, COALESCE(target,''), ok, COALESCE(err,''), took_ms, COALESCE(request_id,'')
		 FROM audit ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AuditEntry
	for rows.Next() {
		var (
			e  AuditEntry
			at string
			ok int
		)
		if err := rows.Scan(&at, &e.UserID, &e.Action, &e.Target, &ok, &e.Error, &e.TookMS, &e.RequestID); err != nil {
			return nil, err
		}
		e.At, _ = time.Parse(time.RFC3339Nano, at)
		e.OK = ok == 1
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *sqliteStore) PutSeen(ctx context.Context, key string, until time.Time) error {
	if err := s.usable(); err != nil {
		return err
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO seen(key, until) VALUES(?,?)
		 ON CONFLICT(key) DO UPDATE SET until=excluded.until`,
		key, until.UnixMilli(),
	)
	if err == nil && s.opCount.Add(1)%s.pruneEvery == 0 {
		pctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		if perr := s.pruneExpired(pctx); perr != nil {
			s.log.Debug("seen prune failed", logx.Err(perr))
		}
		cancel()
	}
	return err
}

func (s *sqliteStore) GetSeen(ctx context.Context, key string) (time.Time, bool, error) {
	if err := s.usable(); err != nil {
		return time.Time{}, false, err
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return time.Time{}, false, nil
	}
	var ms int64
	err := s.db.QueryRowContext(ctx, `SELECT until FROM seen WHERE key = ?`, key).Scan(&ms)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	until := time.UnixMilli(ms)
	if until.Before(time.Now()) {
		return time.Time{}, false, nil
	}
	return until, true, nil
}

func (s *sqliteStore) pruneExpired(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM seen WHERE until < ?`, time.Now().UnixMilli())
	return err
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
