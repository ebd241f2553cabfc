package storage

import (
	"errors"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrClosed   = errors.New("storage closed")
)

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free file backend (jsonl + snapshot)
//   - "sqlite": SQLite database file (modernc.org/sqlite, no cgo)
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// AuditEntry records one backend mutation and its outcome.
type AuditEntry struct {
	At        time.Time `json:"at"`
	UserID    string    `json:"user_id,omitempty"`
	Action    string    `json:"action"`
	Target    string    `json:"target,omitempty"`
	OK        bool      `json:"ok"`
	Error     string    `json:"error,omitempty"`
	TookMS    int64     `json:"took_ms"`
	RequestID string    `json:"request_id,omitempty"`
}
