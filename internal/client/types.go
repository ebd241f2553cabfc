package client

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"notifysync/internal/connection"
	"notifysync/internal/desktop"
	"notifysync/internal/eventbus"
	"notifysync/internal/notification"
	"notifysync/internal/runtime/loop"
	"notifysync/internal/storage"
	"notifysync/internal/transport"
	logx "notifysync/pkg/logx"
)

var (
	ErrNotFound   = errors.New("notification not found")
	ErrDisposed   = errors.New("client disposed")
	ErrStarted    = errors.New("client already started")
	ErrNotRunning = errors.New("client not running")
)

// Backend is the REST collaborator.
type Backend interface {
	List(ctx context.Context, userID string, limit int) ([]notification.Notification, error)
	MarkRead(ctx context.Context, id string) (requestID string, err error)
	MarkAllRead(ctx context.Context) (requestID string, err error)
}

// AuditSink records backend mutations.
type AuditSink interface {
	AppendAudit(ctx context.Context, e storage.AuditEntry) error
}

type Options struct {
	Identity      connection.Identity
	Connection    connection.Config
	BaselineLimit int
	Desktop       desktop.Config
	// RequestTimeout bounds background REST calls; 0 means 15s.
	RequestTimeout time.Duration
}

// Deps are the collaborators. Backend is required; everything else has a
// default.
type Deps struct {
	Backend   Backend
	Dialer    transport.Dialer
	Platform  desktop.Platform
	Navigator desktop.Navigator
	Audit     AuditSink
	Seen      desktop.SeenStore
	// Scheduler overrides the loop's timers (tests use loop.Manual).
	Scheduler loop.Scheduler
	Logger    logx.Logger
}

// Snapshot is a copy of the derived view.
type Snapshot struct {
	Notifications []notification.Notification
	UnreadCount   int
	Connection    connection.State
	Permission    desktop.Permission
	At            time.Time
}

// Notice is a server system event (maintenance or update).
type Notice struct {
	Kind eventbus.Kind
	Data json.RawMessage
	At   time.Time
}

// Update is one value on the Updates feed; exactly one field is set.
type Update struct {
	Snapshot *Snapshot
	Notice   *Notice
}
