package client

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"notifysync/internal/connection"
	"notifysync/internal/desktop"
	"notifysync/internal/eventbus"
	"notifysync/internal/filter"
	"notifysync/internal/notification"
	"notifysync/internal/runtime/loop"
	"notifysync/internal/storage"
	"notifysync/internal/transport"
)

type fakeConn struct {
	mu     sync.Mutex
	sink   transport.Sink
	sent   []string
	closed bool
}

func (c *fakeConn) ID() string { return "fake" }

func (c *fakeConn) Emit(event string, data any) error {
	b, _ := json.Marshal(data)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, event+" "+string(b))
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) Sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
}

func (d *fakeDialer) Open(_ transport.Options, sink transport.Sink) (transport.Conn, error) {
	c := &fakeConn{sink: sink}
	d.mu.Lock()
	d.conns = append(d.conns, c)
	d.mu.Unlock()
	return c, nil
}

func (d *fakeDialer) last() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[len(d.conns)-1]
}

type fakeBackend struct {
	mu        sync.Mutex
	baseline  []notification.Notification
	lists     int
	readIDs   []string
	readAll   int
	mutateErr error
}

func (b *fakeBackend) List(context.Context, string, int) ([]notification.Notification, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lists++
	return append([]notification.Notification(nil), b.baseline...), nil
}

func (b *fakeBackend) MarkRead(_ context.Context, id string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.readIDs = append(b.readIDs, id)
	return "req-" + id, b.mutateErr
}

func (b *fakeBackend) MarkAllRead(context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.readAll++
	return "req-all", b.mutateErr
}

type memAudit struct {
	mu      sync.Mutex
	entries []storage.AuditEntry
}

func (a *memAudit) AppendAudit(_ context.Context, e storage.AuditEntry) error {
	a.mu.Lock()
	a.entries = append(a.entries, e)
	a.mu.Unlock()
	return nil
}

type fixture struct {
	c       *Client
	dialer  *fakeDialer
	backend *fakeBackend
	rec     *desktop.Recorder
	sched   *loop.Manual
	audit   *memAudit
}

func start(t *testing.T, baseline ...notification.Notification) *fixture {
	t.Helper()
	f := &fixture{
		dialer:  &fakeDialer{},
		backend: &fakeBackend{baseline: baseline},
		rec:     desktop.NewRecorder(desktop.PermissionGranted, desktop.PermissionGranted),
		sched:   loop.NewManual(),
		audit:   &memAudit{},
	}
	c, err := New(Options{
		Identity: connection.Identity{UserID: "u1", Token: "tok"},
		Desktop:  desktop.Config{Enabled: true},
	}, Deps{
		Backend:   f.backend,
		Dialer:    f.dialer,
		Platform:  f.rec,
		Audit:     f.audit,
		Scheduler: f.sched,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	f.c = c
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(c.Dispose)
	return f
}

// onLoop runs fn on the client's loop, as transport callbacks and timers do.
func (f *fixture) onLoop(t *testing.T, fn func()) {
	t.Helper()
	if err := f.c.loop.Call(context.Background(), fn); err != nil {
		t.Fatalf("loop call: %v", err)
	}
}

func (f *fixture) connect(t *testing.T) *fakeConn {
	t.Helper()
	conn := f.dialer.last()
	f.onLoop(t, conn.sink.Connected)
	return conn
}

func (f *fixture) push(t *testing.T, event, data string) {
	t.Helper()
	conn := f.dialer.last()
	f.onLoop(t, func() { conn.sink.Frame(transport.Frame{Event: event, Data: json.RawMessage(data)}) })
}

// idle waits until no baseline fetch is in flight.
func (f *fixture) idle(t *testing.T) {
	t.Helper()
	eventually(t, "refresh idle", func() bool {
		var busy bool
		f.onLoop(t, func() { busy = f.c.refreshing })
		return !busy
	})
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestNewValidates(t *testing.T) {
	if _, err := New(Options{Identity: connection.Identity{UserID: "u"}}, Deps{}); err == nil {
		t.Fatalf("missing backend accepted")
	}
	if _, err := New(Options{}, Deps{Backend: &fakeBackend{}}); !errors.Is(err, connection.ErrNoIdentity) {
		t.Fatalf("missing identity: %v", err)
	}
}

func TestStartConnectsAndHydrates(t *testing.T) {
	f := start(t,
		notification.Notification{ID: "b1", Title: "Baseline", Priority: notification.PriorityNormal},
	)
	if got := f.c.ConnectionStatus(); got != connection.StatusConnecting {
		t.Fatalf("status=%s", got)
	}
	conn := f.connect(t)
	if !f.c.IsConnected() || f.c.ReconnectAttempts() != 0 {
		t.Fatalf("not connected")
	}
	eventually(t, "baseline", func() bool { return len(f.c.Notifications()) == 1 })
	if f.c.UnreadCount() != 1 {
		t.Fatalf("unread=%d", f.c.UnreadCount())
	}
	if sent := conn.Sent(); len(sent) == 0 || sent[0][:len("user:online")] != "user:online" {
		t.Fatalf("sent=%v", sent)
	}
	if err := f.c.Start(context.Background()); !errors.Is(err, ErrStarted) {
		t.Fatalf("second Start: %v", err)
	}
}

func TestPushNewStoresAcknowledgesAndNotifies(t *testing.T) {
	f := start(t)
	conn := f.connect(t)

	f.push(t, "notification:new", `{"id":"n1","title":"Exam","message":"Room 4","priority":"high"}`)
	f.push(t, "notification:new", `{"id":"n1","title":"Exam","message":"Room 4","priority":"high"}`)

	list := f.c.Notifications()
	if len(list) != 1 || list[0].ID != "n1" || f.c.UnreadCount() != 1 {
		t.Fatalf("list=%+v", list)
	}
	shown := f.rec.Shown()
	if len(shown) == 0 || shown[0].Tag != "n1" || !shown[0].RequireInteraction {
		t.Fatalf("shown=%+v", shown)
	}
	f.onLoop(t, func() { f.sched.Advance(10 * time.Second) })
	if shown[len(shown)-1].Closed() {
		t.Fatalf("high priority toast auto-dismissed")
	}

	var acks int
	for _, s := range conn.Sent() {
		if s == `notification:acknowledge {"notificationId":"n1"}` {
			acks++
		}
	}
	if acks != 2 {
		t.Fatalf("acks=%d sent=%v", acks, conn.Sent())
	}
}

func TestBaselineThenDeletePush(t *testing.T) {
	f := start(t, notification.Notification{ID: "n1", Priority: notification.PriorityNormal})
	f.connect(t)
	f.idle(t)
	if len(f.c.Notifications()) != 1 {
		t.Fatalf("baseline not merged")
	}

	f.push(t, "notification:delete", `{"id":"n1"}`)
	if len(f.c.Notifications()) != 0 || f.c.UnreadCount() != 0 {
		t.Fatalf("store not empty after delete push")
	}
}

func TestMarkAsReadOptimisticWithoutRollback(t *testing.T) {
	f := start(t)
	conn := f.connect(t)
	f.push(t, "notification:new", `{"id":"n1"}`)
	f.push(t, "notification:new", `{"id":"n2"}`)

	if err := f.c.MarkAsRead(context.Background(), "n1"); err != nil {
		t.Fatalf("MarkAsRead: %v", err)
	}
	if f.c.UnreadCount() != 1 {
		t.Fatalf("unread=%d", f.c.UnreadCount())
	}
	found := false
	for _, s := range conn.Sent() {
		if s == `notification:read {"notificationId":"n1"}` {
			found = true
		}
	}
	if !found {
		t.Fatalf("no read frame: %v", conn.Sent())
	}

	f.backend.mu.Lock()
	f.backend.mutateErr = errors.New("status 500")
	f.backend.mu.Unlock()
	if err := f.c.MarkAsRead(context.Background(), "n2"); err == nil {
		t.Fatalf("backend error not returned")
	}
	if f.c.UnreadCount() != 0 {
		t.Fatalf("local state rolled back")
	}

	if err := f.c.MarkAsRead(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing id: %v", err)
	}

	f.audit.mu.Lock()
	defer f.audit.mu.Unlock()
	if len(f.audit.entries) != 2 || !f.audit.entries[0].OK || f.audit.entries[1].OK || f.audit.entries[1].RequestID != "req-n2" {
		t.Fatalf("audit=%+v", f.audit.entries)
	}
}

func TestMarkAllAndFilter(t *testing.T) {
	f := start(t)
	f.connect(t)
	f.push(t, "notification:new", `{"id":"a","type":"email","title":"Grade posted"}`)
	f.push(t, "notification:new", `{"id":"b","type":"sms","title":"Bus late"}`)

	got := f.c.FilterNotifications(filter.Criteria{Type: "email"})
	if len(got) != 1 || got[0].ID != "a" {
		t.Fatalf("filter=%+v", got)
	}

	if err := f.c.MarkAllAsRead(context.Background()); err != nil {
		t.Fatalf("MarkAllAsRead: %v", err)
	}
	if f.c.UnreadCount() != 0 || len(f.c.FilterNotifications(filter.Criteria{Status: filter.StatusUnread})) != 0 {
		t.Fatalf("still unread")
	}
	f.backend.mu.Lock()
	defer f.backend.mu.Unlock()
	if f.backend.readAll != 1 {
		t.Fatalf("backend read-all calls=%d", f.backend.readAll)
	}
}

func TestDeleteStaysHiddenAcrossRefresh(t *testing.T) {
	f := start(t, notification.Notification{ID: "n1", Priority: notification.PriorityNormal})
	f.connect(t)
	eventually(t, "baseline", func() bool { return len(f.c.Notifications()) == 1 })

	if !f.c.DeleteNotification("n1") {
		t.Fatalf("delete failed")
	}
	if err := f.c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if len(f.c.Notifications()) != 0 {
		t.Fatalf("deleted notification reappeared")
	}
}

func TestUpdatesFeed(t *testing.T) {
	f := start(t)
	ch, unsub := f.c.Updates(16)
	defer unsub()

	f.connect(t)
	f.push(t, "notification:new", `{"id":"n1"}`)
	f.push(t, "system:maintenance", `{"window":"22:00"}`)

	var sawNotice, sawSnapshot bool
	deadline := time.After(3 * time.Second)
	for !(sawNotice && sawSnapshot) {
		select {
		case u := <-ch:
			if u.Notice != nil {
				if u.Notice.Kind != eventbus.KindSystemMaintenance || string(u.Notice.Data) != `{"window":"22:00"}` {
					t.Fatalf("notice=%+v", u.Notice)
				}
				sawNotice = true
			}
			if u.Snapshot != nil && len(u.Snapshot.Notifications) == 1 && u.Snapshot.Connection.Status == connection.StatusConnected {
				sawSnapshot = true
			}
		case <-deadline:
			t.Fatalf("notice=%v snapshot=%v", sawNotice, sawSnapshot)
		}
	}
}

func TestReconnectAfterDropRefetchesBaseline(t *testing.T) {
	f := start(t)
	first := f.connect(t)
	f.idle(t)

	f.onLoop(t, func() { first.sink.Disconnected(errors.New("network")) })
	if f.c.ConnectionStatus() != connection.StatusConnecting || f.c.ReconnectAttempts() != 1 {
		t.Fatalf("status=%s attempts=%d", f.c.ConnectionStatus(), f.c.ReconnectAttempts())
	}

	f.backend.mu.Lock()
	f.backend.baseline = []notification.Notification{{ID: "missed", Priority: notification.PriorityNormal}}
	f.backend.mu.Unlock()

	f.onLoop(t, func() { f.sched.Advance(time.Second) })
	f.connect(t)
	eventually(t, "gap fill", func() bool { return len(f.c.Notifications()) == 1 })
}

func TestDisposeReleasesEverything(t *testing.T) {
	f := start(t)
	conn := f.connect(t)
	f.push(t, "notification:new", `{"id":"n1"}`)
	ch, _ := f.c.Updates(1)

	f.c.Dispose()
	f.c.Dispose()

	if f.c.bus.Kinds() != 0 {
		t.Fatalf("subscriptions leaked: %d kinds", f.c.bus.Kinds())
	}
	conn.mu.Lock()
	closed := conn.closed
	conn.mu.Unlock()
	if !closed {
		t.Fatalf("transport not closed")
	}
	if f.c.IsConnected() || f.c.Notifications() != nil {
		t.Fatalf("disposed client still answers")
	}
	if err := f.c.MarkAllAsRead(context.Background()); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("MarkAllAsRead after dispose: %v", err)
	}
	for range ch {
	}
}
