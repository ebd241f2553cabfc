package desktop

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"notifysync/internal/eventbus"
	"notifysync/internal/notification"
	"notifysync/internal/runtime/loop"
	logx "notifysync/pkg/logx"
)

func newNotifier(t *testing.T, perm Permission, cfg Config, opts ...Option) (*Notifier, *Recorder, *loop.Manual, *eventbus.Dispatcher) {
	t.Helper()
	rec := NewRecorder(perm, PermissionGranted)
	sched := loop.NewManual()
	n := New(cfg, rec, sched, loop.Inline{}, append([]Option{WithLogger(logx.Nop())}, opts...)...)
	bus := eventbus.NewDispatcher(logx.Nop())
	n.Attach(bus)
	return n, rec, sched, bus
}

func TestHighPriorityShownOnceAndSticky(t *testing.T) {
	_, rec, sched, bus := newNotifier(t, PermissionGranted, Config{Enabled: true, Icon: "/icon.png"})

	bus.Dispatch(eventbus.KindNotificationNew, json.RawMessage(`{"id":"n1","title":"Exam","message":"Tomorrow","priority":"high"}`))

	shown := rec.Shown()
	if len(shown) != 1 {
		t.Fatalf("shown=%d want 1", len(shown))
	}
	got := shown[0]
	if got.Tag != "n1" || !got.RequireInteraction || got.Title != "Exam" || got.Body != "Tomorrow" || got.Icon != "/icon.png" {
		t.Fatalf("toast=%+v", got.Toast)
	}
	if len(got.Actions) != 2 || got.Actions[0].ID != ActionView || got.Actions[1].ID != ActionDismiss {
		t.Fatalf("actions=%+v", got.Actions)
	}

	sched.Advance(10 * time.Second)
	sched.Advance(time.Hour)
	if got.Closed() {
		t.Fatalf("high priority notification was auto-dismissed")
	}
}

func TestNormalPriorityAutoDismissedAfterTenSeconds(t *testing.T) {
	n, rec, sched, bus := newNotifier(t, PermissionGranted, Config{Enabled: true})
	bus.Dispatch(eventbus.KindNotificationNew, json.RawMessage(`{"id":"n2","title":"t"}`))

	got := rec.Shown()[0]
	if got.RequireInteraction {
		t.Fatalf("normal priority marked sticky")
	}
	sched.Advance(9 * time.Second)
	if got.Closed() {
		t.Fatalf("closed before 10s")
	}
	sched.Advance(time.Second)
	if !got.Closed() || len(n.Active()) != 0 {
		t.Fatalf("not closed after 10s")
	}
}

func TestPermissionGate(t *testing.T) {
	for _, perm := range []Permission{PermissionDenied, PermissionDefault, PermissionUnsupported} {
		n, rec, _, bus := newNotifier(t, perm, Config{Enabled: true})
		bus.Dispatch(eventbus.KindNotificationNew, json.RawMessage(`{"id":"n1"}`))
		if len(rec.Shown()) != 0 || n.Stats().Skipped != 1 {
			t.Fatalf("%s: shown=%d stats=%+v", perm, len(rec.Shown()), n.Stats())
		}
	}
}

func TestDisabledIgnoresEvents(t *testing.T) {
	_, rec, _, bus := newNotifier(t, PermissionGranted, Config{Enabled: false})
	bus.Dispatch(eventbus.KindNotificationNew, json.RawMessage(`{"id":"n1"}`))
	if len(rec.Shown()) != 0 {
		t.Fatalf("disabled notifier rendered")
	}
}

func TestRequestPermission(t *testing.T) {
	n, _, _, _ := newNotifier(t, PermissionDefault, Config{Enabled: true})
	ok, err := n.RequestPermission(context.Background())
	if err != nil || !ok || n.Permission() != PermissionGranted {
		t.Fatalf("RequestPermission=%v,%v perm=%s", ok, err, n.Permission())
	}

	denied := New(Config{}, NewRecorder(PermissionDenied, PermissionGranted), nil, nil)
	if ok, _ := denied.RequestPermission(context.Background()); ok {
		t.Fatalf("denied permission reported granted")
	}
	nop := New(Config{}, nil, nil, nil)
	if ok, err := nop.RequestPermission(context.Background()); ok || err != nil {
		t.Fatalf("nop platform: %v %v", ok, err)
	}
}

func TestClickNavigatesToCategoryRoute(t *testing.T) {
	var went []string
	nav := NavigatorFunc(func(target string) { went = append(went, target) })
	_, rec, _, bus := newNotifier(t, PermissionGranted, Config{Enabled: true}, WithNavigator(nav))

	bus.Dispatch(eventbus.KindNotificationNew, json.RawMessage(`{"id":"a","metadata":{"category":"grade"}}`))
	bus.Dispatch(eventbus.KindNotificationNew, json.RawMessage(`{"id":"b","type":"email"}`))
	bus.Dispatch(eventbus.KindNotificationNew, json.RawMessage(`{"id":"c","metadata":{"category":"payment"}}`))

	shown := rec.Shown()
	shown[0].Act(ActionDefault)
	shown[1].Act(ActionView)
	shown[2].Act(ActionDismiss)

	if len(went) != 2 || went[0] != "/student/grades" || went[1] != DefaultRoute {
		t.Fatalf("navigations=%v", went)
	}
	for i, s := range shown {
		if !s.Closed() {
			t.Fatalf("toast %d not closed after action", i)
		}
	}
	// Acting on an already closed toast is ignored.
	shown[0].Act(ActionView)
	if len(went) != 2 {
		t.Fatalf("stale action navigated")
	}
}

func TestSameTagReplaces(t *testing.T) {
	n, rec, sched, _ := newNotifier(t, PermissionGranted, Config{Enabled: true})
	_ = n.Show(notification.Notification{ID: "n1", Title: "first"})
	_ = n.Show(notification.Notification{ID: "n1", Title: "second"})

	shown := rec.Shown()
	if len(shown) != 2 || !shown[0].Closed() || shown[1].Closed() {
		t.Fatalf("replace failed")
	}
	if len(n.Active()) != 1 {
		t.Fatalf("active=%v", n.Active())
	}
	// The first toast's timer must not close the replacement early.
	sched.Advance(10 * time.Second)
	if !shown[1].Closed() {
		t.Fatalf("replacement not auto-dismissed")
	}
}

func TestRateLimit(t *testing.T) {
	n, rec, _, _ := newNotifier(t, PermissionGranted, Config{Enabled: true, RatePerSec: 1})
	for _, id := range []string{"a", "b", "c"} {
		_ = n.Show(notification.Notification{ID: id})
	}
	if len(rec.Shown()) != 1 || n.Stats().RateLimited != 2 {
		t.Fatalf("shown=%d stats=%+v", len(rec.Shown()), n.Stats())
	}
}

type memSeen struct {
	m      map[string]time.Time
	writes chan string
}

func (s *memSeen) PutSeen(_ context.Context, key string, until time.Time) error {
	s.m[key] = until
	s.writes <- key
	return nil
}

func (s *memSeen) GetSeen(_ context.Context, key string) (time.Time, bool, error) {
	u, ok := s.m[key]
	return u, ok, nil
}

func TestPersistedSeenSkipsRerender(t *testing.T) {
	st := &memSeen{m: map[string]time.Time{}, writes: make(chan string, 4)}
	n, rec, _, _ := newNotifier(t, PermissionGranted, Config{Enabled: true, PersistSeen: true}, WithSeenStore(st))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.RunPersist(ctx) }()

	_ = n.Show(notification.Notification{ID: "n1"})
	select {
	case key := <-st.writes:
		if key != "desktop:n1" {
			t.Fatalf("seen key=%q", key)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("seen marker not written")
	}
	cancel()
	<-done

	// Reads happen on the caller; the writer goroutine has stopped.
	_ = n.Show(notification.Notification{ID: "n1"})
	if len(rec.Shown()) != 1 || n.Stats().Skipped != 1 {
		t.Fatalf("shown=%d stats=%+v", len(rec.Shown()), n.Stats())
	}
}

func TestBadPayloadReturnsError(t *testing.T) {
	n, _, _, _ := newNotifier(t, PermissionGranted, Config{Enabled: true})
	if err := n.Handle(eventbus.Event{Kind: eventbus.KindNotificationNew, Data: json.RawMessage(`{}`)}); err == nil {
		t.Fatalf("expected missing id error")
	}
}

func TestRoute(t *testing.T) {
	cases := map[string]string{
		"assignment": "/student/assignments",
		"Grade":      "/student/grades",
		"attendance": "/student/attendance",
		"payment":    "/student/payments",
		"email":      "/notifications",
		"":           "/notifications",
	}
	for in, want := range cases {
		if got := Route(in); got != want {
			t.Fatalf("Route(%q)=%q want %q", in, got, want)
		}
	}
}
