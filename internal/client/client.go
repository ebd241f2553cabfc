package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"notifysync/internal/connection"
	"notifysync/internal/desktop"
	"notifysync/internal/eventbus"
	"notifysync/internal/filter"
	"notifysync/internal/notification"
	"notifysync/internal/runtime/loop"
	"notifysync/internal/runtime/supervisor"
	"notifysync/internal/transport/ws"
	logx "notifysync/pkg/logx"
)

const defaultRequestTimeout = 15 * time.Second

type Client struct {
	opts Options
	deps Deps
	log  logx.Logger

	loop     *loop.Loop
	bus      *eventbus.Dispatcher
	conn     *connection.Manager
	store    *notification.Store
	notifier *desktop.Notifier
	updates  *eventbus.Feed[Update]

	// loop-confined
	detach        []func()
	publishQueued bool
	refreshing    bool

	mu       sync.Mutex
	sup      *supervisor.Supervisor
	started  bool
	disposed bool
}

func New(opts Options, deps Deps) (*Client, error) {
	if deps.Backend == nil {
		return nil, errors.New("client: backend is required")
	}
	if strings.TrimSpace(opts.Identity.UserID) == "" {
		return nil, connection.ErrNoIdentity
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	log := deps.Logger
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "client"), logx.String("user", opts.Identity.UserID))

	c := &Client{
		opts:    opts,
		deps:    deps,
		log:     log,
		loop:    loop.New(log),
		bus:     eventbus.NewDispatcher(log),
		updates: eventbus.NewFeed[Update](),
	}

	var sched loop.Scheduler = c.loop
	if deps.Scheduler != nil {
		sched = deps.Scheduler
	}
	dialer := deps.Dialer
	if dialer == nil {
		dialer = ws.New(ws.Config{HandshakeTimeout: opts.Connection.HandshakeTimeout}, c.loop, log)
	}

	c.conn = connection.New(opts.Connection, dialer, sched, c.bus, connection.WithLogger(log))
	c.store = notification.NewStore(notification.WithLogger(log))
	c.store.SetOnChange(c.queuePublish)

	nopts := []desktop.Option{desktop.WithLogger(log)}
	if deps.Navigator != nil {
		nopts = append(nopts, desktop.WithNavigator(deps.Navigator))
	}
	if deps.Seen != nil {
		nopts = append(nopts, desktop.WithSeenStore(deps.Seen))
	}
	c.notifier = desktop.New(opts.Desktop, deps.Platform, sched, c.loop, nopts...)

	// Order matters: the store sees a push before the notifier and the
	// acknowledgement.
	c.detach = append(c.detach,
		c.store.Attach(c.bus),
		c.notifier.Attach(c.bus),
		c.bus.Subscribe(eventbus.KindNotificationNew, c.onNew),
		c.bus.Subscribe(eventbus.KindConnect, c.onConnect),
		c.bus.Subscribe(eventbus.KindDisconnect, c.onConnectionChange),
		c.bus.Subscribe(eventbus.KindConnectError, c.onConnectionChange),
		c.bus.Subscribe(eventbus.KindReconnectFailed, c.onConnectionChange),
		c.bus.Subscribe(eventbus.KindSystemMaintenance, c.onSystem),
		c.bus.Subscribe(eventbus.KindSystemUpdate, c.onSystem),
	)
	return c, nil
}

// Start runs the loop, opens the channel and fetches the baseline in the
// background.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return ErrDisposed
	}
	if c.started {
		c.mu.Unlock()
		return ErrStarted
	}
	c.started = true
	sup := supervisor.New(ctx, supervisor.WithLogger(c.log))
	c.sup = sup
	c.mu.Unlock()

	sup.Go("loop", c.loop.Run)
	if c.deps.Seen != nil {
		sup.GoRestart("desktop.persist", c.notifier.RunPersist, supervisor.WithRestartBackoff(time.Second, time.Minute))
	}

	var err error
	if cerr := c.loop.Call(ctx, func() { err = c.conn.Connect(c.opts.Identity) }); cerr != nil {
		return cerr
	}
	if err != nil {
		return err
	}
	c.loop.Post(c.refreshAsync)
	return nil
}

// Dispose tears the client down: subscriptions, the connection, open desktop
// notifications, the loop and the Updates feed. It is idempotent.
func (c *Client) Dispose() {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	c.disposed = true
	sup := c.sup
	c.mu.Unlock()

	teardown := func() {
		for _, d := range c.detach {
			d()
		}
		c.detach = nil
		c.conn.Disconnect()
		c.notifier.CloseAll()
	}
	if sup == nil {
		teardown()
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		terr := c.loop.Call(ctx, teardown)
		cancel()
		sup.Cancel()
		wctx, wcancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := sup.Wait(wctx); err != nil && !errors.Is(err, context.Canceled) {
			c.log.Warn("dispose wait", logx.Err(err))
		}
		wcancel()
		if terr != nil {
			// The parent context stopped the loop first. Once it has exited
			// nothing else touches the components.
			select {
			case <-c.loop.Done():
				teardown()
			default:
				c.log.Warn("dispose teardown skipped; loop still busy", logx.Err(terr))
			}
		}
	}
	c.updates.Close()
	c.log.Info("client disposed")
}

// Updates subscribes to view snapshots and notices. Slow readers drop values;
// the latest snapshot is always available from Snapshot.
func (c *Client) Updates(buffer int) (<-chan Update, func()) {
	return c.updates.Subscribe(buffer)
}

// call runs fn on the loop. It reports false when the loop is not running.
func (c *Client) call(fn func()) bool {
	c.mu.Lock()
	running := c.started && !c.disposed
	c.mu.Unlock()
	if !running {
		return false
	}
	return c.loop.Call(context.Background(), fn) == nil
}

func (c *Client) Snapshot() Snapshot {
	var s Snapshot
	c.call(func() { s = c.snapshot() })
	return s
}

func (c *Client) Notifications() []notification.Notification {
	var out []notification.Notification
	c.call(func() { out = c.store.All() })
	return out
}

func (c *Client) UnreadCount() int {
	var n int
	c.call(func() { n = c.store.UnreadCount() })
	return n
}

func (c *Client) IsConnected() bool {
	var ok bool
	c.call(func() { ok = c.conn.IsConnected() })
	return ok
}

func (c *Client) ConnectionStatus() connection.Status {
	st := connection.StatusDisconnected
	c.call(func() { st = c.conn.Status() })
	return st
}

func (c *Client) ReconnectAttempts() int {
	var n int
	c.call(func() { n = c.conn.State().ReconnectAttempts })
	return n
}

// FilterNotifications derives a filtered copy of the current list.
func (c *Client) FilterNotifications(cr filter.Criteria) []notification.Notification {
	return filter.Filter(c.Notifications(), cr)
}

// Reconnect makes an explicit Connect with the configured identity, for
// example after the reconnect budget ran out.
func (c *Client) Reconnect() error {
	var err error
	if !c.call(func() { err = c.conn.Connect(c.opts.Identity) }) {
		return ErrNotRunning
	}
	return err
}

func (c *Client) Disconnect() {
	c.call(c.conn.Disconnect)
}

// MarkAsRead marks id read locally, tells the server over the channel and
// calls the backend. A backend failure is logged and audited and the local
// state is kept.
func (c *Client) MarkAsRead(ctx context.Context, id string) error {
	var found bool
	if !c.call(func() {
		found = c.store.MarkAsRead(id)
		if found {
			c.conn.MarkRead(id)
		}
	}) {
		return ErrNotRunning
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	start := time.Now()
	reqID, err := c.deps.Backend.MarkRead(ctx, id)
	c.mutationDone("mark_read", id, reqID, start, err)
	return err
}

// MarkAllAsRead marks every notification read locally and on the backend.
func (c *Client) MarkAllAsRead(ctx context.Context) error {
	var ids []string
	if !c.call(func() { ids = c.store.MarkAllAsRead() }) {
		return ErrNotRunning
	}
	start := time.Now()
	reqID, err := c.deps.Backend.MarkAllRead(ctx)
	c.mutationDone("mark_all_read", strings.Join(ids, ","), reqID, start, err)
	return err
}

// DeleteNotification removes id locally. It stays hidden until the backend
// stops returning it or a delete push arrives.
func (c *Client) DeleteNotification(id string) bool {
	var ok bool
	c.call(func() { ok = c.store.DeleteLocal(id) })
	return ok
}

// RequestPermission asks the desktop platform for permission.
func (c *Client) RequestPermission(ctx context.Context) (bool, error) {
	ok, err := c.notifier.RequestPermission(ctx)
	c.loop.Post(c.queuePublish)
	return ok, err
}

// ApplyDesktop swaps the desktop notifier configuration.
func (c *Client) ApplyDesktop(cfg desktop.Config) {
	c.call(func() { c.notifier.Apply(cfg) })
}

// Refresh fetches the baseline and merges it into the store.
func (c *Client) Refresh(ctx context.Context) error {
	list, err := c.deps.Backend.List(ctx, c.opts.Identity.UserID, c.opts.BaselineLimit)
	if err != nil {
		c.log.Warn("baseline fetch failed", logx.Err(err))
		return err
	}
	if !c.call(func() { c.store.Hydrate(list) }) {
		return ErrNotRunning
	}
	c.log.Debug("baseline merged", logx.Int("count", len(list)))
	return nil
}

// refreshAsync runs Refresh on a supervised goroutine. Overlapping requests
// collapse into the one in flight. Runs on the loop.
func (c *Client) refreshAsync() {
	if c.refreshing {
		return
	}
	c.mu.Lock()
	sup := c.sup
	c.mu.Unlock()
	if sup == nil {
		return
	}
	c.refreshing = true
	sup.Go0("refresh", func(ctx context.Context) {
		rctx, cancel := context.WithTimeout(ctx, c.opts.RequestTimeout)
		_ = c.Refresh(rctx)
		cancel()
		c.loop.Post(func() { c.refreshing = false })
	})
}

func (c *Client) mutationDone(action, target, reqID string, start time.Time, err error) {
	if err != nil {
		c.log.Warn("backend mutation failed; keeping local state",
			logx.String("action", action),
			logx.String("target", target),
			logx.String("request_id", reqID),
			logx.Err(err),
		)
	}
	if c.deps.Audit == nil {
		return
	}
	e := auditEntry(c.opts.Identity.UserID, action, target, reqID, start, err)
	actx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if aerr := c.deps.Audit.AppendAudit(actx, e); aerr != nil {
		c.log.Debug("audit append failed", logx.Err(aerr))
	}
}

func (c *Client) snapshot() Snapshot {
	return Snapshot{
		Notifications: c.store.All(),
		UnreadCount:   c.store.UnreadCount(),
		Connection:    c.conn.State(),
		Permission:    c.notifier.Permission(),
		At:            time.Now(),
	}
}

// queuePublish coalesces bursts of changes into one snapshot. Runs on the
// loop.
func (c *Client) queuePublish() {
	if c.publishQueued {
		return
	}
	c.publishQueued = true
	c.loop.Post(func() {
		c.publishQueued = false
		s := c.snapshot()
		c.updates.Publish(Update{Snapshot: &s})
	})
}

func (c *Client) onNew(ev eventbus.Event) error {
	id, err := notification.DecodeID(ev.Data)
	if err != nil {
		return err
	}
	c.conn.Acknowledge(id)
	return nil
}

func (c *Client) onConnect(eventbus.Event) error {
	c.refreshAsync()
	c.queuePublish()
	return nil
}

func (c *Client) onConnectionChange(ev eventbus.Event) error {
	if ev.Kind == eventbus.KindReconnectFailed {
		c.log.Error("realtime channel gave up; call Reconnect to retry", logx.Any("detail", ev.Data))
	}
	c.queuePublish()
	return nil
}

func (c *Client) onSystem(ev eventbus.Event) error {
	var data json.RawMessage
	switch v := ev.Data.(type) {
	case json.RawMessage:
		data = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		data = b
	}
	c.log.Info("system event", logx.String("kind", string(ev.Kind)), logx.RawJSON("data", data))
	c.updates.Publish(Update{Notice: &Notice{Kind: ev.Kind, Data: data, At: ev.Time}})
	return nil
}
