package desktop

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"notifysync/internal/eventbus"
	"notifysync/internal/notification"
	"notifysync/internal/runtime/loop"
	logx "notifysync/pkg/logx"
)

const (
	DefaultAutoDismiss   = 10 * time.Second
	DefaultSeenRetention = 30 * 24 * time.Hour
)

type Config struct {
	Enabled     bool
	AppName     string
	Icon        string
	AutoDismiss time.Duration
	// RatePerSec limits renders; 0 disables the limit.
	RatePerSec float64
	// PersistSeen records rendered ids in the SeenStore.
	PersistSeen   bool
	SeenRetention time.Duration
}

// SeenStore persists ids that were already rendered.
type SeenStore interface {
	PutSeen(ctx context.Context, key string, until time.Time) error
	GetSeen(ctx context.Context, key string) (until time.Time, ok bool, err error)
}

// Stats counts notifier outcomes since construction.
type Stats struct {
	Shown       int
	Skipped     int
	RateLimited int
	Failed      int
}

type Option func(*Notifier)

func WithLogger(log logx.Logger) Option { return func(n *Notifier) { n.log = log } }

func WithNavigator(nav Navigator) Option { return func(n *Notifier) { n.nav = nav } }

func WithSeenStore(st SeenStore) Option { return func(n *Notifier) { n.seen = st } }

func WithClock(now func() time.Time) Option { return func(n *Notifier) { n.now = now } }

type shown struct {
	handle Handle
	timer  loop.Timer
	route  string
}

type seenWrite struct {
	key   string
	until time.Time
}

type Notifier struct {
	cfg      Config
	platform Platform
	sched    loop.Scheduler
	exec     loop.Executor
	nav      Navigator
	seen     SeenStore
	log      logx.Logger
	now      func() time.Time

	limiter *rate.Limiter
	active  map[string]*shown
	stats   Stats

	persistCh chan seenWrite
}

func New(cfg Config, platform Platform, sched loop.Scheduler, exec loop.Executor, opts ...Option) *Notifier {
	if platform == nil {
		platform = Nop{}
	}
	if exec == nil {
		exec = loop.Inline{}
	}
	n := &Notifier{
		platform:  platform,
		sched:     sched,
		exec:      exec,
		now:       time.Now,
		active:    map[string]*shown{},
		persistCh: make(chan seenWrite, 256),
	}
	for _, o := range opts {
		if o != nil {
			o(n)
		}
	}
	if n.log.IsZero() {
		n.log = logx.Nop()
	}
	n.log = n.log.With(logx.String("comp", "desktop"))
	if n.nav == nil {
		n.nav = NavigatorFunc(func(target string) {
			n.log.Info("navigate", logx.String("target", target))
		})
	}
	n.Apply(cfg)
	return n
}

// Apply swaps the configuration. Open notifications keep their timers.
func (n *Notifier) Apply(cfg Config) {
	if cfg.AutoDismiss <= 0 {
		cfg.AutoDismiss = DefaultAutoDismiss
	}
	if cfg.SeenRetention <= 0 {
		cfg.SeenRetention = DefaultSeenRetention
	}
	if cfg.RatePerSec < 0 {
		cfg.RatePerSec = 0
	}
	n.cfg = cfg
	if cfg.RatePerSec > 0 {
		burst := int(cfg.RatePerSec)
		if burst < 1 {
			burst = 1
		}
		n.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), burst)
	} else {
		n.limiter = nil
	}
}

func (n *Notifier) Config() Config { return n.cfg }

func (n *Notifier) Stats() Stats { return n.stats }

// Permission returns the platform's current permission.
func (n *Notifier) Permission() Permission {
	if !n.platform.Supported() {
		return PermissionUnsupported
	}
	return n.platform.Permission()
}

// RequestPermission asks the platform for permission and reports whether it
// is granted. It only touches the platform and may be called off the loop.
func (n *Notifier) RequestPermission(ctx context.Context) (bool, error) {
	if !n.platform.Supported() {
		return false, nil
	}
	switch n.platform.Permission() {
	case PermissionGranted:
		return true, nil
	case PermissionDenied:
		return false, nil
	}
	p, err := n.platform.RequestPermission(ctx)
	if err != nil {
		return false, err
	}
	n.log.Info("desktop permission", logx.String("permission", string(p)))
	return p == PermissionGranted, nil
}

// Attach subscribes the notifier to new-notification events.
func (n *Notifier) Attach(d *eventbus.Dispatcher) (detach func()) {
	return d.Subscribe(eventbus.KindNotificationNew, n.Handle)
}

// Handle renders one "notification:new" event.
func (n *Notifier) Handle(ev eventbus.Event) error {
	if !n.cfg.Enabled {
		return nil
	}
	item, err := notification.Decode(ev.Data)
	if err != nil {
		return err
	}
	return n.Show(item)
}

// Show renders item if permission allows. Denied or unsupported platforms are
// skipped silently.
func (n *Notifier) Show(item notification.Notification) error {
	if perm := n.Permission(); perm != PermissionGranted {
		n.stats.Skipped++
		n.log.Debug("desktop skipped", logx.String("id", item.ID), logx.String("permission", string(perm)))
		return nil
	}
	if n.cfg.PersistSeen && n.seen != nil && n.alreadySeen(item.ID) {
		n.stats.Skipped++
		return nil
	}
	if n.limiter != nil && !n.limiter.Allow() {
		n.stats.RateLimited++
		n.log.Warn("desktop notification rate limited", logx.String("id", item.ID))
		return nil
	}

	// Same tag replaces the previous notification.
	n.close(item.ID)

	toast := Toast{
		Title:              item.Title,
		Body:               item.Message,
		Icon:               n.cfg.Icon,
		Tag:                item.ID,
		RequireInteraction: item.Priority == notification.PriorityHigh,
		Actions: []Action{
			{ID: ActionView, Title: "View"},
			{ID: ActionDismiss, Title: "Dismiss"},
		},
	}
	st := &shown{route: Route(item.Category())}
	id := item.ID
	h, err := n.platform.Show(toast, func(action string) {
		n.exec.Post(func() { n.onAction(id, st, action) })
	})
	if err != nil {
		n.stats.Failed++
		return err
	}
	st.handle = h
	n.active[id] = st
	n.stats.Shown++

	if !toast.RequireInteraction && n.sched != nil {
		st.timer = n.sched.AfterFunc(n.cfg.AutoDismiss, func() {
			if n.active[id] == st {
				n.log.Debug("auto-dismiss", logx.String("id", id))
				n.close(id)
			}
		})
	}
	if n.cfg.PersistSeen && n.seen != nil {
		n.markSeen(id)
	}
	return nil
}

func (n *Notifier) onAction(id string, st *shown, action string) {
	if n.active[id] != st {
		return
	}
	switch action {
	case ActionDefault, ActionView:
		n.nav.Navigate(st.route)
		n.close(id)
	case ActionDismiss:
		n.close(id)
	case ActionClosed:
		n.forget(id)
	default:
		n.log.Debug("unknown desktop action", logx.String("id", id), logx.String("action", action))
	}
}

// Close closes the notification tagged id, if open.
func (n *Notifier) Close(id string) { n.close(id) }

func (n *Notifier) close(id string) {
	st := n.forget(id)
	if st == nil || st.handle == nil {
		return
	}
	if err := st.handle.Close(); err != nil {
		n.log.Debug("desktop close failed", logx.String("id", id), logx.Err(err))
	}
}

func (n *Notifier) forget(id string) *shown {
	st, ok := n.active[id]
	if !ok {
		return nil
	}
	delete(n.active, id)
	if st.timer != nil {
		st.timer.Stop()
	}
	return st
}

// Active returns the tags of the notifications currently open.
func (n *Notifier) Active() []string {
	out := make([]string, 0, len(n.active))
	for id := range n.active {
		out = append(out, id)
	}
	return out
}

// CloseAll closes every open notification.
func (n *Notifier) CloseAll() {
	for id := range n.active {
		n.close(id)
	}
}

func (n *Notifier) alreadySeen(id string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, ok, err := n.seen.GetSeen(ctx, "desktop:"+id)
	if err != nil {
		n.log.Debug("seen lookup failed", logx.String("id", id), logx.Err(err))
		return false
	}
	return ok
}

func (n *Notifier) markSeen(id string) {
	select {
	case n.persistCh <- seenWrite{key: "desktop:" + id, until: n.now().Add(n.cfg.SeenRetention)}:
	default:
		n.log.Debug("seen write dropped", logx.String("id", id))
	}
}

// RunPersist drains seen-marker writes until ctx is done. Without it seen
// markers are only buffered.
func (n *Notifier) RunPersist(ctx context.Context) error {
	if n.seen == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case w := <-n.persistCh:
			cctx, cancel := context.WithTimeout(ctx, 250*time.Millisecond)
			if err := n.seen.PutSeen(cctx, w.key, w.until); err != nil {
				n.log.Debug("seen write failed", logx.String("key", w.key), logx.Err(err))
			}
			cancel()
		}
	}
}
