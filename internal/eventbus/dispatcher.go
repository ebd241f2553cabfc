package eventbus

import (
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	logx "notifysync/pkg/logx"
)

// Kind names an event. Server-originated kinds use the wire names verbatim.
type Kind string

const (
	KindConnect         Kind = "connect"
	KindDisconnect      Kind = "disconnect"
	KindConnectError    Kind = "connect_error"
	KindReconnectFailed Kind = "reconnect_failed"

	KindNotificationNew    Kind = "notification:new"
	KindNotificationUpdate Kind = "notification:update"
	KindNotificationDelete Kind = "notification:delete"

	KindSystemMaintenance Kind = "system:maintenance"
	KindSystemUpdate      Kind = "system:update"
)

// Known reports whether k is one of the kinds notifysync consumes.
func (k Kind) Known() bool {
	switch k {
	case KindConnect, KindDisconnect, KindConnectError, KindReconnectFailed,
		KindNotificationNew, KindNotificationUpdate, KindNotificationDelete,
		KindSystemMaintenance, KindSystemUpdate:
		return true
	}
	return false
}

// Event is one dispatched signal. Data is passed through untouched; for
// server kinds it is the raw JSON payload (json.RawMessage).
type Event struct {
	Kind Kind
	Time time.Time
	Data any
}

// Handler receives dispatched events. A returned error is logged and never
// stops delivery to the remaining handlers.
type Handler func(ev Event) error

var ErrNilHandler = errors.New("eventbus: nil handler")

type subscription struct {
	id     uint64
	fn     Handler
	active bool
}

// Dispatcher is a kind -> ordered handler list registry.
//
// Re-entrant Dispatch calls (a handler dispatching again) run on the current
// call stack. There is no recursion guard; handlers that dispatch the kind
// they handle must terminate on their own.
type Dispatcher struct {
	log  logx.Logger
	subs map[Kind][]*subscription
	seq  uint64
}

func NewDispatcher(log logx.Logger) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{log: log, subs: map[Kind][]*subscription{}}
}

// Subscribe registers fn for kind and returns its unsubscribe func.
// Unsubscribe is idempotent.
func (d *Dispatcher) Subscribe(kind Kind, fn Handler) (unsubscribe func()) {
	if fn == nil {
		d.log.Warn("ignoring nil handler", logx.String("kind", string(kind)))
		return func() {}
	}
	d.seq++
	sub := &subscription{id: d.seq, fn: fn, active: true}
	d.subs[kind] = append(d.subs[kind], sub)

	return func() {
		if !sub.active {
			return
		}
		sub.active = false
		d.remove(kind, sub.id)
	}
}

func (d *Dispatcher) remove(kind Kind, id uint64) {
	cur := d.subs[kind]
	// Copy instead of shifting in place: an in-flight Dispatch may be ranging
	// over the old slice.
	next := make([]*subscription, 0, len(cur))
	for _, s := range cur {
		if s.id != id {
			next = append(next, s)
		}
	}
	if len(next) == 0 {
		delete(d.subs, kind)
		return
	}
	d.subs[kind] = next
}

// Dispatch invokes every handler currently registered for kind, in
// registration order.
func (d *Dispatcher) Dispatch(kind Kind, data any) {
	subs := d.subs[kind]
	if len(subs) == 0 {
		return
	}
	ev := Event{Kind: kind, Time: time.Now(), Data: data}
	for _, s := range subs {
		// Unsubscribed by an earlier handler of this same dispatch.
		if !s.active {
			continue
		}
		if err := d.invoke(s, ev); err != nil {
			d.log.Warn("event handler failed", logx.String("kind", string(kind)), logx.Uint64("sub", s.id), logx.Err(err))
		}
	}
}

func (d *Dispatcher) invoke(s *subscription, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("event handler panicked", logx.String("kind", string(ev.Kind)), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.fn(ev)
}

// Len returns the number of handlers registered for kind.
func (d *Dispatcher) Len(kind Kind) int { return len(d.subs[kind]) }

// Kinds returns the number of kinds with at least one handler.
func (d *Dispatcher) Kinds() int { return len(d.subs) }
