package notification

import (
	"errors"
	"fmt"
	"time"

	"notifysync/internal/eventbus"
	logx "notifysync/pkg/logx"
)

var ErrUnsupportedKind = errors.New("notification: unsupported push kind")

type entry struct {
	n Notification
	// pushed marks items that arrived by push and have not been seen in a
	// baseline yet; Hydrate keeps them.
	pushed bool
}

// Store is the merged notification collection, newest first.
type Store struct {
	log logx.Logger
	now func() time.Time

	items []*entry
	index map[string]*entry

	// Ids deleted locally whose removal the server has not confirmed yet.
	pendingDeletes map[string]struct{}

	onChange func()
}

type Option func(*Store)

// WithClock overrides the clock used for optimistic readAt stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func WithLogger(log logx.Logger) Option {
	return func(s *Store) { s.log = log }
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		now:            time.Now,
		index:          map[string]*entry{},
		pendingDeletes: map[string]struct{}{},
	}
	for _, o := range opts {
		o(s)
	}
	if s.log.IsZero() {
		s.log = logx.Nop()
	}
	return s
}

// SetOnChange installs a hook called after every mutation.
func (s *Store) SetOnChange(fn func()) { s.onChange = fn }

func (s *Store) changed() {
	if s.onChange != nil {
		s.onChange()
	}
}

// Hydrate merges a freshly fetched baseline.
//
// Baseline order wins and its mutable fields overwrite local ones, except
// that a local readAt is never cleared. Items pushed since the last baseline
// and missing from this one stay in front. Ids with a pending local delete
// stay hidden until the baseline stops listing them.
func (s *Store) Hydrate(baseline []Notification) {
	inBaseline := make(map[string]struct{}, len(baseline))
	merged := make([]*entry, 0, len(baseline))
	for _, b := range baseline {
		n, err := Decode(b)
		if err != nil {
			s.log.Debug("skipping baseline item", logx.Err(err))
			continue
		}
		if _, dup := inBaseline[n.ID]; dup {
			continue
		}
		inBaseline[n.ID] = struct{}{}
		if _, pending := s.pendingDeletes[n.ID]; pending {
			continue
		}
		if old, ok := s.index[n.ID]; ok && old.n.ReadAt != nil && n.ReadAt == nil {
			t := *old.n.ReadAt
			n.ReadAt = &t
		}
		merged = append(merged, &entry{n: n})
	}

	front := make([]*entry, 0)
	for _, e := range s.items {
		if _, ok := inBaseline[e.n.ID]; !ok && e.pushed {
			front = append(front, e)
		}
	}

	for id := range s.pendingDeletes {
		if _, ok := inBaseline[id]; !ok {
			delete(s.pendingDeletes, id)
		}
	}

	s.items = append(front, merged...)
	s.reindex()
	s.changed()
}

func (s *Store) reindex() {
	s.index = make(map[string]*entry, len(s.items))
	for _, e := range s.items {
		s.index[e.n.ID] = e
	}
}

// ApplyPush applies one server push. Pushes for ids with a pending local
// delete are ignored, except "delete" which reconciles it.
func (s *Store) ApplyPush(kind eventbus.Kind, data any) error {
	switch kind {
	case eventbus.KindNotificationNew:
		n, err := Decode(data)
		if err != nil {
			return err
		}
		if s.isPendingDelete(n.ID) {
			return nil
		}
		if _, ok := s.index[n.ID]; ok {
			return nil
		}
		s.prepend(n)
	case eventbus.KindNotificationUpdate:
		n, err := Decode(data)
		if err != nil {
			return err
		}
		if s.isPendingDelete(n.ID) {
			return nil
		}
		e, ok := s.index[n.ID]
		if !ok {
			s.prepend(n)
			break
		}
		mergeMutable(&e.n, n)
	case eventbus.KindNotificationDelete:
		id, err := DecodeID(data)
		if err != nil {
			return err
		}
		delete(s.pendingDeletes, id)
		if !s.remove(id) {
			return nil
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedKind, kind)
	}
	s.changed()
	return nil
}

func (s *Store) isPendingDelete(id string) bool {
	_, ok := s.pendingDeletes[id]
	return ok
}

func (s *Store) prepend(n Notification) {
	e := &entry{n: n, pushed: true}
	s.items = append([]*entry{e}, s.items...)
	s.index[n.ID] = e
}

func (s *Store) remove(id string) bool {
	if _, ok := s.index[id]; !ok {
		return false
	}
	delete(s.index, id)
	for i, e := range s.items {
		if e.n.ID == id {
			s.items = append(s.items[:i:i], s.items[i+1:]...)
			break
		}
	}
	return true
}

// mergeMutable copies everything but id and createdAt from src into dst.
// readAt only moves from unset to set.
func mergeMutable(dst *Notification, src Notification) {
	dst.Type = src.Type
	dst.Title = src.Title
	dst.Message = src.Message
	dst.Status = src.Status
	dst.Priority = src.Priority
	dst.Metadata = src.Metadata
	if dst.CreatedAt.IsZero() {
		dst.CreatedAt = src.CreatedAt
	}
	if dst.ReadAt == nil && src.ReadAt != nil {
		dst.ReadAt = src.ReadAt
	}
}

// MarkAsRead stamps readAt on id if it is unread. It reports whether the id
// exists; an already read item keeps its original readAt.
func (s *Store) MarkAsRead(id string) bool {
	e, ok := s.index[id]
	if !ok {
		return false
	}
	if e.n.ReadAt == nil {
		t := s.now()
		e.n.ReadAt = &t
		s.changed()
	}
	return true
}

// MarkAllAsRead stamps every unread item and returns the affected ids.
func (s *Store) MarkAllAsRead() []string {
	t := s.now()
	var ids []string
	for _, e := range s.items {
		if e.n.ReadAt == nil {
			ts := t
			e.n.ReadAt = &ts
			ids = append(ids, e.n.ID)
		}
	}
	if len(ids) > 0 {
		s.changed()
	}
	return ids
}

// DeleteLocal removes id optimistically and remembers it as a pending delete.
func (s *Store) DeleteLocal(id string) bool {
	if !s.remove(id) {
		return false
	}
	s.pendingDeletes[id] = struct{}{}
	s.changed()
	return true
}

// UnreadCount counts items without readAt. It is recomputed on every call.
func (s *Store) UnreadCount() int {
	n := 0
	for _, e := range s.items {
		if e.n.ReadAt == nil {
			n++
		}
	}
	return n
}

// All returns copies of every item, newest first.
func (s *Store) All() []Notification {
	out := make([]Notification, 0, len(s.items))
	for _, e := range s.items {
		out = append(out, e.n.Clone())
	}
	return out
}

func (s *Store) Get(id string) (Notification, bool) {
	e, ok := s.index[id]
	if !ok {
		return Notification{}, false
	}
	return e.n.Clone(), true
}

func (s *Store) Len() int { return len(s.items) }

func (s *Store) PendingDeletes() int { return len(s.pendingDeletes) }

// Attach subscribes the store to the notification push kinds.
func (s *Store) Attach(d *eventbus.Dispatcher) (detach func()) {
	kinds := []eventbus.Kind{
		eventbus.KindNotificationNew,
		eventbus.KindNotificationUpdate,
		eventbus.KindNotificationDelete,
	}
	unsubs := make([]func(), 0, len(kinds))
	for _, k := range kinds {
		unsubs = append(unsubs, d.Subscribe(k, func(ev eventbus.Event) error {
			return s.ApplyPush(ev.Kind, ev.Data)
		}))
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}
