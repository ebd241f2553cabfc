package loop

import (
	"sort"
	"sync"
	"time"
)

// Manual is a Scheduler driven by Advance. Callbacks run synchronously on the
// goroutine calling Advance, in deadline order (ties in creation order).
type Manual struct {
	mu     sync.Mutex
	now    time.Duration
	seq    uint64
	timers []*manualTimer
	delays []time.Duration
}

type manualTimer struct {
	m     *Manual
	id    uint64
	at    time.Duration
	fn    func()
	fired bool
	dead  bool
}

func NewManual() *Manual { return &Manual{} }

func (m *Manual) AfterFunc(d time.Duration, fn func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t := &manualTimer{m: m, id: m.seq, at: m.now + d, fn: fn}
	m.timers = append(m.timers, t)
	m.delays = append(m.delays, d)
	return t
}

func (t *manualTimer) Stop() bool {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	if t.fired || t.dead {
		return false
	}
	t.dead = true
	return true
}

// Advance moves the clock forward by d, firing every timer that comes due.
// Timers scheduled by fired callbacks are honored within the same window.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now + d
	m.mu.Unlock()

	for {
		m.mu.Lock()
		next := m.nextDueLocked(target)
		if next == nil {
			m.now = target
			m.mu.Unlock()
			return
		}
		m.now = next.at
		next.fired = true
		fn := next.fn
		m.mu.Unlock()

		if fn != nil {
			fn()
		}
	}
}

func (m *Manual) nextDueLocked(target time.Duration) *manualTimer {
	live := m.timers[:0]
	for _, t := range m.timers {
		if !t.fired && !t.dead {
			live = append(live, t)
		}
	}
	m.timers = live
	sort.SliceStable(m.timers, func(i, j int) bool {
		if m.timers[i].at != m.timers[j].at {
			return m.timers[i].at < m.timers[j].at
		}
		return m.timers[i].id < m.timers[j].id
	})
	if len(m.timers) == 0 || m.timers[0].at > target {
		return nil
	}
	return m.timers[0]
}

// Pending returns the number of timers that have neither fired nor been stopped.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.timers {
		if !t.fired && !t.dead {
			n++
		}
	}
	return n
}

// Delays returns the requested delay of every timer created so far.
func (m *Manual) Delays() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Duration(nil), m.delays...)
}
