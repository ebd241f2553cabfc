package loop

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	logx "notifysync/pkg/logx"
)

var ErrStopped = errors.New("loop stopped")

// Executor runs fn on the owning goroutine. Post reports false when the
// executor no longer accepts work.
type Executor interface {
	Post(fn func()) bool
}

// Timer is a pending scheduled callback.
type Timer interface {
	// Stop cancels the timer. It reports false if the timer already fired
	// or was stopped.
	Stop() bool
}

// Scheduler creates timers.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) Timer
}

// Loop is an unbounded FIFO task queue drained by one goroutine (Run).
//
// Post never blocks, so tasks may post follow-up tasks. Call must not be used
// from inside a task: it waits for the loop and would deadlock.
type Loop struct {
	log logx.Logger

	mu      sync.Mutex
	queue   []func()
	stopped bool

	wake chan struct{}
	done chan struct{}
}

func New(log logx.Logger) *Loop {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Loop{
		log:  log,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

func (l *Loop) Post(fn func()) bool {
	if fn == nil {
		return false
	}
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Call runs fn on the loop and waits for it to return.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	if ctx == nil {
		ctx = context.Background()
	}
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrStopped
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		// The task may have been the last one drained.
		select {
		case <-finished:
			return nil
		default:
			return ErrStopped
		}
	}
}

// Run drains tasks until ctx is canceled. Pending tasks are dropped on exit.
func (l *Loop) Run(ctx context.Context) error {
	defer func() {
		l.mu.Lock()
		l.stopped = true
		l.queue = nil
		l.mu.Unlock()
		close(l.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}

		for {
			l.mu.Lock()
			batch := l.queue
			l.queue = nil
			l.mu.Unlock()
			if len(batch) == 0 {
				break
			}
			for _, fn := range batch {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				l.run(fn)
			}
		}
	}
}

func (l *Loop) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("loop task panicked", logx.Any("panic", r), logx.Stack(string(debug.Stack())))
		}
	}()
	fn()
}

// Done is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} { return l.done }

// AfterFunc schedules fn to run on the loop after d.
func (l *Loop) AfterFunc(d time.Duration, fn func()) Timer {
	return &loopTimer{t: time.AfterFunc(d, func() {
		if !l.Post(fn) {
			l.log.Debug("timer fired after loop stop", logx.Duration("after", d))
		}
	})}
}

type loopTimer struct{ t *time.Timer }

func (t *loopTimer) Stop() bool { return t.t.Stop() }

// Inline runs tasks on the caller's goroutine. Useful in tests and for
// components used outside a loop.
type Inline struct{}

func (Inline) Post(fn func()) bool {
	if fn == nil {
		return false
	}
	fn()
	return true
}

func (l *Loop) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fmt.Sprintf("loop(pending=%d stopped=%v)", len(l.queue), l.stopped)
}
