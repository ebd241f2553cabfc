package eventbus

import (
	"sync"
	"sync/atomic"
)

// Feed is a lightweight fan-out for values crossing from the loop to other
// goroutines.
//
// Contract:
//   - Publish never blocks.
//   - Subscribers get buffered channels.
//   - Slow subscribers drop values (bounded backpressure).
type Feed[T any] struct {
	mu   sync.RWMutex
	subs map[uint64]chan T
	seq  atomic.Uint64
}

func NewFeed[T any]() *Feed[T] {
	return &Feed[T]{subs: map[uint64]chan T{}}
}

func (f *Feed[T]) Publish(v T) {
	// Snapshot subscribers so Publish doesn't hold locks while sending.
	f.mu.RLock()
	chs := make([]chan T, 0, len(f.subs))
	for _, ch := range f.subs {
		chs = append(chs, ch)
	}
	f.mu.RUnlock()

	for _, ch := range chs {
		// A concurrent unsubscribe may close ch under us.
		func() {
			defer func() { _ = recover() }()
			select {
			case ch <- v:
			default:
			}
		}()
	}
}

func (f *Feed[T]) Subscribe(buffer int) (<-chan T, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan T, buffer)
	id := f.seq.Add(1)

	f.mu.Lock()
	f.subs[id] = ch
	f.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
			// Close() may have closed it already.
			defer func() { _ = recover() }()
			close(ch)
		})
	}
	return ch, unsub
}

// Close unsubscribes everyone.
func (f *Feed[T]) Close() {
	f.mu.Lock()
	subs := f.subs
	f.subs = map[uint64]chan T{}
	f.mu.Unlock()
	for _, ch := range subs {
		func() {
			defer func() { _ = recover() }()
			close(ch)
		}()
	}
}

func (f *Feed[T]) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}
