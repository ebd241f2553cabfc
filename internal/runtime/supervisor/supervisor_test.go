package supervisor

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestGoRecordsFirstErrorAndCancels(t *testing.T) {
	s := New(context.Background(), WithCancelOnError(true))
	s.Go("failing", func(ctx context.Context) error { return errors.New("bad") })
	s.Go("waiter", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := s.Wait(ctx)
	if err == nil || !strings.Contains(err.Error(), "failing: bad") {
		t.Fatalf("Wait err = %v", err)
	}
}

func TestGoRecoversPanic(t *testing.T) {
	s := New(context.Background())
	s.Go0("panicky", func(ctx context.Context) { panic("oops") })
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Wait(ctx); err == nil || !strings.Contains(err.Error(), "panic in panicky") {
		t.Fatalf("Wait err = %v", err)
	}
}

func TestGoRestartRetriesUntilLimit(t *testing.T) {
	s := New(context.Background())
	var runs atomic.Int32
	s.GoRestart("flaky", func(ctx context.Context) error {
		runs.Add(1)
		return errors.New("again")
	}, WithRestartBackoff(time.Millisecond, 2*time.Millisecond), WithMaxRestarts(2))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Wait(ctx); err != nil {
		t.Fatalf("restart errors must not surface: %v", err)
	}
	if got := runs.Load(); got != 3 {
		t.Fatalf("runs = %d, want 3", got)
	}
}

func TestStopCancelsContext(t *testing.T) {
	s := New(context.Background())
	s.Go("blocker", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if c := s.Counters(); c.Active != 0 || c.Started != 1 {
		t.Fatalf("counters = %+v", c)
	}
}

func TestGoRestartRecoversPanics(t *testing.T) {
	s := New(context.Background())
	var runs atomic.Int32
	s.GoRestart("fragile", func(ctx context.Context) error {
		if runs.Add(1) < 3 {
			panic("boom")
		}
		return nil
	}, WithRestartBackoff(time.Millisecond, time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if got := runs.Load(); got != 3 {
		t.Fatalf("runs = %d, want 3", got)
	}
}
