package app

import (
	"context"
	"fmt"
	"time"

	logx "notifysync/pkg/logx"
)

// stopStep is one bounded shutdown action. fn must honor its context.
type stopStep struct {
	name string
	max  time.Duration
	fn   func(context.Context) error
}

// runStopSteps runs steps in order. A step that overruns its budget is left
// running in the background and logged when it eventually returns, so one
// stuck component cannot stall the rest.
func (a *App) runStopSteps(ctx context.Context, steps []stopStep) {
	for _, s := range steps {
		a.runStopStep(ctx, s)
	}
}

func (a *App) runStopStep(ctx context.Context, s stopStep) {
	start := time.Now()
	name := logx.String("name", s.name)

	budget := s.max
	if dl, ok := ctx.Deadline(); ok {
		// never extend the caller's deadline
		budget = min(budget, time.Until(dl))
	}
	stepCtx, cancel := context.WithTimeout(ctx, max(budget, 0))
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", s.name, r)
			}
		}()
		done <- s.fn(stepCtx)
	}()

	select {
	case err := <-done:
		took := time.Since(start)
		switch {
		case err != nil:
			a.log.Warn("stop step error", name, logx.Err(err), logx.Duration("took", took))
		case took >= 500*time.Millisecond:
			a.log.Info("stop step slow", name, logx.Duration("took", took))
		default:
			a.log.Debug("stop step done", name, logx.Duration("took", took))
		}
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)", name, logx.Err(stepCtx.Err()), logx.Duration("elapsed", time.Since(start)))
		go func() {
			err := <-done
			a.log.Info("stop step finished after deadline", name, logx.Err(err), logx.Duration("took", time.Since(start)))
		}()
	}
}
