// Package periodic runs a cycle immediately and then on every tick of a
// clock, never letting two cycles of the same loop overlap.
package periodic

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
)

// ErrBusy is returned by TryRun while a cycle is in progress.
var ErrBusy = errors.New("cycle already running")

// Loop is an Idle/Running state machine driven by a ticker.
type Loop struct {
	name     string
	interval time.Duration
	clock    clockwork.Clock
	logger   *slog.Logger
	running  atomic.Bool
	wg       sync.WaitGroup
}

// New creates a Loop. A nil clock uses real time.
func New(name string, interval time.Duration, clock clockwork.Clock, logger *slog.Logger) *Loop {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Loop{name: name, interval: interval, clock: clock, logger: logger}
}

// Running reports whether a cycle is in progress.
func (l *Loop) Running() bool { return l.running.Load() }

// TryRun runs fn synchronously unless a cycle is already in progress.
func (l *Loop) TryRun(ctx context.Context, fn func(context.Context)) error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer l.running.Store(false)
	fn(ctx)
	return nil
}

// Run starts fn at once and then on every tick until ctx is cancelled. A
// tick that arrives while the previous cycle is still running is dropped and
// reported through onSkip. Run waits for the in-flight cycle before
// returning.
func (l *Loop) Run(ctx context.Context, fn func(context.Context), onSkip func()) {
	ticker := l.clock.NewTicker(l.interval)
	defer ticker.Stop()

	l.logger.Info("loop started", "loop", l.name, "interval", l.interval)
	l.start(ctx, fn, onSkip)
	for {
		select {
		case <-ctx.Done():
			l.wg.Wait()
			l.logger.Info("loop stopped", "loop", l.name, "reason", ctx.Err())
			return
		case <-ticker.Chan():
			l.start(ctx, fn, onSkip)
		}
	}
}

func (l *Loop) start(ctx context.Context, fn func(context.Context), onSkip func()) {
	if !l.running.CompareAndSwap(false, true) {
		l.logger.Warn("previous cycle still running, skipping tick", "loop", l.name)
		if onSkip != nil {
			onSkip()
		}
		return
	}
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer l.running.Store(false)
		fn(ctx)
	}()
}
