package periodic

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("cycle did not run")
	}
}

func TestRun_ImmediateThenEveryTick(t *testing.T) {
	clock := clockwork.NewFakeClock()
	l := New("test", time.Minute, clock, discard())

	ran := make(chan struct{}, 4)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.Run(ctx, func(context.Context) { ran <- struct{}{} }, nil)
		close(done)
	}()

	waitFor(t, ran)
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	// Wait until the first cycle has returned to Idle before ticking.
	require.Eventually(t, func() bool { return !l.Running() }, time.Second, time.Millisecond)
	clock.Advance(time.Minute)
	waitFor(t, ran)

	cancel()
	waitFor(t, done)
}

func TestRun_SkipsOverlappingTick(t *testing.T) {
	clock := clockwork.NewFakeClock()
	l := New("test", time.Minute, clock, discard())

	release := make(chan struct{})
	started := make(chan struct{}, 4)
	var skips atomic.Int32

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.Run(ctx, func(context.Context) {
			started <- struct{}{}
			<-release
		}, func() { skips.Add(1) })
		close(done)
	}()

	waitFor(t, started)
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(time.Minute)
	require.Eventually(t, func() bool { return skips.Load() == 1 }, time.Second, time.Millisecond)
	assert.Empty(t, started, "no second cycle while the first runs")

	close(release)
	cancel()
	waitFor(t, done)
}

func TestTryRun_Busy(t *testing.T) {
	l := New("test", time.Minute, clockwork.NewFakeClock(), discard())

	var inner error
	err := l.TryRun(context.Background(), func(ctx context.Context) {
		assert.True(t, l.Running())
		inner = l.TryRun(ctx, func(context.Context) { t.Error("nested cycle ran") })
	})
	require.NoError(t, err)
	assert.ErrorIs(t, inner, ErrBusy)
	assert.False(t, l.Running())
}
