package scheduler

import (
	"bytes"
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestRunTicksImmediatelyThenEveryInterval(t *testing.T) {
	s := New(Options{Name: "test", Interval: 10 * time.Millisecond}, zerolog.Nop())
	ctx, cancel := context.WithCancel(t.Context())

	var ticks atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func(ctx context.Context) { ticks.Add(1) })
	}()

	assert.Eventually(t, func() bool { return ticks.Load() >= 3 }, time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestRunFirstTickIsNotDelayedByInterval(t *testing.T) {
	s := New(Options{Interval: time.Hour}, zerolog.Nop())
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	ticked := make(chan struct{}, 1)
	go func() {
		_ = s.Run(ctx, func(ctx context.Context) { ticked <- struct{}{} })
	}()

	select {
	case <-ticked:
	case <-time.After(time.Second):
		t.Fatal("first tick should run immediately")
	}
}

func TestRunLogsWithLoopFields(t *testing.T) {
	var buf bytes.Buffer
	s := New(Options{Name: "ethereum", Interval: time.Hour}, zerolog.New(&buf).Level(zerolog.DebugLevel))
	ctx, cancel := context.WithCancel(t.Context())

	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func(ctx context.Context) { cancel() })
	}()
	assert.ErrorIs(t, <-done, context.Canceled)

	out := buf.String()
	assert.Contains(t, out, `"component":"scheduler"`)
	assert.Contains(t, out, `"loop":"ethereum"`)
	assert.Contains(t, out, "poll iteration finished")
}

func TestNewPanicsOnInvalidInterval(t *testing.T) {
	assert.Panics(t, func() { New(Options{}, zerolog.Nop()) })
}
