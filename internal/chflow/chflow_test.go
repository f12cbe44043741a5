package chflow

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReceive(t *testing.T) {
	t.Run("successful receive", func(t *testing.T) {
		ch := make(chan int, 1)
		ch <- 42

		value, ok, closed := Receive(t.Context(), ch)

		assert.True(t, ok)
		assert.False(t, closed)
		assert.Equal(t, 42, value)
	})

	t.Run("context canceled before receive", func(t *testing.T) {
		ch := make(chan int)
		ctx, cancel := context.WithCancel(t.Context())
		cancel()

		value, ok, closed := Receive(ctx, ch)

		assert.False(t, ok)
		assert.False(t, closed)
		assert.Equal(t, 0, value)
	})

	t.Run("channel closed", func(t *testing.T) {
		ch := make(chan string)
		close(ch)

		value, ok, closed := Receive(t.Context(), ch)

		assert.False(t, ok)
		assert.True(t, closed)
		assert.Equal(t, "", value)
	})
}

func TestSend(t *testing.T) {
	t.Run("successful send", func(t *testing.T) {
		ch := make(chan int, 1)

		assert.True(t, Send(t.Context(), ch, 7))
		assert.Equal(t, 7, <-ch)
	})

	t.Run("context canceled while blocked", func(t *testing.T) {
		ch := make(chan int)
		ctx, cancel := context.WithCancel(t.Context())
		cancel()

		assert.False(t, Send(ctx, ch, 7))
	})
}

func TestTrySend(t *testing.T) {
	ch := make(chan int, 1)

	assert.True(t, TrySend(ch, 1))
	assert.False(t, TrySend(ch, 2), "full channel must not block")
	assert.Equal(t, 1, <-ch)
	assert.Empty(t, ch)
}

func TestRace(t *testing.T) {
	t.Run("operation wins", func(t *testing.T) {
		v, err := Race(t.Context(), time.Second, func(ctx context.Context) (string, error) {
			return "done", nil
		})

		require.NoError(t, err)
		assert.Equal(t, "done", v)
	})

	t.Run("operation error is returned", func(t *testing.T) {
		boom := errors.New("boom")
		_, err := Race(t.Context(), time.Second, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, boom
		})

		assert.ErrorIs(t, err, boom)
	})

	t.Run("deadline wins over operation ignoring context", func(t *testing.T) {
		release := make(chan struct{})
		defer close(release)

		start := time.Now()
		_, err := Race(t.Context(), 20*time.Millisecond, func(ctx context.Context) (int, error) {
			<-release
			return 1, nil
		})

		assert.ErrorIs(t, err, ErrDeadline)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Less(t, time.Since(start), time.Second)
	})

	t.Run("operation deadline is not the race deadline", func(t *testing.T) {
		_, err := Race(t.Context(), time.Second, func(ctx context.Context) (int, error) {
			return 0, fmt.Errorf("query chain id: %w", context.DeadlineExceeded)
		})

		require.ErrorIs(t, err, context.DeadlineExceeded)
		assert.NotErrorIs(t, err, ErrDeadline)
		assert.Equal(t, "query chain id: context deadline exceeded", err.Error())
	})

	t.Run("operation honouring the deadline reports ErrDeadline", func(t *testing.T) {
		_, err := Race(t.Context(), 20*time.Millisecond, func(ctx context.Context) (int, error) {
			<-ctx.Done()
			return 0, ctx.Err()
		})

		assert.ErrorIs(t, err, ErrDeadline)
	})

	t.Run("parent cancellation is not a timeout", func(t *testing.T) {
		ctx, cancel := context.WithCancel(t.Context())
		cancel()

		_, err := Race(ctx, time.Second, func(ctx context.Context) (int, error) {
			<-ctx.Done()
			return 0, ctx.Err()
		})

		assert.ErrorIs(t, err, context.Canceled)
		assert.NotErrorIs(t, err, ErrDeadline)
	})
}
