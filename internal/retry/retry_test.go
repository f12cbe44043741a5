package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fast(attempts uint) Retry {
	return New(WithAttempts(attempts), WithDelay(time.Millisecond), WithMaxDelay(2*time.Millisecond))
}

func TestExecute(t *testing.T) {
	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		err := fast(3).Execute(t.Context(), func() error {
			calls++
			if calls < 3 {
				return errors.New("transient")
			}
			return nil
		})

		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("returns last error when attempts exhausted", func(t *testing.T) {
		calls := 0
		err := fast(2).Execute(t.Context(), func() error {
			calls++
			return errors.New("down")
		})

		assert.EqualError(t, err, "down")
		assert.Equal(t, 2, calls)
	})

	t.Run("zero attempts still runs once", func(t *testing.T) {
		calls := 0
		_ = fast(0).Execute(t.Context(), func() error {
			calls++
			return errors.New("down")
		})

		assert.Equal(t, 1, calls)
	})

	t.Run("stops on canceled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(t.Context())
		cancel()

		err := fast(5).Execute(ctx, func() error {
			return errors.New("down")
		})

		assert.Error(t, err)
	})
}

func TestValue(t *testing.T) {
	calls := 0
	v, err := Value(t.Context(), fast(3), func() (uint64, error) {
		calls++
		if calls == 1 {
			return 0, errors.New("transient")
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, uint64(42), v)
}
