// Package chflow provides context-aware helpers for receiving from and
// sending to Go channels, and for bounding an operation by a deadline.
package chflow

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Receive waits to receive a value from the provided channel or for the context to be canceled.
// It returns the value (zero value if canceled) and a boolean indicating if the receive was successful.
// A closed channel reports false with closed set to true.
func Receive[T any](ctx context.Context, ch <-chan T) (data T, ok bool, closed bool) {
	select {
	case <-ctx.Done():
		return data, false, false
	case data, ok = <-ch:
		return data, ok, !ok
	}
}

// Send attempts to send a value to the provided channel unless the context is canceled first.
// It returns true if the send was successful, false if the context was done before sent.
func Send[T any](ctx context.Context, ch chan<- T, data T) bool {
	select {
	case <-ctx.Done():
		return false
	case ch <- data:
		return true
	}
}

// TrySend sends a value only if the channel can take it without blocking.
func TrySend[T any](ch chan<- T, data T) bool {
	select {
	case ch <- data:
		return true
	default:
		return false
	}
}

// ErrDeadline is returned by Race when its own timeout fired. It matches
// context.DeadlineExceeded, but an operation returning DeadlineExceeded from
// a deadline of its own does not match ErrDeadline.
var ErrDeadline = fmt.Errorf("operation timed out: %w", context.DeadlineExceeded)

// Race runs op with a context bounded by timeout and returns whichever comes
// first: the operation result or the deadline. An operation that ignores its
// context keeps running in the background but its result is discarded.
// When the timeout fires the returned error is ErrDeadline. Cancellation of
// ctx is returned as ctx.Err().
func Race[T any](ctx context.Context, timeout time.Duration, op func(ctx context.Context) (T, error)) (T, error) {
	raceCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		value T
		err   error
	}

	done := make(chan result, 1)
	go func() {
		v, err := op(raceCtx)
		done <- result{value: v, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil && timedOut(ctx, raceCtx) {
			return res.value, ErrDeadline
		}
		return res.value, res.err
	case <-raceCtx.Done():
		var zero T
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		return zero, ErrDeadline
	}
}

// timedOut reports whether raceCtx expired on its own timeout rather than
// through its parent.
func timedOut(parent, raceCtx context.Context) bool {
	return parent.Err() == nil && errors.Is(raceCtx.Err(), context.DeadlineExceeded)
}
