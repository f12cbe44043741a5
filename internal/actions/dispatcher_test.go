package actions

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fuel-watchtower/internal/alerting"
)

type callLog struct {
	mu    sync.Mutex
	order []string
}

func (l *callLog) add(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.order = append(l.order, name)
}

func (l *callLog) calls() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.order...)
}

type fakePauser struct {
	name    string
	log     *callLog
	err     error
	block   bool
	onPause func()
}

func (f *fakePauser) Pause(ctx context.Context) error {
	f.log.add(f.name)
	if f.onPause != nil {
		f.onPause()
	}
	if f.block {
		<-ctx.Done()
		time.Sleep(10 * time.Millisecond)
		return nil
	}
	return f.err
}

type harness struct {
	dispatcher *Dispatcher
	alerts     chan alerting.AlertParams
	log        *callLog
	state      *fakePauser
	portal     *fakePauser
	gateway    *fakePauser
}

func newHarness() *harness {
	log := &callLog{}
	h := &harness{
		alerts:  make(chan alerting.AlertParams, 64),
		log:     log,
		state:   &fakePauser{name: "state", log: log},
		portal:  &fakePauser{name: "portal", log: log},
		gateway: &fakePauser{name: "gateway", log: log},
	}
	h.dispatcher = NewDispatcher(h.state, h.portal, h.gateway, h.alerts, DispatcherOptions{
		Timeout: 50 * time.Millisecond,
	}, zerolog.Nop())
	return h
}

func (h *harness) drain() []alerting.AlertParams {
	var out []alerting.AlertParams
	for {
		select {
		case a := <-h.alerts:
			out = append(out, a)
		default:
			return out
		}
	}
}

func TestDispatcherSingleContract(t *testing.T) {
	t.Run("pause state success", func(t *testing.T) {
		h := newHarness()

		h.dispatcher.handle(t.Context(), ActionParams{Action: PauseState, Level: alerting.Error})

		assert.Equal(t, []string{"state"}, h.log.calls())
		assert.Equal(t, []alerting.AlertParams{
			alerting.NewAlert("Pausing state contract", "", alerting.Info),
			alerting.NewAlert("Successfully paused state contract", "", alerting.Info),
		}, h.drain())
	})

	t.Run("pause state failure uses carried level", func(t *testing.T) {
		h := newHarness()
		h.state.err = errors.New("Mock pause error")

		h.dispatcher.handle(t.Context(), ActionParams{Action: PauseState, Level: alerting.Warn})

		assert.Equal(t, []string{"state"}, h.log.calls())
		assert.Equal(t, []alerting.AlertParams{
			alerting.NewAlert("Pausing state contract", "", alerting.Info),
			alerting.NewAlert("Failed to pause state contract", "Mock pause error", alerting.Warn),
		}, h.drain())
	})

	t.Run("pause gateway and portal", func(t *testing.T) {
		h := newHarness()

		h.dispatcher.handle(t.Context(), ActionParams{Action: PauseGateway, Level: alerting.Error})
		h.dispatcher.handle(t.Context(), ActionParams{Action: PausePortal, Level: alerting.Error})

		assert.Equal(t, []string{"gateway", "portal"}, h.log.calls())
		alerts := h.drain()
		require.Len(t, alerts, 4)
		assert.Equal(t, "Successfully paused gateway contract", alerts[1].Name)
		assert.Equal(t, "Successfully paused portal contract", alerts[3].Name)
	})

	t.Run("timeout uses carried level", func(t *testing.T) {
		h := newHarness()
		h.portal.block = true

		start := time.Now()
		h.dispatcher.handle(t.Context(), ActionParams{Action: PausePortal, Level: alerting.Error})

		assert.Less(t, time.Since(start), time.Second)
		assert.Equal(t, []alerting.AlertParams{
			alerting.NewAlert("Pausing portal contract", "", alerting.Info),
			alerting.NewAlert("Timeout while pausing portal contract", "", alerting.Error),
		}, h.drain())
	})

	t.Run("collaborator deadline error is a failure, not a timeout", func(t *testing.T) {
		h := newHarness()
		h.state.err = fmt.Errorf("query chain id: %w", context.DeadlineExceeded)

		h.dispatcher.handle(t.Context(), ActionParams{Action: PauseState, Level: alerting.Error})

		assert.Equal(t, []alerting.AlertParams{
			alerting.NewAlert("Pausing state contract", "", alerting.Info),
			alerting.NewAlert("Failed to pause state contract", "query chain id: context deadline exceeded", alerting.Error),
		}, h.drain())
	})

	t.Run("shutdown during pause raises no outcome alert", func(t *testing.T) {
		h := newHarness()
		h.gateway.block = true
		ctx, cancel := context.WithCancel(t.Context())
		h.gateway.onPause = cancel

		h.dispatcher.handle(ctx, ActionParams{Action: PauseGateway, Level: alerting.Error})

		assert.Equal(t, []string{"gateway"}, h.log.calls())
		assert.Equal(t, []alerting.AlertParams{
			alerting.NewAlert("Pausing gateway contract", "", alerting.Info),
		}, h.drain())
	})

	t.Run("none is a no-op", func(t *testing.T) {
		h := newHarness()

		h.dispatcher.handle(t.Context(), ActionParams{Action: None, Level: alerting.Error})

		assert.Empty(t, h.log.calls())
		assert.Empty(t, h.drain())
	})
}

func TestDispatcherPauseAll(t *testing.T) {
	t.Run("fixed order", func(t *testing.T) {
		h := newHarness()

		h.dispatcher.handle(t.Context(), ActionParams{Action: PauseAll, Level: alerting.Error})

		assert.Equal(t, []string{"state", "gateway", "portal"}, h.log.calls())
		names := []string{}
		for _, a := range h.drain() {
			names = append(names, a.Name)
		}
		assert.Equal(t, []string{
			"Pausing state contract",
			"Successfully paused state contract",
			"Pausing gateway contract",
			"Successfully paused gateway contract",
			"Pausing portal contract",
			"Successfully paused portal contract",
		}, names)
	})

	t.Run("continues after failure and timeout", func(t *testing.T) {
		h := newHarness()
		h.state.err = errors.New("reverted")
		h.gateway.block = true

		h.dispatcher.handle(t.Context(), ActionParams{Action: PauseAll, Level: alerting.Warn})

		assert.Equal(t, []string{"state", "gateway", "portal"}, h.log.calls())
		assert.Equal(t, []alerting.AlertParams{
			alerting.NewAlert("Pausing state contract", "", alerting.Info),
			alerting.NewAlert("Failed to pause state contract", "reverted", alerting.Warn),
			alerting.NewAlert("Pausing gateway contract", "", alerting.Info),
			alerting.NewAlert("Timeout while pausing gateway contract", "", alerting.Warn),
			alerting.NewAlert("Pausing portal contract", "", alerting.Info),
			alerting.NewAlert("Successfully paused portal contract", "", alerting.Info),
		}, h.drain())
	})
}

func TestDispatcherRun(t *testing.T) {
	t.Run("processes queued actions", func(t *testing.T) {
		h := newHarness()
		ctx, cancel := context.WithCancel(t.Context())
		done := make(chan error, 1)
		go func() { done <- h.dispatcher.Run(ctx) }()

		h.dispatcher.Sender() <- ActionParams{Action: PauseGateway, Level: alerting.Error}
		assert.Eventually(t, func() bool { return len(h.log.calls()) == 1 }, time.Second, 5*time.Millisecond)

		cancel()
		assert.NoError(t, <-done)
	})

	t.Run("closed channel raises final error alert", func(t *testing.T) {
		h := newHarness()
		h.dispatcher.Close()

		err := h.dispatcher.Run(t.Context())

		assert.ErrorIs(t, err, ErrActionChannelClosed)
		assert.Equal(t, []alerting.AlertParams{
			alerting.NewAlert("Connections to the ethereum actions thread have all closed", "", alerting.Error),
		}, h.drain())
	})
}

func TestEthereumActionText(t *testing.T) {
	var a EthereumAction
	require.NoError(t, a.UnmarshalText([]byte("pauseall")))
	assert.Equal(t, PauseAll, a)
	assert.Error(t, a.UnmarshalText([]byte("Explode")))
	assert.Equal(t, "PauseGateway", PauseGateway.String())
}
