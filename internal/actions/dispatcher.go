// Package actions executes the emergency pause operations requested by the
// watchers and reports their outcome as alerts.
package actions

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"fuel-watchtower/internal/alerting"
	"fuel-watchtower/internal/chflow"
	"fuel-watchtower/internal/logging"
	"fuel-watchtower/internal/telemetry"
)

// ErrActionChannelClosed is returned by Run once the action channel is closed.
var ErrActionChannelClosed = errors.New("action channel closed")

const (
	defaultPauseTimeout = 30 * time.Second
	defaultBufferSize   = 1024
)

// Pauser is a bridge contract that can be paused.
type Pauser interface {
	Pause(ctx context.Context) error
}

// DispatcherOptions tune the dispatcher.
type DispatcherOptions struct {
	// Timeout bounds every single pause attempt.
	Timeout time.Duration
	// BufferSize is the capacity of the action channel.
	BufferSize int
}

// Dispatcher is the single consumer of the action channel.
type Dispatcher struct {
	state   Pauser
	portal  Pauser
	gateway Pauser

	alerts  chan<- alerting.AlertParams
	actions chan ActionParams
	timeout time.Duration
	logger  zerolog.Logger

	closeOnce sync.Once
}

// NewDispatcher wires the three contracts and the alert channel used to
// report outcomes.
func NewDispatcher(state, portal, gateway Pauser, alerts chan<- alerting.AlertParams, opts DispatcherOptions, logger zerolog.Logger) *Dispatcher {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultPauseTimeout
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = defaultBufferSize
	}

	return &Dispatcher{
		state:   state,
		portal:  portal,
		gateway: gateway,
		alerts:  alerts,
		actions: make(chan ActionParams, opts.BufferSize),
		timeout: opts.Timeout,
		logger:  logging.Component(logger, "action_dispatcher"),
	}
}

// Sender returns the handle producers use to request actions.
func (d *Dispatcher) Sender() chan<- ActionParams {
	return d.actions
}

// Close closes the action channel.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() { close(d.actions) })
}

// Run consumes actions until ctx is canceled (returns nil) or the channel is
// closed, in which case a final Error alert is raised.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		params, ok, closed := chflow.Receive(ctx, d.actions)
		if closed {
			d.alert(ctx, alerting.NewAlert(
				"Connections to the ethereum actions thread have all closed", "", alerting.Error))
			return ErrActionChannelClosed
		}
		if !ok {
			return nil
		}

		d.handle(ctx, params)
	}
}

func (d *Dispatcher) handle(ctx context.Context, params ActionParams) {
	switch params.Action {
	case PauseState:
		d.pauseContract(ctx, "state", d.state, params.Level)
	case PauseGateway:
		d.pauseContract(ctx, "gateway", d.gateway, params.Level)
	case PausePortal:
		d.pauseContract(ctx, "portal", d.portal, params.Level)
	case PauseAll:
		d.pauseContract(ctx, "state", d.state, params.Level)
		d.pauseContract(ctx, "gateway", d.gateway, params.Level)
		d.pauseContract(ctx, "portal", d.portal, params.Level)
	case None:
	default:
		d.logger.Warn().Stringer("action", params.Action).Msg("ignoring unknown action")
	}
}

func (d *Dispatcher) pauseContract(ctx context.Context, name string, contract Pauser, level alerting.AlertLevel) {
	d.alert(ctx, alerting.NewAlert(fmt.Sprintf("Pausing %s contract", name), "", alerting.Info))

	_, err := chflow.Race(ctx, d.timeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, contract.Pause(ctx)
	})

	if ctx.Err() != nil {
		d.logger.Warn().Err(err).Str("contract", name).Msg("pause interrupted by shutdown")
		telemetry.RecordAction(context.WithoutCancel(ctx), name, "interrupted")
		return
	}

	switch {
	case err == nil:
		telemetry.RecordAction(ctx, name, "paused")
		d.alert(ctx, alerting.NewAlert(fmt.Sprintf("Successfully paused %s contract", name), "", alerting.Info))
	case errors.Is(err, chflow.ErrDeadline):
		telemetry.RecordAction(ctx, name, "timeout")
		d.alert(ctx, alerting.NewAlert(fmt.Sprintf("Timeout while pausing %s contract", name), "", level))
	default:
		telemetry.RecordAction(ctx, name, "failed")
		d.alert(ctx, alerting.NewAlert(fmt.Sprintf("Failed to pause %s contract", name), err.Error(), level))
	}
}

func (d *Dispatcher) alert(ctx context.Context, alert alerting.AlertParams) {
	if chflow.TrySend(d.alerts, alert) {
		return
	}
	d.logger.Warn().Str("alert", alert.Name).Int("capacity", cap(d.alerts)).Msg("alert channel full, waiting for alerter")
	if !chflow.Send(ctx, d.alerts, alert) {
		d.logger.Warn().Str("alert", alert.Name).Msg("dropping alert, context done")
	}
}
