// Package watcher holds what the chain watch loops share: the emitter that
// pairs every alert with its action.
package watcher

import (
	"context"

	"github.com/rs/zerolog"

	"fuel-watchtower/internal/actions"
	"fuel-watchtower/internal/alerting"
	"fuel-watchtower/internal/chflow"
	"fuel-watchtower/internal/config"
)

// Emitter sends alerts and actions on behalf of one watch loop.
type Emitter struct {
	alerts  chan<- alerting.AlertParams
	actions chan<- actions.ActionParams
	query   config.GenericAlert
	logger  zerolog.Logger
}

// NewEmitter builds an Emitter. query is the level/action used when a
// collaborator call fails.
func NewEmitter(alerts chan<- alerting.AlertParams, acts chan<- actions.ActionParams, query config.GenericAlert, logger zerolog.Logger) *Emitter {
	return &Emitter{
		alerts:  alerts,
		actions: acts,
		query:   query,
		logger:  logger,
	}
}

// Info sends an informational alert with no paired action.
func (e *Emitter) Info(ctx context.Context, name, description string) {
	e.sendAlert(ctx, alerting.NewAlert(name, description, alerting.Info))
}

// Raise sends an alert at the check level followed by the check action.
func (e *Emitter) Raise(ctx context.Context, name, description string, check config.GenericAlert) {
	if !check.Enabled() {
		return
	}

	e.sendAlert(ctx, alerting.NewAlert(name, description, check.AlertLevel))
	e.sendAction(ctx, actions.ActionParams{Action: check.AlertAction, Level: check.AlertLevel})
}

// QueryFailed reports a failed collaborator call using the query alert
// settings.
func (e *Emitter) QueryFailed(ctx context.Context, name string, err error) {
	e.logger.Debug().Err(err).Str("check", name).Msg("collaborator call failed")
	e.Raise(ctx, name, err.Error(), e.query)
}

func (e *Emitter) sendAlert(ctx context.Context, alert alerting.AlertParams) {
	if chflow.TrySend(e.alerts, alert) {
		return
	}
	e.logger.Warn().Str("alert", alert.Name).Int("capacity", cap(e.alerts)).Msg("alert channel full, waiting for alerter")
	if !chflow.Send(ctx, e.alerts, alert) {
		e.logger.Warn().Str("alert", alert.Name).Msg("dropping alert, context done")
	}
}

func (e *Emitter) sendAction(ctx context.Context, params actions.ActionParams) {
	if chflow.TrySend(e.actions, params) {
		return
	}
	e.logger.Warn().Stringer("action", params.Action).Int("capacity", cap(e.actions)).Msg("action channel full, waiting for dispatcher")
	if !chflow.Send(ctx, e.actions, params) {
		e.logger.Warn().Stringer("action", params.Action).Msg("dropping action, context done")
	}
}
