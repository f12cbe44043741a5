// Package alerting deduplicates alerts raised by the watchers, logs them and
// escalates the severe ones to the paging service.
package alerting

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"fuel-watchtower/internal/chflow"
	"fuel-watchtower/internal/logging"
	"fuel-watchtower/internal/telemetry"
)

// ErrAlertChannelClosed is returned by Run once the alert channel is closed.
var ErrAlertChannelClosed = errors.New("alert channel closed")

const (
	defaultCacheTTL   = 10 * time.Minute
	defaultBufferSize = 1024
	defaultSource     = "fuel-watchtower"
)

// AlerterOptions tune the dispatcher.
type AlerterOptions struct {
	// CacheTTL is how long an alert name suppresses duplicates.
	CacheTTL time.Duration
	// GracePeriod delays escalation to the notifier after startup.
	GracePeriod time.Duration
	// BufferSize is the capacity of the alert channel.
	BufferSize int
	// Source is reported to the notifier as the event origin.
	Source string
	// Now overrides the clock. Defaults to time.Now.
	Now func() time.Time
}

// Alerter is the single consumer of the alert channel. The cache is only
// touched from Run.
type Alerter struct {
	notifier Notifier
	alerts   chan AlertParams
	cache    map[string]time.Time

	ttl                      time.Duration
	allowedAlertingStartTime time.Time
	source                   string
	now                      func() time.Time
	logger                   zerolog.Logger

	closeOnce sync.Once
}

// NewAlerter constructs an Alerter. A nil notifier disables escalation.
func NewAlerter(notifier Notifier, opts AlerterOptions, logger zerolog.Logger) *Alerter {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = defaultCacheTTL
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = defaultBufferSize
	}
	if opts.Source == "" {
		opts.Source = defaultSource
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Alerter{
		notifier:                 notifier,
		alerts:                   make(chan AlertParams, opts.BufferSize),
		cache:                    make(map[string]time.Time),
		ttl:                      opts.CacheTTL,
		allowedAlertingStartTime: opts.Now().Add(opts.GracePeriod),
		source:                   opts.Source,
		now:                      opts.Now,
		logger:                   logging.Component(logger, "alerter"),
	}
}

// Sender returns the handle producers use to raise alerts.
func (a *Alerter) Sender() chan<- AlertParams {
	return a.alerts
}

// Close closes the alert channel. Run drains what is buffered and then
// returns ErrAlertChannelClosed.
func (a *Alerter) Close() {
	a.closeOnce.Do(func() { close(a.alerts) })
}

// Run consumes alerts until ctx is canceled (returns nil) or the channel is
// closed.
func (a *Alerter) Run(ctx context.Context) error {
	a.logger.Info().
		Dur("cache_ttl", a.ttl).
		Time("alerting_starts_at", a.allowedAlertingStartTime).
		Msg("alerter started")

	for {
		alert, ok, closed := chflow.Receive(ctx, a.alerts)
		if closed {
			a.logger.Error().Msg("alert channel closed")
			return ErrAlertChannelClosed
		}
		if !ok {
			return nil
		}

		a.handle(ctx, alert)
	}
}

func (a *Alerter) handle(ctx context.Context, alert AlertParams) {
	now := a.now()
	a.sweep(now)

	if alert.Level == None {
		return
	}

	if _, live := a.cache[alert.Name]; live {
		telemetry.RecordAlert(ctx, alert.Level.String(), "suppressed")
		return
	}
	a.cache[alert.Name] = now.Add(a.ttl)

	a.log(alert)

	sev, escalate := Severity(alert.Level)
	if !escalate || a.notifier == nil || now.Before(a.allowedAlertingStartTime) {
		telemetry.RecordAlert(ctx, alert.Level.String(), "logged")
		return
	}

	summary := alert.Summary()
	if err := a.notifier.SendAlert(ctx, sev, summary, a.source); err != nil {
		a.logger.Error().Err(err).Str("alert", alert.Name).Msg("failed to send alert to notifier")
		telemetry.RecordAlert(ctx, alert.Level.String(), "notify_failed")
		return
	}
	telemetry.RecordAlert(ctx, alert.Level.String(), "forwarded")
}

// sweep drops every entry whose expiry is not after now.
func (a *Alerter) sweep(now time.Time) {
	for name, expiry := range a.cache {
		if !expiry.After(now) {
			delete(a.cache, name)
		}
	}
}

func (a *Alerter) log(alert AlertParams) {
	var event *zerolog.Event
	switch alert.Level {
	case Info:
		event = a.logger.Info()
	case Warn:
		event = a.logger.Warn()
	case Error:
		event = a.logger.Error()
	default:
		return
	}
	event.Str("alert", alert.Name).Str("description", alert.Description).Msg(alert.Name)
}
