package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"fuel-watchtower/internal/logging"
)

const defaultPagerDutyURL = "https://events.pagerduty.com/v2/enqueue"

// Notifier escalates alerts to an incident paging service.
type Notifier interface {
	SendAlert(ctx context.Context, severity, summary, source string) error
}

// PagerDutyNotifier triggers incidents through the PagerDuty Events API v2.
type PagerDutyNotifier struct {
	routingKey string
	endpoint   string
	client     *http.Client
	logger     zerolog.Logger
}

// NewPagerDutyNotifier constructs a notifier for the given integration key.
// An empty endpoint selects the public Events API.
func NewPagerDutyNotifier(routingKey, endpoint string, timeout time.Duration, logger zerolog.Logger) *PagerDutyNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if endpoint == "" {
		endpoint = defaultPagerDutyURL
	}

	return &PagerDutyNotifier{
		routingKey: routingKey,
		endpoint:   strings.TrimRight(endpoint, "/"),
		client:     &http.Client{Timeout: timeout},
		logger:     logging.Component(logger, "alert_pagerduty"),
	}
}

type pagerDutyEvent struct {
	RoutingKey  string           `json:"routing_key"`
	EventAction string           `json:"event_action"`
	Payload     pagerDutyPayload `json:"payload"`
}

type pagerDutyPayload struct {
	Summary  string `json:"summary"`
	Severity string `json:"severity"`
	Source   string `json:"source"`
}

// SendAlert posts a trigger event. Any non-2xx response is returned as an error.
func (n *PagerDutyNotifier) SendAlert(ctx context.Context, severity, summary, source string) error {
	body, err := json.Marshal(pagerDutyEvent{
		RoutingKey:  n.routingKey,
		EventAction: "trigger",
		Payload: pagerDutyPayload{
			Summary:  summary,
			Severity: severity,
			Source:   source,
		},
	})
	if err != nil {
		return fmt.Errorf("marshal pagerduty event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create pagerduty request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send pagerduty request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("pagerduty responded %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	n.logger.Debug().Str("severity", severity).Str("summary", summary).Msg("incident triggered")
	return nil
}

var _ Notifier = (*PagerDutyNotifier)(nil)
