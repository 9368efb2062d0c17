package alerting

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// ErrNoDestination is returned when an alert has nowhere to go.
var ErrNoDestination = errors.New("alerting: empty destination")

// Message is one rendered alert.
type Message struct {
	Subject string
	Text    string
}

// Notifier delivers a message to a destination such as a webhook URL or an
// email address.
type Notifier interface {
	Notify(ctx context.Context, destination string, msg Message) error
}

// SlackNotifier posts messages to Slack incoming webhooks.
type SlackNotifier struct {
	client *resty.Client
	logger zerolog.Logger
}

// NewSlackNotifier constructs a Slack webhook notifier.
func NewSlackNotifier(timeout time.Duration, logger zerolog.Logger) *SlackNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SlackNotifier{
		client: resty.New().SetTimeout(timeout),
		logger: logger.With().Str("component", "alert_slack").Logger(),
	}
}

// Notify posts {"text": ...} to the webhook URL.
func (n *SlackNotifier) Notify(ctx context.Context, webhookURL string, msg Message) error {
	if strings.TrimSpace(webhookURL) == "" {
		return ErrNoDestination
	}

	resp, err := n.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]string{"text": msg.Text}).
		Post(webhookURL)
	if err != nil {
		return fmt.Errorf("send slack request: %w", err)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return fmt.Errorf("slack webhook returned status %d", resp.StatusCode())
	}

	n.logger.Debug().Msg("alert sent (Slack)")
	return nil
}

var _ Notifier = (*SlackNotifier)(nil)
