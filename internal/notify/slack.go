package notify

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/slack-go/slack"
)

// SlackConfig configures SlackNotifier. WebhookURL posts to an incoming
// webhook; BotToken with Channels posts through the Web API. Both may be set.
type SlackConfig struct {
	WebhookURL string
	BotToken   string
	Channels   []string
	HTTPClient *http.Client
	// APIURL overrides the Slack Web API base URL (tests).
	APIURL string
}

// SlackNotifier posts notifications to Slack.
type SlackNotifier struct {
	cfg SlackConfig
	api *slack.Client
}

// NewSlackNotifier creates a Slack notifier.
func NewSlackNotifier(cfg SlackConfig) (*SlackNotifier, error) {
	if cfg.WebhookURL == "" && cfg.BotToken == "" {
		return nil, fmt.Errorf("slack: webhook_url or bot_token is required")
	}
	if cfg.BotToken != "" && len(cfg.Channels) == 0 {
		return nil, fmt.Errorf("slack: channels are required with bot_token")
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}

	n := &SlackNotifier{cfg: cfg}
	if cfg.BotToken != "" {
		opts := []slack.Option{slack.OptionHTTPClient(cfg.HTTPClient)}
		if cfg.APIURL != "" {
			opts = append(opts, slack.OptionAPIURL(cfg.APIURL))
		}
		n.api = slack.New(cfg.BotToken, opts...)
	}
	return n, nil
}

// Notify implements Notifier.
func (n *SlackNotifier) Notify(ctx context.Context, message string, recipients []string) error {
	text := message
	if len(recipients) > 0 {
		text = fmt.Sprintf("%s\ncc: %s", message, strings.Join(recipients, ", "))
	}

	if n.cfg.WebhookURL != "" {
		msg := &slack.WebhookMessage{Text: text}
		if err := slack.PostWebhookCustomHTTPContext(ctx, n.cfg.WebhookURL, n.cfg.HTTPClient, msg); err != nil {
			return fmt.Errorf("slack: post webhook: %w", err)
		}
	}

	if n.api != nil {
		for _, channel := range n.cfg.Channels {
			_, _, err := n.api.PostMessageContext(ctx, channel, slack.MsgOptionText(text, false))
			if err != nil {
				return fmt.Errorf("slack: send message to %s: %w", channel, err)
			}
		}
	}
	return nil
}
