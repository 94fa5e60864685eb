// ABOUTME: Slack Web API client for team alerts
// ABOUTME: Posts block-kit messages with chat.postMessage over resty
package slack

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const DefaultAPIBase = "https://slack.com/api"

var ErrNotConfigured = errors.New("slack bot token or channel not configured")

// DeliveryError describes a failed call to Slack. Slack reports most
// failures as HTTP 200 with ok=false, in which case Body holds the error code.
type DeliveryError struct {
	Channel    string
	StatusCode int
	Body       string
	Err        error
}

func (e *DeliveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s delivery failed: %v", e.Channel, e.Err)
	}
	return fmt.Sprintf("%s delivery failed: status %d: %s", e.Channel, e.StatusCode, e.Body)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

type Text struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func Markdown(s string) *Text { return &Text{Type: "mrkdwn", Text: s} }

type Block struct {
	Type   string  `json:"type"`
	Text   *Text   `json:"text,omitempty"`
	Fields []*Text `json:"fields,omitempty"`
}

type Message struct {
	Channel string  `json:"channel"`
	Text    string  `json:"text,omitempty"`
	Blocks  []Block `json:"blocks,omitempty"`
}

type Config struct {
	BotToken  string
	ChannelID string
	APIBase   string
	Timeout   time.Duration
}

type Client struct {
	http    *resty.Client
	token   string
	channel string
	logger  *zap.Logger
}

func NewClient(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.APIBase == "" {
		cfg.APIBase = DefaultAPIBase
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	http := resty.New().
		SetBaseURL(cfg.APIBase).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json; charset=utf-8")
	if cfg.BotToken != "" {
		http.SetAuthToken(cfg.BotToken)
	}

	return &Client{http: http, token: cfg.BotToken, channel: cfg.ChannelID, logger: logger}
}

func (c *Client) Configured() bool { return c.token != "" && c.channel != "" }

// Channel is the default channel for alerts.
func (c *Client) Channel() string { return c.channel }

type postResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
	TS    string `json:"ts"`
}

// PostMessage sends msg and returns the message timestamp. An empty channel
// falls back to the configured one.
func (c *Client) PostMessage(ctx context.Context, msg Message) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}
	if msg.Channel == "" {
		msg.Channel = c.channel
	}

	var out postResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(msg).
		SetResult(&out).
		Post("/chat.postMessage")
	if err != nil {
		return "", &DeliveryError{Channel: "slack", Err: err}
	}
	if resp.IsError() {
		return "", &DeliveryError{Channel: "slack", StatusCode: resp.StatusCode(), Body: resp.String()}
	}
	if !out.OK {
		c.logger.Warn("slack rejected message", zap.String("error", out.Error))
		return "", &DeliveryError{Channel: "slack", StatusCode: resp.StatusCode(), Body: out.Error}
	}
	return out.TS, nil
}
