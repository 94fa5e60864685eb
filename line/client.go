// ABOUTME: LINE Messaging API client
// ABOUTME: Sends push and quick-reply messages and looks up user profiles over resty
package line

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const (
	DefaultAPIBase = "https://api.line.me"

	maxTextLength  = 5000
	maxLabelLength = 20
)

var ErrNotConfigured = errors.New("line channel access token not configured")

// DeliveryError describes a failed call to the LINE API.
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

type Config struct {
	AccessToken string
	APIBase     string
	Timeout     time.Duration
}

type Client struct {
	http   *resty.Client
	token  string
	logger *zap.Logger
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
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if cfg.AccessToken != "" {
		http.SetAuthToken(cfg.AccessToken)
	}

	return &Client{http: http, token: cfg.AccessToken, logger: logger}
}

// Configured reports whether the client has credentials.
func (c *Client) Configured() bool { return c.token != "" }

type textMessage struct {
	Type       string      `json:"type"`
	Text       string      `json:"text"`
	QuickReply *quickReply `json:"quickReply,omitempty"`
}

type quickReply struct {
	Items []quickReplyItem `json:"items"`
}

type quickReplyItem struct {
	Type   string         `json:"type"`
	Action postbackAction `json:"action"`
}

type postbackAction struct {
	Type        string `json:"type"`
	Label       string `json:"label"`
	Data        string `json:"data"`
	DisplayText string `json:"displayText,omitempty"`
}

type pushRequest struct {
	To       string        `json:"to"`
	Messages []textMessage `json:"messages"`
}

// QuickReplyOption is one postback button under a message.
type QuickReplyOption struct {
	Label       string
	Data        string
	DisplayText string
}

// PushText sends a text message to a user.
func (c *Client) PushText(ctx context.Context, to, text string) error {
	return c.push(ctx, to, textMessage{Type: "text", Text: truncate(text, maxTextLength)})
}

// PushQuickReply sends a text message with postback buttons.
func (c *Client) PushQuickReply(ctx context.Context, to, text string, options []QuickReplyOption) error {
	msg := textMessage{Type: "text", Text: truncate(text, maxTextLength)}
	if len(options) > 0 {
		msg.QuickReply = &quickReply{}
		for _, o := range options {
			msg.QuickReply.Items = append(msg.QuickReply.Items, quickReplyItem{
				Type: "action",
				Action: postbackAction{
					Type:        "postback",
					Label:       truncate(o.Label, maxLabelLength),
					Data:        o.Data,
					DisplayText: o.DisplayText,
				},
			})
		}
	}
	return c.push(ctx, to, msg)
}

func (c *Client) push(ctx context.Context, to string, msg textMessage) error {
	if !c.Configured() {
		return ErrNotConfigured
	}
	if to == "" {
		return errors.New("line recipient is required")
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(pushRequest{To: to, Messages: []textMessage{msg}}).
		Post("/v2/bot/message/push")
	if err != nil {
		c.logger.Warn("line push failed", zap.Error(err))
		return &DeliveryError{Channel: "line", Err: err}
	}
	if resp.IsError() {
		c.logger.Warn("line push rejected",
			zap.Int("status_code", resp.StatusCode()),
			zap.String("body", resp.String()))
		return &DeliveryError{Channel: "line", StatusCode: resp.StatusCode(), Body: resp.String()}
	}

	c.logger.Debug("line message pushed", zap.String("to", to))
	return nil
}

type Profile struct {
	UserID        string `json:"userId"`
	DisplayName   string `json:"displayName"`
	PictureURL    string `json:"pictureUrl,omitempty"`
	StatusMessage string `json:"statusMessage,omitempty"`
}

// Profile fetches the display name of a user who has added the bot.
func (c *Client) Profile(ctx context.Context, userID string) (*Profile, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	var profile Profile
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&profile).
		Get("/v2/bot/profile/" + url.PathEscape(userID))
	if err != nil {
		return nil, &DeliveryError{Channel: "line", Err: err}
	}
	if resp.IsError() {
		return nil, &DeliveryError{Channel: "line", StatusCode: resp.StatusCode(), Body: resp.String()}
	}
	return &profile, nil
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
