// ABOUTME: HTTP client for the transaction ledger service
// ABOUTME: Creates and updates ledger records over resty
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

var ErrNotConfigured = errors.New("ledger base url not configured")

// DeliveryError describes a failed call to the ledger service.
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
	BaseURL string
	Timeout time.Duration
}

type Client struct {
	http   *resty.Client
	base   string
	logger *zap.Logger
}

func NewClient(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	base := strings.TrimRight(cfg.BaseURL, "/")

	http := resty.New().
		SetBaseURL(base).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Client{http: http, base: base, logger: logger}
}

func (c *Client) Configured() bool { return c.base != "" }

type createResponse struct {
	ID json.RawMessage `json:"id"`
}

// Create posts a new record and returns the id the ledger assigned.
func (c *Client) Create(ctx context.Context, rec Record) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}

	var out createResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(rec).
		SetResult(&out).
		Post("/api/ledger/kanban")
	if err != nil {
		return "", &DeliveryError{Channel: "ledger", Err: err}
	}
	if resp.IsError() {
		return "", &DeliveryError{Channel: "ledger", StatusCode: resp.StatusCode(), Body: resp.String()}
	}

	c.logger.Debug("ledger record created",
		zap.Int64("deal_id", rec.KanbanDealID),
		zap.Int("status_code", resp.StatusCode()))
	return rawID(out.ID), nil
}

// Update replaces the record stored under id.
func (c *Client) Update(ctx context.Context, id string, rec Record) error {
	if !c.Configured() {
		return ErrNotConfigured
	}
	if id == "" {
		return errors.New("ledger id is required")
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(rec).
		Patch("/api/ledger/" + url.PathEscape(id))
	if err != nil {
		return &DeliveryError{Channel: "ledger", Err: err}
	}
	if resp.IsError() {
		return &DeliveryError{Channel: "ledger", StatusCode: resp.StatusCode(), Body: resp.String()}
	}
	return nil
}

// rawID accepts both numeric and string ids.
func rawID(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	v := strings.TrimSpace(string(raw))
	if v == "null" {
		return ""
	}
	return v
}
