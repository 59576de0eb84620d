package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Config controls delivery behavior. Zero values fall back to the defaults
// set in NewClient.
type Config struct {
	URL      string
	Secret   string // sent as X-Webhook-Secret when non-empty
	Attempts int
	Backoff  time.Duration // attempt n waits Backoff*n before retrying
	Timeout  time.Duration
}

// Client pushes job events to the configured consumer endpoint. Delivery is
// best effort: the pipeline's own outcome never depends on whether the
// consumer was reachable, so Notify reports success as a bool instead of an
// error.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 5 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// Enabled reports whether a consumer endpoint is configured at all.
func (c *Client) Enabled() bool { return c.cfg.URL != "" }

// Notify posts one event envelope for jobID. Callers that track their own
// delivery ids may pass one; otherwise a UUID is minted. Either way the id
// is fixed before the first attempt and reused across every retry of the
// same notification, so the consumer can deduplicate redelivered events.
// Any 2xx response counts as delivered.
func (c *Client) Notify(ctx context.Context, jobID, payloadType string, data map[string]any, deliveryID ...string) bool {
	if !c.Enabled() {
		return false
	}

	id := ""
	if len(deliveryID) > 0 {
		id = deliveryID[0]
	}
	if id == "" {
		id = uuid.NewString()
	}
	envelope := map[string]any{
		"job_id":       jobID,
		"delivery_id":  id,
		"payload_type": payloadType,
	}
	for k, v := range data {
		envelope[k] = v
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		c.logger.Error("webhook.encode_failed", "job_id", jobID, "error", err)
		return false
	}

	for attempt := 1; attempt <= c.cfg.Attempts; attempt++ {
		if c.post(ctx, body) {
			c.logger.Info("webhook.delivered",
				"job_id", jobID, "payload_type", payloadType, "attempt", attempt)
			return true
		}
		if attempt < c.cfg.Attempts {
			wait := c.cfg.Backoff * time.Duration(attempt)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				c.logger.Warn("webhook.abandoned", "job_id", jobID, "error", ctx.Err())
				return false
			}
		}
	}
	c.logger.Error("webhook.exhausted",
		"job_id", jobID, "payload_type", payloadType, "attempts", c.cfg.Attempts)
	return false
}

func (c *Client) post(ctx context.Context, body []byte) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		c.logger.Error("webhook.request_failed", "error", err)
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Secret != "" {
		req.Header.Set("X-Webhook-Secret", c.cfg.Secret)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("webhook.post_failed", "error", err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("webhook.rejected", "status", resp.StatusCode)
		return false
	}
	return true
}
