package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/liqtrade/offer-extractor/internal/llm"
)

// Interpret implements llm.Interpreter over text-only chat/completions with
// response_format json_object. The raw content string is returned untouched;
// the lenient parser owns repairing whatever comes back.
func (c *Client) Interpret(ctx context.Context, req llm.ExtractRequest) (string, error) {
	rid := uuid.New().String()
	start := time.Now()

	var user string
	if len(req.Rows) > 0 {
		user = llm.BuildRowsUserPrompt(req)
	} else {
		user = llm.BuildTextUserPrompt(req)
	}

	c.logger.Info("llm.interpret.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"unit", req.UnitIndex,
		"units_total", req.UnitTotal,
		"rows", len(req.Rows),
		"text_len", len(req.Text),
	)

	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	body := map[string]any{
		"model":           c.cfg.Model,
		"temperature":     c.cfg.Temperature,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": llm.MasterSystemPrompt},
			{"role": "user", "content": user},
		},
	}

	content, err := c.complete(ctx, body)
	if err != nil {
		c.logger.Error("llm.interpret.failed",
			"req_id", rid, "unit", req.UnitIndex, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", err
	}

	// envelope check is advisory: a response that fails it often still
	// salvages through the lenient parser
	if err := llm.ValidateJSONAgainstSchema(llm.BuildProductsJSONSchema(), []byte(content)); err != nil {
		c.logger.Warn("llm.interpret.envelope_mismatch",
			"req_id", rid, "unit", req.UnitIndex, "error", err)
	}

	c.logger.Info("llm.interpret.ok",
		"req_id", rid, "unit", req.UnitIndex, "bytes", len(content),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return content, nil
}

// RateToEUR implements fx.RateSource through the same service. The caller
// degrades to the identity rate on any failure, so this keeps no retry
// logic of its own.
func (c *Client) RateToEUR(ctx context.Context, currency string) (float64, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("rate limiter: %w", err)
	}

	body := map[string]any{
		"model":           c.cfg.Model,
		"temperature":     c.cfg.Temperature,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": "You are a currency exchange rate provider. Return ONLY JSON."},
			{"role": "user", "content": fmt.Sprintf(
				`What is the current approximate exchange rate from %s to EUR? Return ONLY {"rate": <number>} where <number> is how many EUR one %s buys.`,
				currency, currency)},
		},
	}

	content, err := c.complete(ctx, body)
	if err != nil {
		return 0, err
	}

	var out struct {
		Rate float64 `json:"rate"`
	}
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return 0, fmt.Errorf("decode rate response: %w", err)
	}
	if out.Rate <= 0 {
		return 0, fmt.Errorf("non-positive rate %v for %s", out.Rate, currency)
	}
	c.logger.Info("llm.fx_rate", "currency", currency, "rate", out.Rate)
	return out.Rate, nil
}

// complete posts one chat/completions request and returns the first choice's
// message content.
func (c *Client) complete(ctx context.Context, body map[string]any) (string, error) {
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	raw, err := c.post(ctx, endpoint, body)
	if err != nil {
		return "", err
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		return "", fmt.Errorf("decode completion response: %w", err)
	}
	if len(cc.Choices) == 0 {
		return "", fmt.Errorf("no choices in completion response")
	}
	return strings.TrimSpace(cc.Choices[0].Message.Content), nil
}

func (c *Client) post(ctx context.Context, url string, body map[string]any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("completion http error: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Warn("response body close error", "error", cerr)
		}
	}()

	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("completion status %d: %s", resp.StatusCode, buf.String())
	}
	return buf.Bytes(), nil
}
