package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// ClientConfig controls report delivery.
type ClientConfig struct {
	// URL is the callback endpoint. If empty, delivery is disabled.
	URL string

	// Headers are additional HTTP headers to include (e.g., Authorization).
	Headers map[string]string

	// Version is sent in the User-Agent.
	Version string

	// RetryDelay is the pause before the single retry on a 5xx (default 5s).
	RetryDelay time.Duration

	Logger *zap.Logger
}

// Response is what the endpoint answered.
type Response struct {
	StatusCode int             `json:"status"`
	Body       json.RawMessage `json:"body,omitempty"`
}

// StatusError is returned for a non-2xx answer.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("report endpoint returned %d: %s", e.StatusCode, e.Body)
}

// Client POSTs payloads to the callback endpoint.
type Client struct {
	config ClientConfig
	client *http.Client
	logger *zap.Logger
}

// NewClient creates a delivery client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		config: cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

// Enabled returns true if a callback URL is configured.
func (c *Client) Enabled() bool {
	return c != nil && c.config.URL != ""
}

// Send delivers one payload. A transport error or a 5xx is retried once.
func (c *Client) Send(ctx context.Context, payload Payload) (*Response, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("report callback url not configured")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding report: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(c.config.RetryDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		resp, err := c.post(ctx, data)
		if err != nil {
			lastErr = err
			c.logger.Warn("report delivery failed",
				zap.String("session", payload.SessionID), zap.Int("attempt", attempt+1), zap.Error(err))
			continue
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			c.logger.Info("report delivered",
				zap.String("session", payload.SessionID), zap.Int("status", resp.StatusCode))
			return resp, nil
		}
		lastErr = &StatusError{StatusCode: resp.StatusCode, Body: string(resp.Body)}
		if resp.StatusCode < 500 {
			break
		}
		if attempt == 0 {
			c.logger.Warn("report endpoint error, retrying",
				zap.String("session", payload.SessionID), zap.Int("status", resp.StatusCode))
		} else {
			c.logger.Warn("report endpoint error",
				zap.String("session", payload.SessionID), zap.Int("status", resp.StatusCode))
		}
	}
	return nil, lastErr
}

func (c *Client) post(ctx context.Context, data []byte) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.URL, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "scamintel/"+c.config.Version)
	for k, v := range c.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("posting report: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	out := &Response{StatusCode: resp.StatusCode}
	if json.Valid(body) {
		out.Body = body
	} else if len(body) > 0 {
		quoted, _ := json.Marshal(string(body))
		out.Body = quoted
	}
	return out, nil
}
