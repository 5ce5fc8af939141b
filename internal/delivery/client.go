// Package delivery posts extracted payloads to the loader API. Transport
// failures are retried with a fixed backoff; HTTP responses, whatever their
// status, consume the attempt without a retry sleep.
package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"log/slog"

	"github.com/newsweaver/newsweaver/internal/config"
	"github.com/newsweaver/newsweaver/internal/metrics"
	"github.com/newsweaver/newsweaver/internal/models"
)

// Client delivers one payload per call to the loader endpoint matching the
// payload's content kind.
type Client struct {
	baseURL   string
	secretKey string
	policy    config.DeliveryConfig
	client    *http.Client
	logger    *slog.Logger
	metrics   *metrics.Collector
	sleep     func(context.Context, time.Duration) error
}

func NewClient(baseURL, secretKey string, policy config.DeliveryConfig, logger *slog.Logger, collector *metrics.Collector) *Client {
	return &Client{
		baseURL:   baseURL,
		secretKey: secretKey,
		policy:    policy,
		client:    &http.Client{Timeout: policy.Timeout},
		logger:    logger,
		metrics:   collector,
		sleep:     sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Deliver posts the payload, retrying transport errors up to the configured
// attempt budget. Success is a 2xx response or a 409: a conflict means the
// record already exists downstream, which is the idempotent outcome we want.
// The final attempt is never followed by a backoff sleep.
func (c *Client) Deliver(ctx context.Context, payload models.Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", payload.Kind(), err)
	}

	url := fmt.Sprintf("%s/api/%s", c.baseURL, payload.Kind().Endpoint())
	var lastErr error

	for attempt := 1; attempt <= c.policy.MaxAttempts; attempt++ {
		c.metrics.DeliveryAttempt()

		status, respBody, err := c.post(ctx, url, body)
		if err != nil {
			lastErr = err
			c.logger.Warn("delivery transport error",
				"endpoint", payload.Kind().Endpoint(),
				"source_file_id", payload.FileID(),
				"attempt", attempt,
				"error", err)
			if attempt < c.policy.MaxAttempts {
				if err := c.sleep(ctx, c.policy.Backoff); err != nil {
					c.metrics.DeliveryFailed()
					return err
				}
			}
			continue
		}

		if (status >= 200 && status < 300) || status == http.StatusConflict {
			c.logger.Info("payload delivered",
				"endpoint", payload.Kind().Endpoint(),
				"source_file_id", payload.FileID(),
				"status", status)
			return nil
		}

		lastErr = fmt.Errorf("loader returned %d: %s", status, respBody)
		c.logger.Warn("delivery rejected",
			"endpoint", payload.Kind().Endpoint(),
			"source_file_id", payload.FileID(),
			"attempt", attempt,
			"status", status)
	}

	c.metrics.DeliveryFailed()
	return fmt.Errorf("delivery failed after %d attempts: %w", c.policy.MaxAttempts, lastErr)
}

func (c *Client) post(ctx context.Context, url string, body []byte) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.secretKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return resp.StatusCode, "", nil
	}
	return resp.StatusCode, string(respBody), nil
}
