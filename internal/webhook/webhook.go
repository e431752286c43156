// Package webhook relays structured emails to an HTTP endpoint as JSON,
// retrying failed attempts with capped exponential backoff.
package webhook

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/shineum/smtp2webhook/internal/email"
	"github.com/shineum/smtp2webhook/internal/metrics"
)

// baseRetryDelay is the delay before the first retry.
const baseRetryDelay = 1 * time.Second

// maxRetryDelay caps the exponential backoff.
const maxRetryDelay = 30 * time.Second

// Config is the immutable delivery configuration shared by every delivery.
type Config struct {
	URL        string
	MaxRetries int
	Timeout    time.Duration
	Headers    map[string]string

	// TLS configures the transport; nil keeps http.DefaultTransport settings.
	TLS *tls.Config

	// OAuth enables client-credentials bearer tokens when TokenURL is set.
	OAuth OAuthConfig
}

// Client delivers emails to the configured webhook. It is safe for
// concurrent use.
type Client struct {
	cfg        Config
	httpClient *http.Client
	token      *tokenCache
	metrics    metrics.Collector

	// sleep waits between attempts; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client built from Config.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithCollector records per-attempt metrics.
func WithCollector(m metrics.Collector) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// New creates a Client for cfg.
func New(cfg Config, opts ...Option) *Client {
	headers := make(map[string]string, len(cfg.Headers))
	for k, v := range cfg.Headers {
		headers[k] = v
	}
	cfg.Headers = headers

	hc := &http.Client{Timeout: cfg.Timeout}
	if cfg.TLS != nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.TLSClientConfig = cfg.TLS
		hc.Transport = transport
	}

	c := &Client{
		cfg:        cfg,
		httpClient: hc,
		metrics:    metrics.NoopCollector{},
		sleep:      sleepWithContext,
	}
	for _, opt := range opts {
		opt(c)
	}

	if cfg.OAuth.TokenURL != "" {
		c.token = newTokenCache(cfg.OAuth, c.httpClient)
	}

	return c
}

// Name returns the deliverer name.
func (c *Client) Name() string {
	return "webhook"
}

// Deliver posts msg to the webhook. The first attempt is immediate; each of
// the MaxRetries retries waits backoffDelay(attempt) first. A 2xx response
// is success, anything else is a failed attempt. When every attempt fails an
// *ExhaustedError is returned.
func (c *Client) Deliver(ctx context.Context, msg *email.Email) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal email: %w", err)
	}

	attempts := c.cfg.MaxRetries + 1
	var lastErr error

	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(attempt)
			slog.Warn("retrying webhook delivery",
				"from", msg.From,
				"attempt", attempt,
				"max_retries", c.cfg.MaxRetries,
				"delay", delay,
			)
			if err := c.sleep(ctx, delay); err != nil {
				return fmt.Errorf("context cancelled during retry wait: %w", err)
			}
		}

		err := c.post(ctx, body)
		c.metrics.DeliveryAttempt(err == nil)
		if err == nil {
			slog.Info("delivered email to webhook",
				"from", msg.From,
				"recipients", len(msg.To),
				"attempt", attempt+1,
			)
			return nil
		}

		lastErr = err
		slog.Warn("webhook delivery attempt failed",
			"from", msg.From,
			"attempt", attempt+1,
			"attempts", attempts,
			"error", err,
		)
	}

	slog.Error("webhook delivery failed, giving up",
		"from", msg.From,
		"subject", msg.Subject,
		"attempts", attempts,
		"error", lastErr,
	)
	return &ExhaustedError{Attempts: attempts, Err: lastErr}
}

// post performs a single webhook request.
func (c *Client) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range c.cfg.Headers {
		req.Header.Set(k, v)
	}

	if c.token != nil {
		token, err := c.token.Token(ctx)
		if err != nil {
			return fmt.Errorf("failed to get access token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil
	}

	if resp.StatusCode == http.StatusUnauthorized && c.token != nil {
		c.token.Invalidate()
	}

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &StatusError{
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(snippet)),
	}
}

// StatusError is returned for a non-2xx webhook response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("webhook returned HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("webhook returned HTTP %d: %s", e.StatusCode, e.Body)
}

// ExhaustedError reports that every allowed attempt failed.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("webhook delivery failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// backoffDelay returns the wait before retry number attempt (1-based):
// 1s, 2s, 4s, ... capped at 30s.
func backoffDelay(attempt int) time.Duration {
	delay := baseRetryDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxRetryDelay {
			return maxRetryDelay
		}
	}
	return delay
}

// sleepWithContext waits for the specified duration or until the context is cancelled.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
