package config

import (
	"net/url"
	"strings"

	"github.com/roadrunner-server/errors"
)

// Validate checks that the configuration can start the gateway.
func (c *Config) Validate() error {
	const op = errors.Op("config_validate")

	if c.SMTP.BindAddress == "" {
		return errors.E(op, errors.Str("smtp.bind_address is required"))
	}
	if c.SMTP.MaxLineLength <= 0 {
		return errors.E(op, errors.Errorf("smtp.max_line_length must be positive, got %d", c.SMTP.MaxLineLength))
	}
	if c.SMTP.MaxMessageSize <= 0 {
		return errors.E(op, errors.Errorf("smtp.max_message_size must be positive, got %d", c.SMTP.MaxMessageSize))
	}
	switch strings.ToLower(c.SMTP.Parser) {
	case "", "mime", "headers":
	default:
		return errors.E(op, errors.Errorf("invalid smtp.parser: %s (must be 'mime' or 'headers')", c.SMTP.Parser))
	}

	if err := c.validateWebhook(); err != nil {
		return errors.E(op, err)
	}

	if c.Delivery.Workers < 0 || c.Delivery.QueueSize < 0 {
		return errors.E(op, errors.Str("delivery.workers and delivery.queue_size must not be negative"))
	}

	if err := c.validateDeadLetter(); err != nil {
		return errors.E(op, err)
	}

	if c.Metrics.Enabled && c.Metrics.Address == "" {
		return errors.E(op, errors.Str("metrics.address is required when metrics are enabled"))
	}

	switch c.Logging.Format {
	case "", "json", "text":
	default:
		return errors.E(op, errors.Errorf("invalid logging.format: %s (must be 'json' or 'text')", c.Logging.Format))
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return errors.E(op, errors.Errorf("invalid logging.level: %s", c.Logging.Level))
	}

	return nil
}

func (c *Config) validateWebhook() error {
	w := c.Webhook
	if w.URL == "" {
		return errors.Str("webhook.url is required")
	}
	u, err := url.Parse(w.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.Errorf("webhook.url must be an http or https URL, got %q", w.URL)
	}
	if w.MaxRetries < 0 {
		return errors.Errorf("webhook.max_retries must not be negative, got %d", w.MaxRetries)
	}
	if w.TimeoutSecs <= 0 {
		return errors.Errorf("webhook.timeout_secs must be positive, got %d", w.TimeoutSecs)
	}
	if (w.TLS.CertFile == "") != (w.TLS.KeyFile == "") {
		return errors.Str("webhook.tls.cert_file and webhook.tls.key_file must be set together")
	}
	if w.OAuth.Configured() && (w.OAuth.ClientID == "" || w.OAuth.ClientSecret == "") {
		return errors.Str("webhook.oauth requires client_id and client_secret when token_url is set")
	}
	return nil
}

func (c *Config) validateDeadLetter() error {
	d := c.DeadLetter
	switch d.Type {
	case DeadLetterNone, DeadLetterStdout:
	case DeadLetterRedis:
		if d.Redis.Addr == "" {
			return errors.Str("dead_letter.redis.addr is required for the redis sink")
		}
		if d.Redis.MaxLen < 0 {
			return errors.Errorf("dead_letter.redis.max_len must not be negative, got %d", d.Redis.MaxLen)
		}
	case DeadLetterSES:
		if d.SES.Region == "" || d.SES.Sender == "" || d.SES.Recipient == "" {
			return errors.Str("dead_letter.ses requires region, sender and recipient")
		}
	default:
		return errors.Errorf("invalid dead_letter.type: %s (must be 'stdout', 'redis' or 'ses')", d.Type)
	}
	return nil
}
