package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// applyEnvVars overrides configuration with environment variable values.
// Only non-empty environment variables override existing values.
func (c *Config) applyEnvVars() error {
	envString("SMTP_BIND_ADDRESS", &c.SMTP.BindAddress)
	envString("SMTP_HOSTNAME", &c.SMTP.Hostname)
	envString("SMTP_PARSER", &c.SMTP.Parser)

	envString("WEBHOOK_URL", &c.Webhook.URL)
	envString("WEBHOOK_TLS_CA_FILE", &c.Webhook.TLS.CAFile)
	envString("WEBHOOK_TLS_CERT_FILE", &c.Webhook.TLS.CertFile)
	envString("WEBHOOK_TLS_KEY_FILE", &c.Webhook.TLS.KeyFile)
	envString("WEBHOOK_OAUTH_TOKEN_URL", &c.Webhook.OAuth.TokenURL)
	envString("WEBHOOK_OAUTH_CLIENT_ID", &c.Webhook.OAuth.ClientID)
	envString("WEBHOOK_OAUTH_CLIENT_SECRET", &c.Webhook.OAuth.ClientSecret)
	envString("WEBHOOK_OAUTH_SCOPE", &c.Webhook.OAuth.Scope)
	if v := os.Getenv("WEBHOOK_HEADERS"); v != "" {
		headers, err := parseHeaders(v)
		if err != nil {
			return fmt.Errorf("invalid WEBHOOK_HEADERS: %w", err)
		}
		c.Webhook.Headers = headers
	}

	envString("DEAD_LETTER_TYPE", &c.DeadLetter.Type)
	envString("DEAD_LETTER_REDIS_ADDR", &c.DeadLetter.Redis.Addr)
	envString("DEAD_LETTER_REDIS_PASSWORD", &c.DeadLetter.Redis.Password)
	envString("DEAD_LETTER_REDIS_KEY", &c.DeadLetter.Redis.Key)
	envString("DEAD_LETTER_SES_REGION", &c.DeadLetter.SES.Region)
	envString("DEAD_LETTER_SES_ACCESS_KEY_ID", &c.DeadLetter.SES.AccessKeyID)
	envString("DEAD_LETTER_SES_SECRET_ACCESS_KEY", &c.DeadLetter.SES.SecretAccessKey)
	envString("DEAD_LETTER_SES_SENDER", &c.DeadLetter.SES.Sender)
	envString("DEAD_LETTER_SES_RECIPIENT", &c.DeadLetter.SES.Recipient)

	envString("METRICS_ADDRESS", &c.Metrics.Address)
	envString("METRICS_PATH", &c.Metrics.Path)

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Logging.Format = strings.ToLower(v)
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"SMTP_MAX_LINE_LENGTH", &c.SMTP.MaxLineLength},
		{"SMTP_IDLE_TIMEOUT_SECS", &c.SMTP.IdleTimeoutSecs},
		{"WEBHOOK_MAX_RETRIES", &c.Webhook.MaxRetries},
		{"WEBHOOK_TIMEOUT_SECS", &c.Webhook.TimeoutSecs},
		{"DELIVERY_WORKERS", &c.Delivery.Workers},
		{"DELIVERY_QUEUE_SIZE", &c.Delivery.QueueSize},
		{"DEAD_LETTER_REDIS_DB", &c.DeadLetter.Redis.DB},
	}
	for _, e := range ints {
		if err := envInt(e.key, e.dst); err != nil {
			return err
		}
	}

	if err := envInt64("SMTP_MAX_MESSAGE_SIZE", &c.SMTP.MaxMessageSize); err != nil {
		return err
	}
	if err := envInt64("DEAD_LETTER_REDIS_MAX_LEN", &c.DeadLetter.Redis.MaxLen); err != nil {
		return err
	}
	if err := envBool("WEBHOOK_TLS_INSECURE_SKIP_VERIFY", &c.Webhook.TLS.InsecureSkipVerify); err != nil {
		return err
	}
	return envBool("METRICS_ENABLED", &c.Metrics.Enabled)
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}

func envInt64(key string, dst *int64) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}

func envBool(key string, dst *bool) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = b
	return nil
}

// parseHeaders parses "Name=value,Other=value" into a header map. Values
// may contain '=' but not ','.
func parseHeaders(s string) (map[string]string, error) {
	headers := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, value, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("malformed header %q, want Name=value", pair)
		}
		headers[name] = strings.TrimSpace(value)
	}
	return headers, nil
}
