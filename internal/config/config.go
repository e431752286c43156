// Package config provides environment-variable-first configuration loading
// with an optional YAML or TOML file layer for the gateway.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Defaults.
const (
	defaultBindAddress     = "0.0.0.0:2525"
	defaultHostname        = "localhost"
	defaultMaxLineLength   = 10000
	defaultMaxMessageSize  = 50 * 1024 * 1024
	defaultIdleTimeoutSecs = 300
	defaultMaxRetries      = 3
	defaultTimeoutSecs     = 30
	defaultWorkers         = 8
	defaultQueueSize       = 1024
	defaultMetricsAddress  = ":9090"
	defaultMetricsPath     = "/metrics"
)

// Config holds the complete application configuration.
type Config struct {
	SMTP       SMTPConfig       `yaml:"smtp" toml:"smtp"`
	Webhook    WebhookConfig    `yaml:"webhook" toml:"webhook"`
	Delivery   DeliveryConfig   `yaml:"delivery" toml:"delivery"`
	DeadLetter DeadLetterConfig `yaml:"dead_letter" toml:"dead_letter"`
	Metrics    MetricsConfig    `yaml:"metrics" toml:"metrics"`
	Logging    LoggingConfig    `yaml:"logging" toml:"logging"`
}

// SMTPConfig holds SMTP listener configuration.
type SMTPConfig struct {
	BindAddress     string `yaml:"bind_address" toml:"bind_address"`
	Hostname        string `yaml:"hostname" toml:"hostname"`
	MaxLineLength   int    `yaml:"max_line_length" toml:"max_line_length"`
	MaxMessageSize  int64  `yaml:"max_message_size" toml:"max_message_size"`
	IdleTimeoutSecs int    `yaml:"idle_timeout_secs" toml:"idle_timeout_secs"`
	Parser          string `yaml:"parser" toml:"parser"`
}

// IdleTimeout returns the idle timeout. Zero disables it, which is reported
// as a negative duration.
func (c SMTPConfig) IdleTimeout() time.Duration {
	if c.IdleTimeoutSecs <= 0 {
		return -1
	}
	return time.Duration(c.IdleTimeoutSecs) * time.Second
}

// WebhookConfig holds the delivery endpoint configuration.
type WebhookConfig struct {
	URL         string            `yaml:"url" toml:"url"`
	MaxRetries  int               `yaml:"max_retries" toml:"max_retries"`
	TimeoutSecs int               `yaml:"timeout_secs" toml:"timeout_secs"`
	Headers     map[string]string `yaml:"headers" toml:"headers"`
	TLS         WebhookTLSConfig  `yaml:"tls" toml:"tls"`
	OAuth       OAuthConfig       `yaml:"oauth" toml:"oauth"`
}

// Timeout returns the per-request timeout.
func (c WebhookConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// WebhookTLSConfig holds client TLS settings for the webhook connection.
type WebhookTLSConfig struct {
	CAFile             string `yaml:"ca_file" toml:"ca_file"`
	CertFile           string `yaml:"cert_file" toml:"cert_file"`
	KeyFile            string `yaml:"key_file" toml:"key_file"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify" toml:"insecure_skip_verify"`
}

// OAuthConfig holds OAuth2 client-credentials settings for the webhook.
type OAuthConfig struct {
	TokenURL     string `yaml:"token_url" toml:"token_url"`
	ClientID     string `yaml:"client_id" toml:"client_id"`
	ClientSecret string `yaml:"client_secret" toml:"client_secret"`
	Scope        string `yaml:"scope" toml:"scope"`
}

// Configured returns true if a token endpoint is set.
func (c OAuthConfig) Configured() bool {
	return c.TokenURL != ""
}

// DeliveryConfig sizes the delivery worker pool.
type DeliveryConfig struct {
	Workers   int `yaml:"workers" toml:"workers"`
	QueueSize int `yaml:"queue_size" toml:"queue_size"`
}

// Dead-letter sink types.
const (
	DeadLetterNone   = ""
	DeadLetterStdout = "stdout"
	DeadLetterRedis  = "redis"
	DeadLetterSES    = "ses"
)

// DeadLetterConfig selects where undeliverable emails go.
type DeadLetterConfig struct {
	Type  string         `yaml:"type" toml:"type"`
	Redis RedisConfig    `yaml:"redis" toml:"redis"`
	SES   SESAlertConfig `yaml:"ses" toml:"ses"`
}

// RedisConfig holds the redis dead-letter list settings.
type RedisConfig struct {
	Addr     string `yaml:"addr" toml:"addr"`
	Password string `yaml:"password" toml:"password"`
	DB       int    `yaml:"db" toml:"db"`
	Key      string `yaml:"key" toml:"key"`
	MaxLen   int64  `yaml:"max_len" toml:"max_len"`
}

// SESAlertConfig holds the AWS SES operator alert settings.
type SESAlertConfig struct {
	Region          string `yaml:"region" toml:"region"`
	AccessKeyID     string `yaml:"access_key_id" toml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key" toml:"secret_access_key"`
	Sender          string `yaml:"sender" toml:"sender"`
	Recipient       string `yaml:"recipient" toml:"recipient"`
}

// MetricsConfig holds the Prometheus endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Address string `yaml:"address" toml:"address"`
	Path    string `yaml:"path" toml:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Load loads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()
	if err := cfg.applyEnvVars(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a file as the base layer, then
// overrides with environment variables. The format is picked by extension:
// .toml, or .yaml/.yml. Returns an error if the file does not exist.
func LoadFromFile(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		return nil, fmt.Errorf("unsupported config file extension %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Environment variables always override file values
	if err := cfg.applyEnvVars(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for all configuration fields.
func (c *Config) applyDefaults() {
	c.SMTP.BindAddress = defaultBindAddress
	c.SMTP.Hostname = defaultHostname
	c.SMTP.MaxLineLength = defaultMaxLineLength
	c.SMTP.MaxMessageSize = defaultMaxMessageSize
	c.SMTP.IdleTimeoutSecs = defaultIdleTimeoutSecs
	c.SMTP.Parser = "mime"

	c.Webhook.MaxRetries = defaultMaxRetries
	c.Webhook.TimeoutSecs = defaultTimeoutSecs

	c.Delivery.Workers = defaultWorkers
	c.Delivery.QueueSize = defaultQueueSize

	c.Metrics.Address = defaultMetricsAddress
	c.Metrics.Path = defaultMetricsPath

	c.Logging.Level = "info"
	c.Logging.Format = "json"
}
