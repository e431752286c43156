// Package main is the entry point for the SMTP-to-webhook gateway.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/shineum/smtp2webhook/internal/config"
	"github.com/shineum/smtp2webhook/internal/deadletter"
	"github.com/shineum/smtp2webhook/internal/logging"
	"github.com/shineum/smtp2webhook/internal/metrics"
	"github.com/shineum/smtp2webhook/internal/parser"
	"github.com/shineum/smtp2webhook/internal/relay"
	"github.com/shineum/smtp2webhook/internal/smtp"
	smtptls "github.com/shineum/smtp2webhook/internal/tls"
	"github.com/shineum/smtp2webhook/internal/webhook"
)

// drainTimeout bounds how long queued deliveries may run after shutdown.
const drainTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", "", "path to TOML or YAML configuration file (optional)")
	flag.Parse()

	// Load configuration
	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging
	logger := logging.NewLogger(os.Stdout, cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	collector, metricsServer := metrics.New(metrics.Config{
		Enabled: cfg.Metrics.Enabled,
		Address: cfg.Metrics.Address,
		Path:    cfg.Metrics.Path,
	})

	tlsConfig, err := smtptls.ClientConfig(smtptls.ClientOptions{
		CAFile:             cfg.Webhook.TLS.CAFile,
		CertFile:           cfg.Webhook.TLS.CertFile,
		KeyFile:            cfg.Webhook.TLS.KeyFile,
		InsecureSkipVerify: cfg.Webhook.TLS.InsecureSkipVerify,
	})
	if err != nil {
		slog.Error("failed to setup webhook TLS", "error", err)
		os.Exit(1)
	}

	hook := webhook.New(webhook.Config{
		URL:        cfg.Webhook.URL,
		MaxRetries: cfg.Webhook.MaxRetries,
		Timeout:    cfg.Webhook.Timeout(),
		Headers:    cfg.Webhook.Headers,
		TLS:        tlsConfig,
		OAuth: webhook.OAuthConfig{
			TokenURL:     cfg.Webhook.OAuth.TokenURL,
			ClientID:     cfg.Webhook.OAuth.ClientID,
			ClientSecret: cfg.Webhook.OAuth.ClientSecret,
			Scope:        cfg.Webhook.OAuth.Scope,
		},
	}, webhook.WithCollector(collector))

	sink, closeSink := selectDeadLetter(cfg)
	defer closeSink()

	queue := relay.NewQueue(hook, relay.Options{
		Workers:    cfg.Delivery.Workers,
		QueueSize:  cfg.Delivery.QueueSize,
		DeadLetter: sink,
		Metrics:    collector,
	})

	msgParser, err := parser.New(cfg.SMTP.Parser)
	if err != nil {
		slog.Error("failed to create parser", "error", err)
		os.Exit(1)
	}

	server := smtp.New(smtp.ServerConfig{
		ListenAddr: cfg.SMTP.BindAddress,
		SessionConfig: smtp.SessionConfig{
			Hostname:       cfg.SMTP.Hostname,
			MaxLineLength:  cfg.SMTP.MaxLineLength,
			MaxMessageSize: cfg.SMTP.MaxMessageSize,
			IdleTimeout:    cfg.SMTP.IdleTimeout(),
			Parser:         msgParser,
			Publisher:      queue,
			Metrics:        collector,
			Logger:         logger,
		},
	})

	slog.Info("starting smtp2webhook",
		"listen", cfg.SMTP.BindAddress,
		"webhook", redactURL(cfg.Webhook.URL),
		"max_retries", cfg.Webhook.MaxRetries,
		"dead_letter", cfg.DeadLetter.Type,
		"metrics_enabled", cfg.Metrics.Enabled,
	)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		sig := <-sigCh
		slog.Info("received signal, initiating shutdown", "signal", sig)
		cancel()
	}()

	go func() {
		if err := metricsServer.Start(ctx); err != nil {
			slog.Error("metrics server error", "error", err)
		}
	}()

	// Start the server (blocks until context is cancelled)
	serveErr := server.ListenAndServe(ctx)
	if serveErr != nil {
		slog.Error("server error", "error", serveErr)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), drainTimeout)
	defer shutdownCancel()

	if err := queue.Shutdown(shutdownCtx); err != nil {
		slog.Warn("delivery queue did not drain", "error", err)
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("metrics server shutdown error", "error", err)
	}

	if serveErr != nil {
		closeSink()
		os.Exit(1)
	}
	slog.Info("smtp2webhook stopped")
}

// loadConfig loads configuration from the specified path (file + env override)
// or from environment variables only if no path is given.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

// selectDeadLetter builds the configured dead-letter sink. It returns a nil
// sink when none is configured, and a cleanup func that is always safe to call.
func selectDeadLetter(cfg *config.Config) (deadletter.Sink, func()) {
	noop := func() {}

	switch cfg.DeadLetter.Type {
	case config.DeadLetterStdout:
		slog.Info("using stdout dead-letter sink")
		return deadletter.NewStdout(), noop

	case config.DeadLetterRedis:
		slog.Info("using redis dead-letter sink",
			"addr", cfg.DeadLetter.Redis.Addr,
			"key", cfg.DeadLetter.Redis.Key,
		)
		sink := deadletter.NewRedis(deadletter.RedisConfig{
			Addr:     cfg.DeadLetter.Redis.Addr,
			Password: cfg.DeadLetter.Redis.Password,
			DB:       cfg.DeadLetter.Redis.DB,
			Key:      cfg.DeadLetter.Redis.Key,
			MaxLen:   cfg.DeadLetter.Redis.MaxLen,
		})
		var closed bool
		return sink, func() {
			if closed {
				return
			}
			closed = true
			if err := sink.Close(); err != nil {
				slog.Warn("failed to close redis client", "error", err)
			}
		}

	case config.DeadLetterSES:
		slog.Info("using AWS SES dead-letter alerts",
			"region", cfg.DeadLetter.SES.Region,
			"recipient", cfg.DeadLetter.SES.Recipient,
		)
		sink, err := deadletter.NewSES(context.Background(), deadletter.SESConfig{
			Region:          cfg.DeadLetter.SES.Region,
			AccessKeyID:     cfg.DeadLetter.SES.AccessKeyID,
			SecretAccessKey: cfg.DeadLetter.SES.SecretAccessKey,
			Sender:          cfg.DeadLetter.SES.Sender,
			Recipient:       cfg.DeadLetter.SES.Recipient,
		})
		if err != nil {
			slog.Error("failed to create SES dead-letter sink", "error", err)
			os.Exit(1)
		}
		return sink, noop

	default:
		slog.Info("no dead-letter sink configured, undeliverable emails are dropped")
		return nil, noop
	}
}

// redactURL strips userinfo and query from a URL for logging.
func redactURL(raw string) string {
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		raw = raw[:i]
	}
	if scheme, rest, ok := strings.Cut(raw, "://"); ok {
		if at := strings.LastIndex(rest, "@"); at >= 0 && !strings.Contains(rest[:at], "/") {
			rest = rest[at+1:]
		}
		return scheme + "://" + rest
	}
	return raw
}
