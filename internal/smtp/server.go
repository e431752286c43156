package smtp

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"
)

// shutdownTimeout is the maximum time to wait for in-flight connections
// during graceful shutdown.
const shutdownTimeout = 30 * time.Second

// acceptRetryDelay pauses the accept loop after a failed Accept.
const acceptRetryDelay = 50 * time.Millisecond

// ServerConfig holds the configuration for an SMTP server.
type ServerConfig struct {
	// ListenAddr is the address to listen on (e.g., "0.0.0.0:2525").
	ListenAddr string

	SessionConfig
}

// Server accepts SMTP connections and runs one Session per connection.
type Server struct {
	config ServerConfig

	// wg tracks in-flight session goroutines for graceful shutdown.
	wg sync.WaitGroup
}

// New creates a new SMTP Server with the given configuration.
func New(cfg ServerConfig) *Server {
	cfg.SessionConfig = cfg.SessionConfig.withDefaults()
	return &Server{config: cfg}
}

// ListenAndServe binds ListenAddr and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled. It then closes
// the listener and waits up to 30 seconds for in-flight sessions before
// returning. Sessions are not interrupted.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	logger := s.config.Logger

	logger.Info("SMTP server listening",
		"addr", ln.Addr().String(),
		"hostname", s.config.Hostname,
		"parser", s.config.Parser.Name(),
		"max_message_size", s.config.MaxMessageSize,
	)

	stop := context.AfterFunc(ctx, func() {
		logger.Info("shutting down SMTP server")
		ln.Close()
	})
	defer stop()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.waitForSessions(logger)
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				s.waitForSessions(logger)
				return err
			}
			logger.Error("accept error", "error", err)
			time.Sleep(acceptRetryDelay)
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			NewSession(conn, s.config.SessionConfig).Handle()
		}()
	}
}

// waitForSessions waits for all in-flight sessions to complete,
// with a maximum timeout to prevent indefinite blocking.
func (s *Server) waitForSessions(logger *slog.Logger) {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("all sessions completed")
	case <-time.After(shutdownTimeout):
		logger.Warn("shutdown timeout reached, abandoning open sessions")
	}
}
