package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config holds the configuration for the metrics server.
type Config struct {
	Enabled bool
	Address string
	Path    string
}

// New returns a Prometheus collector and server when cfg.Enabled is set,
// and no-op implementations otherwise.
func New(cfg Config) (Collector, Server) {
	if !cfg.Enabled {
		return NoopCollector{}, NoopServer{}
	}
	reg := prometheus.NewRegistry()
	return NewPrometheusCollector(reg), NewPrometheusServer(cfg.Address, cfg.Path, reg)
}

// PrometheusServer serves the metrics of one registry over HTTP.
type PrometheusServer struct {
	server *http.Server
}

// NewPrometheusServer creates a server exposing g at address and path.
func NewPrometheusServer(address, path string, g prometheus.Gatherer) *PrometheusServer {
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(g, promhttp.HandlerOpts{}))

	return &PrometheusServer{
		server: &http.Server{
			Addr:    address,
			Handler: mux,
		},
	}
}

// Start begins serving metrics. It returns nil once ctx is canceled.
func (s *PrometheusServer) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully stops the metrics server.
func (s *PrometheusServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
