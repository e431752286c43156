// Package tls builds the TLS configuration used by the outbound webhook client.
package tls

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// ClientOptions describes how the webhook client authenticates the endpoint
// and, optionally, itself.
type ClientOptions struct {
	// CAFile is a PEM bundle added to the system roots.
	CAFile string

	// CertFile and KeyFile hold a client certificate for mutual TLS.
	CertFile string
	KeyFile  string

	// InsecureSkipVerify disables server certificate verification.
	InsecureSkipVerify bool
}

// Configured reports whether any option deviates from Go's defaults.
func (o ClientOptions) Configured() bool {
	return o.CAFile != "" || o.CertFile != "" || o.KeyFile != "" || o.InsecureSkipVerify
}

// ClientConfig returns a tls.Config for the webhook HTTP transport, or nil
// when no option is set so the default transport settings apply.
func ClientConfig(opts ClientOptions) (*tls.Config, error) {
	if !opts.Configured() {
		return nil, nil
	}

	cfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: opts.InsecureSkipVerify,
	}

	if opts.CAFile != "" {
		pemData, err := os.ReadFile(opts.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA file: %w", err)
		}
		pool, err := x509.SystemCertPool()
		if err != nil || pool == nil {
			pool = x509.NewCertPool()
		}
		if !pool.AppendCertsFromPEM(pemData) {
			return nil, fmt.Errorf("no certificates found in CA file %s", opts.CAFile)
		}
		cfg.RootCAs = pool
	}

	if opts.CertFile != "" || opts.KeyFile != "" {
		if opts.CertFile == "" || opts.KeyFile == "" {
			return nil, fmt.Errorf("client certificate requires both cert_file and key_file")
		}
		cert, err := tls.LoadX509KeyPair(opts.CertFile, opts.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client key pair: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	return cfg, nil
}
