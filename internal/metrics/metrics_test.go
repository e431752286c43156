package metrics

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectorsImplementInterface(t *testing.T) {
	var _ Collector = NoopCollector{}
	var _ Collector = NewPrometheusCollector(prometheus.NewRegistry())
	var _ Server = NoopServer{}
	var _ Server = NewPrometheusServer(":0", "/metrics", prometheus.NewRegistry())
}

func TestNew_Disabled(t *testing.T) {
	c, s := New(Config{Enabled: false})
	if _, ok := c.(NoopCollector); !ok {
		t.Errorf("collector: got %T, want NoopCollector", c)
	}
	if _, ok := s.(NoopServer); !ok {
		t.Errorf("server: got %T, want NoopServer", s)
	}
}

func TestPrometheusCollector_Counts(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewPrometheusCollector(reg)

	c.ConnectionOpened()
	c.ConnectionOpened()
	c.ConnectionClosed()
	c.CommandProcessed("ehlo")
	c.CommandProcessed("EHLO")
	c.MessageAccepted(2048)
	c.MessageRejected(ReasonTooBig)
	c.DeliveryAttempt(false)
	c.DeliveryAttempt(true)
	c.DeliveryCompleted(ResultSuccess)
	c.DeadLettered("redis", true)

	if got := testutil.ToFloat64(c.connectionsTotal); got != 2 {
		t.Errorf("connections_total: got %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.connectionsActive); got != 1 {
		t.Errorf("connections_active: got %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.commandsTotal.WithLabelValues("EHLO")); got != 2 {
		t.Errorf("commands_total{EHLO}: got %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.messagesRejectedTotal.WithLabelValues(ReasonTooBig)); got != 1 {
		t.Errorf("messages_rejected_total{too_big}: got %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.deliveryAttemptsTotal.WithLabelValues("failure")); got != 1 {
		t.Errorf("delivery_attempts_total{failure}: got %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.deadLettersTotal.WithLabelValues("redis", "success")); got != 1 {
		t.Errorf("dead_letters_total{redis,success}: got %v, want 1", got)
	}

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	names := make(map[string]bool)
	for _, mf := range mfs {
		names[mf.GetName()] = true
	}
	for _, want := range []string{
		"smtp2webhook_connections_total",
		"smtp2webhook_messages_accepted_total",
		"smtp2webhook_messages_size_bytes",
		"smtp2webhook_deliveries_total",
	} {
		if !names[want] {
			t.Errorf("metric %s not registered", want)
		}
	}
}

func TestPrometheusServer_ServesMetrics(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	reg := prometheus.NewRegistry()
	c := NewPrometheusCollector(reg)
	c.ConnectionOpened()

	srv := NewPrometheusServer(addr, "/metrics", reg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go srv.Start(ctx)
	defer srv.Shutdown(context.Background())

	var body string
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get("http://" + addr + "/metrics")
		if err != nil {
			time.Sleep(20 * time.Millisecond)
			continue
		}
		data, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		body = string(data)
		break
	}

	if !strings.Contains(body, "smtp2webhook_connections_total 1") {
		t.Errorf("metrics body missing connection counter:\n%s", body)
	}
}
