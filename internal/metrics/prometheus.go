package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector implements Collector using Prometheus metrics.
type PrometheusCollector struct {
	connectionsTotal  prometheus.Counter
	connectionsActive prometheus.Gauge

	commandsTotal *prometheus.CounterVec

	messagesAcceptedTotal prometheus.Counter
	messagesRejectedTotal *prometheus.CounterVec
	messagesSizeBytes     prometheus.Histogram

	deliveryAttemptsTotal *prometheus.CounterVec
	deliveriesTotal       *prometheus.CounterVec
	deadLettersTotal      *prometheus.CounterVec
}

// NewPrometheusCollector creates a PrometheusCollector and registers its
// metrics with reg.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	c := &PrometheusCollector{
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smtp2webhook_connections_total",
			Help: "Total number of SMTP connections accepted.",
		}),
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "smtp2webhook_connections_active",
			Help: "Number of currently open SMTP connections.",
		}),
		commandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smtp2webhook_commands_total",
			Help: "Total number of SMTP commands processed.",
		}, []string{"command"}),
		messagesAcceptedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smtp2webhook_messages_accepted_total",
			Help: "Total number of messages parsed and queued for delivery.",
		}),
		messagesRejectedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smtp2webhook_messages_rejected_total",
			Help: "Total number of messages that were not queued for delivery.",
		}, []string{"reason"}),
		messagesSizeBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "smtp2webhook_messages_size_bytes",
			Help:    "Size of accepted raw messages in bytes.",
			Buckets: []float64{1024, 10240, 102400, 1048576, 10485760, 26214400, 52428800},
		}),
		deliveryAttemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smtp2webhook_delivery_attempts_total",
			Help: "Total number of webhook POST attempts.",
		}, []string{"result"}),
		deliveriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smtp2webhook_deliveries_total",
			Help: "Total number of finished deliveries by outcome.",
		}, []string{"result"}),
		deadLettersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smtp2webhook_dead_letters_total",
			Help: "Total number of undeliverable messages handed to a dead-letter sink.",
		}, []string{"sink", "result"}),
	}

	reg.MustRegister(
		c.connectionsTotal,
		c.connectionsActive,
		c.commandsTotal,
		c.messagesAcceptedTotal,
		c.messagesRejectedTotal,
		c.messagesSizeBytes,
		c.deliveryAttemptsTotal,
		c.deliveriesTotal,
		c.deadLettersTotal,
	)

	return c
}

// ConnectionOpened increments the connection counter and active gauge.
func (c *PrometheusCollector) ConnectionOpened() {
	c.connectionsTotal.Inc()
	c.connectionsActive.Inc()
}

// ConnectionClosed decrements the active connections gauge.
func (c *PrometheusCollector) ConnectionClosed() {
	c.connectionsActive.Dec()
}

// CommandProcessed counts a command verb. Verbs are upper-cased so label
// cardinality stays bounded by what clients actually send.
func (c *PrometheusCollector) CommandProcessed(command string) {
	c.commandsTotal.WithLabelValues(strings.ToUpper(command)).Inc()
}

// MessageAccepted counts an accepted message and observes its size.
func (c *PrometheusCollector) MessageAccepted(sizeBytes int64) {
	c.messagesAcceptedTotal.Inc()
	c.messagesSizeBytes.Observe(float64(sizeBytes))
}

// MessageRejected counts a message that was dropped before delivery.
func (c *PrometheusCollector) MessageRejected(reason string) {
	c.messagesRejectedTotal.WithLabelValues(reason).Inc()
}

// DeliveryAttempt counts one webhook POST.
func (c *PrometheusCollector) DeliveryAttempt(ok bool) {
	c.deliveryAttemptsTotal.WithLabelValues(result(ok)).Inc()
}

// DeliveryCompleted counts a finished delivery.
func (c *PrometheusCollector) DeliveryCompleted(res string) {
	c.deliveriesTotal.WithLabelValues(res).Inc()
}

// DeadLettered counts a hand-off to a dead-letter sink.
func (c *PrometheusCollector) DeadLettered(sink string, ok bool) {
	c.deadLettersTotal.WithLabelValues(sink, result(ok)).Inc()
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
