// Package metrics records gateway activity. Collector is implemented by a
// Prometheus-backed collector and a no-op one; Server exposes the metrics.
package metrics

import "context"

// Rejection reasons passed to MessageRejected.
const (
	ReasonLineTooLong = "line_too_long"
	ReasonTooBig      = "too_big"
	ReasonParseFailed = "parse_failed"
	ReasonQueueFull   = "queue_full"
)

// Delivery results passed to DeliveryCompleted.
const (
	ResultSuccess   = "success"
	ResultExhausted = "exhausted"
	ResultCancelled = "cancelled"
)

// Collector defines the interface for recording gateway metrics.
type Collector interface {
	ConnectionOpened()
	ConnectionClosed()
	CommandProcessed(command string)

	MessageAccepted(sizeBytes int64)
	MessageRejected(reason string)

	// DeliveryAttempt records one webhook POST; ok is false for transport
	// errors and non-2xx responses.
	DeliveryAttempt(ok bool)
	DeliveryCompleted(result string)
	DeadLettered(sink string, ok bool)
}

// Server defines the interface for a metrics HTTP server.
type Server interface {
	// Start begins serving metrics. It blocks until the context is canceled
	// or an error occurs.
	Start(ctx context.Context) error

	// Shutdown gracefully stops the metrics server.
	Shutdown(ctx context.Context) error
}
