// Package relay decouples SMTP sessions from webhook delivery. Sessions
// publish finished emails onto a bounded queue; a fixed pool of workers
// delivers them and hands exhausted ones to an optional dead-letter sink.
package relay

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shineum/smtp2webhook/internal/deadletter"
	"github.com/shineum/smtp2webhook/internal/email"
	"github.com/shineum/smtp2webhook/internal/metrics"
)

// Defaults applied by NewQueue for zero-valued options.
const (
	DefaultWorkers   = 8
	DefaultQueueSize = 1024
)

// deadLetterTimeout bounds a single dead-letter write. It is independent of
// the queue context so undeliverable mail is still recorded during shutdown.
const deadLetterTimeout = 30 * time.Second

// Deliverer sends one email to its destination.
type Deliverer interface {
	Deliver(ctx context.Context, msg *email.Email) error
	Name() string
}

// Options configures a Queue.
type Options struct {
	Workers    int
	QueueSize  int
	DeadLetter deadletter.Sink
	Metrics    metrics.Collector
}

// Queue is a bounded delivery queue drained by a worker pool.
type Queue struct {
	deliverer  Deliverer
	deadLetter deadletter.Sink
	metrics    metrics.Collector

	jobs   chan *email.Email
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewQueue starts the workers and returns the running queue.
func NewQueue(d Deliverer, opts Options) *Queue {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NoopCollector{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		deliverer:  d,
		deadLetter: opts.DeadLetter,
		metrics:    opts.Metrics,
		jobs:       make(chan *email.Email, opts.QueueSize),
		ctx:        ctx,
		cancel:     cancel,
	}

	for i := 0; i < opts.Workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}

	return q
}

// Publish enqueues msg without blocking and reports whether it was
// accepted. A full or closed queue drops the message.
func (q *Queue) Publish(msg *email.Email) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		slog.Error("delivery queue closed, dropping email", "from", msg.From, "subject", msg.Subject)
		q.metrics.MessageRejected(metrics.ReasonQueueFull)
		return false
	}

	select {
	case q.jobs <- msg:
		return true
	default:
		slog.Error("delivery queue full, dropping email",
			"from", msg.From,
			"subject", msg.Subject,
			"capacity", cap(q.jobs),
		)
		q.metrics.MessageRejected(metrics.ReasonQueueFull)
		return false
	}
}

// Shutdown stops intake and waits for queued deliveries to finish. If ctx
// expires first, in-flight deliveries are cancelled, anything still queued
// is dropped, and ctx's error is returned.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.cancel()
		return nil
	case <-ctx.Done():
		slog.Warn("delivery queue shutdown timed out, cancelling in-flight deliveries",
			"pending", len(q.jobs),
		)
		q.cancel()
		<-done
		return ctx.Err()
	}
}

func (q *Queue) worker() {
	defer q.wg.Done()

	for msg := range q.jobs {
		if q.ctx.Err() != nil {
			slog.Error("dropping queued email during shutdown", "from", msg.From, "subject", msg.Subject)
			continue
		}
		q.process(msg)
	}
}

// process delivers one email and dead-letters it when delivery fails.
func (q *Queue) process(msg *email.Email) {
	err := q.deliverer.Deliver(q.ctx, msg)
	if err == nil {
		q.metrics.DeliveryCompleted(metrics.ResultSuccess)
		return
	}
	if q.ctx.Err() != nil {
		// Shutdown interrupted the delivery; it was not exhausted.
		q.metrics.DeliveryCompleted(metrics.ResultCancelled)
		slog.Error("delivery cancelled by shutdown, dropping email",
			"deliverer", q.deliverer.Name(),
			"from", msg.From,
			"subject", msg.Subject,
			"error", err,
		)
		return
	}
	q.metrics.DeliveryCompleted(metrics.ResultExhausted)

	if q.deadLetter == nil {
		slog.Error("dropping undeliverable email",
			"deliverer", q.deliverer.Name(),
			"from", msg.From,
			"subject", msg.Subject,
			"error", err,
		)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), deadLetterTimeout)
	defer cancel()

	if storeErr := q.deadLetter.Store(ctx, msg, err); storeErr != nil {
		slog.Error("dead-letter sink failed, dropping undeliverable email",
			"sink", q.deadLetter.Name(),
			"from", msg.From,
			"subject", msg.Subject,
			"error", err,
			"sink_error", storeErr,
		)
		q.metrics.DeadLettered(q.deadLetter.Name(), false)
		return
	}

	slog.Error("undeliverable email moved to dead-letter sink",
		"sink", q.deadLetter.Name(),
		"from", msg.From,
		"subject", msg.Subject,
		"error", err,
	)
	q.metrics.DeadLettered(q.deadLetter.Name(), true)
}
