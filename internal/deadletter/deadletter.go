// Package deadletter stores emails whose webhook delivery was exhausted so
// an operator can inspect or replay them.
package deadletter

import (
	"context"
	"time"

	"github.com/shineum/smtp2webhook/internal/email"
)

// Sink receives undeliverable emails.
type Sink interface {
	// Store records msg together with the final delivery error.
	Store(ctx context.Context, msg *email.Email, reason error) error

	// Name returns the human-readable name of this sink.
	Name() string
}

// Record is the serialized form written by sinks that persist JSON.
type Record struct {
	Email    *email.Email `json:"email"`
	Reason   string       `json:"reason"`
	FailedAt time.Time    `json:"failed_at"`
}

// NewRecord builds a Record stamped with the current time.
func NewRecord(msg *email.Email, reason error) Record {
	r := Record{Email: msg, FailedAt: time.Now().UTC()}
	if reason != nil {
		r.Reason = reason.Error()
	}
	return r
}
