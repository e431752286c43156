package deadletter

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/shineum/smtp2webhook/internal/email"
)

// WriterSink prints undeliverable emails in a human-readable block.
type WriterSink struct {
	mu     sync.Mutex
	writer io.Writer
}

// NewStdout creates a WriterSink that writes to os.Stdout.
func NewStdout() *WriterSink {
	return &WriterSink{writer: os.Stdout}
}

// NewWriter creates a WriterSink that writes to w.
func NewWriter(w io.Writer) *WriterSink {
	return &WriterSink{writer: w}
}

// Store writes msg and the failure reason.
func (s *WriterSink) Store(_ context.Context, msg *email.Email, reason error) error {
	var b strings.Builder

	b.WriteString("======== undeliverable ========\n")
	if reason != nil {
		fmt.Fprintf(&b, "Reason: %s\n", reason)
	}
	fmt.Fprintf(&b, "From: %s\n", msg.From)
	fmt.Fprintf(&b, "To: %s\n", strings.Join(msg.To, ", "))
	fmt.Fprintf(&b, "Subject: %s\n", msg.Subject)
	b.WriteString("Body:\n")
	b.WriteString(msg.Body + "\n")
	if len(msg.Attachments) > 0 {
		fmt.Fprintf(&b, "Attachments: %s\n", strings.Join(msg.Attachments, ", "))
	}
	b.WriteString("===============================\n")

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := io.WriteString(s.writer, b.String()); err != nil {
		return fmt.Errorf("failed to write dead letter: %w", err)
	}
	return nil
}

// Name returns the sink name.
func (s *WriterSink) Name() string {
	return "stdout"
}
