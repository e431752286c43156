package parser

import (
	"bytes"
	"log/slog"

	"github.com/jhillyerd/enmime"

	"github.com/shineum/smtp2webhook/internal/email"
)

// MIME parses messages with enmime. The body is the first text part; a
// message that only carries HTML gets enmime's plain-text down-conversion.
// Every attachment part that has a file name is listed, in message order.
// Input enmime rejects, such as a block with no headers, is handed to
// HeaderScan instead.
type MIME struct{}

// Parse implements Parser.
func (MIME) Parse(env email.Envelope, raw []byte) (*email.Email, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, ErrEmptyMessage
	}

	envelope, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		slog.Debug("MIME parse failed, falling back to header scan", "error", err)
		return HeaderScan{}.Parse(env, raw)
	}

	var attachments []string
	for _, part := range envelope.Attachments {
		if part.FileName != "" {
			attachments = append(attachments, part.FileName)
		}
	}

	return email.New(env, envelope.GetHeader("Subject"), trimBody(envelope.Text), attachments), nil
}

// Name returns the parser name.
func (MIME) Name() string {
	return KindMIME
}
