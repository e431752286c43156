// Package parser turns the raw DATA text of an SMTP transaction into a
// structured email.Email.
package parser

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shineum/smtp2webhook/internal/email"
)

// ErrEmptyMessage is returned when there is nothing to parse.
var ErrEmptyMessage = errors.New("empty message")

// Parser produces a structured email from the raw message text and the SMTP
// envelope. Implementations must not retain raw after returning.
type Parser interface {
	Parse(env email.Envelope, raw []byte) (*email.Email, error)
	Name() string
}

// Parser kinds accepted by New.
const (
	KindMIME    = "mime"
	KindHeaders = "headers"
)

// New returns the parser registered under kind. An empty kind selects the
// MIME-aware parser.
func New(kind string) (Parser, error) {
	switch strings.ToLower(kind) {
	case "", KindMIME:
		return MIME{}, nil
	case KindHeaders:
		return HeaderScan{}, nil
	default:
		return nil, fmt.Errorf("unknown parser %q", kind)
	}
}

// trimBody strips trailing whitespace from a message body.
func trimBody(s string) string {
	return strings.TrimRight(s, " \t\r\n")
}
