// Package email defines the core email data model used throughout the gateway.
package email

// Envelope is the SMTP-level sender and recipient list collected by
// MAIL FROM and RCPT TO during one transaction.
type Envelope struct {
	From string
	To   []string
}

// Reset clears the envelope for the next transaction.
func (e *Envelope) Reset() {
	e.From = ""
	e.To = nil
}

// Email is the structured message relayed to the webhook. It is built once
// by a parser and never modified afterwards.
type Email struct {
	From        string   `json:"from"`
	To          []string `json:"to"`
	Subject     string   `json:"subject"`
	Body        string   `json:"body"`
	Attachments []string `json:"attachments,omitempty"`
}

// New builds an Email from an envelope, copying the recipient list so the
// caller can keep mutating its own envelope. To is never nil, so it always
// serializes as a JSON array.
func New(env Envelope, subject, body string, attachments []string) *Email {
	to := make([]string, len(env.To))
	copy(to, env.To)

	var atts []string
	if len(attachments) > 0 {
		atts = make([]string, len(attachments))
		copy(atts, attachments)
	}

	return &Email{
		From:        env.From,
		To:          to,
		Subject:     subject,
		Body:        body,
		Attachments: atts,
	}
}
