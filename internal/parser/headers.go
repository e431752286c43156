package parser

import (
	"strings"

	"github.com/shineum/smtp2webhook/internal/email"
)

// HeaderScan is the lenient fallback parser. It unfolds headers line by line,
// picks out Subject and treats everything after the first blank line as the
// body. It never fails and never reports attachments.
type HeaderScan struct{}

// Parse implements Parser.
func (HeaderScan) Parse(env email.Envelope, raw []byte) (*email.Email, error) {
	text := strings.ReplaceAll(string(raw), "\r\n", "\n")
	lines := strings.Split(text, "\n")

	var (
		subject   string
		current   string
		haveHdr   bool
		inHeaders = true
		body      []string
	)

	flush := func() {
		if !haveHdr {
			return
		}
		name, value, ok := strings.Cut(current, ":")
		if ok && strings.EqualFold(strings.TrimSpace(name), "Subject") {
			subject = strings.TrimSpace(value)
		}
		current = ""
		haveHdr = false
	}

	for _, line := range lines {
		if !inHeaders {
			body = append(body, line)
			continue
		}

		switch {
		case line == "":
			flush()
			inHeaders = false
		case line[0] == ' ' || line[0] == '\t':
			if haveHdr {
				current += " " + strings.TrimSpace(line)
			}
		default:
			flush()
			current = line
			haveHdr = true
		}
	}
	flush()

	return email.New(env, subject, trimBody(strings.Join(body, "\n")), nil), nil
}

// Name returns the parser name.
func (HeaderScan) Name() string {
	return KindHeaders
}
