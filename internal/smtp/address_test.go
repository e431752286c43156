package smtp

import "testing"

func TestExtractAddress(t *testing.T) {
	t.Parallel()

	tests := []struct {
		line string
		want string
	}{
		{line: "MAIL FROM:<user@example.com>", want: "user@example.com"},
		{line: "MAIL FROM: <user@example.com>", want: "user@example.com"},
		{line: "RCPT TO:user@example.com", want: "user@example.com"},
		{line: "RCPT TO:  <  spaced@example.com  >  ", want: "spaced@example.com"},
		{line: "mail from:<Mixed.Case@Example.COM>", want: "Mixed.Case@Example.COM"},
		{line: "MAIL FROM:<>", want: ""},
		{line: "MAIL FROM:<a:b@example.com>", want: "a:b@example.com"},
		{line: "MAIL FROM:<<double>>", want: "<double>"},
		{line: "MAIL FROM", want: "unknown"},
		{line: "", want: "unknown"},
	}

	for _, tt := range tests {
		if got := ExtractAddress(tt.line); got != tt.want {
			t.Errorf("ExtractAddress(%q): got %q, want %q", tt.line, got, tt.want)
		}
	}
}
