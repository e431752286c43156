package smtp

import (
	"encoding/base64"
	"testing"
)

func b64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func TestDecodeLoginField(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{in: b64("user@example.com"), want: "user@example.com"},
		{in: " " + b64("padded") + "\r\n", want: "padded"},
		{in: "!!!not-base64", want: ""},
		{in: "", want: ""},
	}

	for _, tt := range tests {
		if got := decodeLoginField(tt.in); got != tt.want {
			t.Errorf("decodeLoginField(%q): got %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDecodePlainUsername(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "no authzid", in: b64("\x00user\x00pass"), want: "user"},
		{name: "with authzid", in: b64("admin\x00user\x00pass"), want: "user"},
		{name: "missing separator", in: b64("userpass"), want: ""},
		{name: "invalid base64", in: "%%%", want: ""},
	}

	for _, tt := range tests {
		if got := decodePlainUsername(tt.in); got != tt.want {
			t.Errorf("%s: got %q, want %q", tt.name, got, tt.want)
		}
	}
}
