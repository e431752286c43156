// Package smtp implements the gateway's SMTP listener and the per-connection
// command state machine.
package smtp

import (
	"encoding/base64"
	"strings"
)

// AUTH is a protocol stub. Any mechanism and any credentials are accepted
// and nothing is verified; it exists so clients that insist on
// authenticating can submit mail. It is NOT a security control. Restrict
// who can reach the listener instead.

// Base64 prompts sent during AUTH LOGIN.
const (
	promptUsername = "334 VXNlcm5hbWU6" // "Username:"
	promptPassword = "334 UGFzc3dvcmQ6" // "Password:"
)

// authAttempt records what a client presented to the AUTH stub, for logging.
type authAttempt struct {
	mechanism string
	username  string
}

// decodeLoginField decodes a base64 AUTH LOGIN response. Undecodable input
// yields an empty string.
func decodeLoginField(encoded string) string {
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return ""
	}
	return string(decoded)
}

// decodePlainUsername extracts the authentication identity from an AUTH
// PLAIN response, base64(authzid \0 authcid \0 passwd).
func decodePlainUsername(encoded string) string {
	parts := strings.SplitN(decodeLoginField(encoded), "\x00", 3)
	if len(parts) != 3 {
		return ""
	}
	return parts[1]
}
