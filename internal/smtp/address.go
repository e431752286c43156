package smtp

import "strings"

// unknownAddress is returned when a MAIL FROM or RCPT TO line has no colon.
const unknownAddress = "unknown"

// ExtractAddress pulls the address out of a "MAIL FROM:" or "RCPT TO:"
// command line. Everything after the first colon is trimmed and one pair of
// angle brackets is removed. The address is not validated and its case is
// preserved.
func ExtractAddress(line string) string {
	_, addr, ok := strings.Cut(line, ":")
	if !ok {
		return unknownAddress
	}

	addr = strings.TrimSpace(addr)
	addr = strings.TrimPrefix(addr, "<")
	addr = strings.TrimSuffix(addr, ">")
	return strings.TrimSpace(addr)
}
