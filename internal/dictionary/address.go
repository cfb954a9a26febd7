package dictionary

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseAddress decodes register address text as stored in description
// sources: hexadecimal, optionally prefixed with "0x". Repeated prefixes are
// all stripped. The prefix match is case-sensitive.
func ParseAddress(text string) (uint16, error) {
	digits := text
	for strings.HasPrefix(digits, "0x") {
		digits = digits[2:]
	}

	addr, err := strconv.ParseUint(digits, 16, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid register address %q: %w", text, err)
	}
	return uint16(addr), nil
}

// DecodeAddress is ParseAddress with the degrade-to-zero policy: malformed
// address text becomes address 0. Callers that want to report the problem
// should use ParseAddress first.
func DecodeAddress(text string) uint16 {
	addr, err := ParseAddress(text)
	if err != nil {
		return 0
	}
	return addr
}

// FormatAddress renders addr the way description sources store it.
func FormatAddress(addr uint16) string {
	return fmt.Sprintf("0x%X", addr)
}

// ParseInputAddress decodes an address typed by a user: decimal, or
// hexadecimal with a "0x" or "0X" prefix.
func ParseInputAddress(text string) (uint16, error) {
	if strings.HasPrefix(text, "0x") || strings.HasPrefix(text, "0X") {
		return ParseAddress("0x" + text[2:])
	}
	n, err := strconv.ParseUint(text, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid register address %q: %w", text, err)
	}
	return uint16(n), nil
}
