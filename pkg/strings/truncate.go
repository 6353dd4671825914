// Package strings holds text helpers for messages that leave the process: event
// messages and close reasons have hard length limits.
package strings

import (
	"strings"
	"unicode/utf8"
)

// MinSingleLineLen is the smallest maxLen accepted by SingleLine. Smaller values
// would not leave room for one character plus "...".
const MinSingleLineLen = 4

// SingleLine collapses all whitespace runs (including newlines) into single spaces and
// truncates the result to maxLen runes, ending it with "..." when it was cut.
func SingleLine(s string, maxLen int) string {
	if maxLen < MinSingleLineLen {
		maxLen = MinSingleLineLen
	}

	s = strings.Join(strings.Fields(s), " ")

	runes := []rune(s)
	if len(runes) > maxLen {
		return string(runes[:maxLen-3]) + "..."
	}
	return s
}

// TruncateBytes cuts s to at most maxBytes bytes without splitting a multi-byte rune.
func TruncateBytes(s string, maxBytes int) string {
	if maxBytes <= 0 {
		return ""
	}
	if len(s) <= maxBytes {
		return s
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
