package strings

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestSingleLine(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		maxLen   int
		expected string
	}{
		{name: "short string unchanged", input: "hello", maxLen: 10, expected: "hello"},
		{name: "exact length unchanged", input: "hello", maxLen: 5, expected: "hello"},
		{name: "long string truncated", input: "hello world this is a long string", maxLen: 15, expected: "hello world ..."},
		{name: "newlines replaced with spaces", input: "back-off restarting\nfailed container", maxLen: 80, expected: "back-off restarting failed container"},
		{name: "carriage returns and tabs", input: "a\r\n\tb", maxLen: 20, expected: "a b"},
		{name: "leading and trailing whitespace", input: "  oom killed \n", maxLen: 20, expected: "oom killed"},
		{name: "small maxLen clamped", input: "hello world", maxLen: 1, expected: "h..."},
		{name: "empty input", input: "", maxLen: 10, expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SingleLine(tt.input, tt.maxLen))
		})
	}
}

func TestSingleLine_RuneLength(t *testing.T) {
	got := SingleLine("привет мир, как дела", 10)
	assert.Equal(t, 10, utf8.RuneCountInString(got))
	assert.True(t, utf8.ValidString(got))
}

func TestTruncateBytes(t *testing.T) {
	assert.Equal(t, "hello", TruncateBytes("hello", 10))
	assert.Equal(t, "hel", TruncateBytes("hello", 3))
	assert.Equal(t, "", TruncateBytes("hello", 0))

	// "é" is two bytes; cutting inside it backs off to the previous boundary
	got := TruncateBytes("aé", 2)
	assert.Equal(t, "a", got)
	assert.True(t, utf8.ValidString(TruncateBytes("日本語テキスト", 7)))
	assert.LessOrEqual(t, len(TruncateBytes("日本語テキスト", 7)), 7)
}
