package sanitize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"remote-42", "remote-42"},
		{"../etc/passwd", "___etc_passwd"},
		{"a b.c", "a_b_c"},
		{"  ", "fallback"},
		{"", "fallback"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Filename(tt.in, "fallback"), tt.in)
	}
}

func TestMessageContent(t *testing.T) {
	assert.Equal(t, "hello\nworld", MessageContent("  hel\x00lo\nworld\x07 "))
	assert.Equal(t, "a\tb", MessageContent("a\tb"))
	assert.Equal(t, "", MessageContent("\x1b\x1b"))
}
