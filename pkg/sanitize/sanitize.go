package sanitize

import (
	"regexp"
	"strings"
	"unicode"
)

var unsafeFilename = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// Filename maps name to a single safe path element. Path separators, dots
// and anything outside [a-zA-Z0-9_-] become underscores; an empty name
// yields fallback.
func Filename(name, fallback string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return fallback
	}
	return unsafeFilename.ReplaceAllString(name, "_")
}

// MessageContent trims a chat message and strips control characters other
// than newline and tab
func MessageContent(input string) string {
	var result strings.Builder
	result.Grow(len(input))
	for _, r := range input {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		result.WriteRune(r)
	}
	return strings.TrimSpace(result.String())
}
