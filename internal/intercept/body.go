package intercept

import (
	"encoding/json"
	"strings"

	"github.com/dgnsrekt/authtap/internal/types"
)

// IsJSON reports whether a content type names application/json.
func IsJSON(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "application/json")
}

// Truncate cuts s to at most limit characters. limit <= 0 disables the cap.
func Truncate(s string, limit int) (string, bool) {
	if limit <= 0 || len(s) <= limit {
		return s, false
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i], true
		}
		n++
	}
	return s, false
}

// CaptureBody decodes a fully read response body. JSON content that does not parse becomes
// the unreadable sentinel; everything else is truncated text.
func CaptureBody(contentType string, data []byte, limit int) types.Body {
	if IsJSON(contentType) {
		if !json.Valid(data) {
			return types.UnreadableBodyValue()
		}
		return types.JSONBody(data)
	}
	text, _ := Truncate(string(data), limit)
	return types.TextBody(text)
}

// CaptureText is the event-driven variant: a JSON parse failure falls back to the raw text.
func CaptureText(contentType, text string, limit int) types.Body {
	if IsJSON(contentType) {
		if json.Valid([]byte(text)) {
			return types.JSONBody([]byte(text))
		}
		return types.TextBody(text)
	}
	truncated, _ := Truncate(text, limit)
	return types.TextBody(truncated)
}
