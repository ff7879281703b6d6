// Package scanner finds bearer-token-shaped strings in arbitrary text.
package scanner

import (
	"regexp"
	"strings"

	"github.com/dgnsrekt/authtap/internal/types"
)

// DefaultMinLength is the floor below which matches are discarded. A match must be longer than this.
const DefaultMinLength = 50

var tokenPattern = regexp.MustCompile(`[A-Za-z0-9\-_]+\.[A-Za-z0-9\-_]+\.[A-Za-z0-9\-_]+`)

var bearerPrefix = regexp.MustCompile(`(?i)^bearer\s+(.+)`)

// Scanner extracts candidates of three dot-separated URL-safe segments.
type Scanner struct {
	MinLength int
}

// Default uses DefaultMinLength.
var Default = Scanner{MinLength: DefaultMinLength}

// Scan emits every match in text longer than MinLength, tagged with provenance.
// Duplicates are kept; there is no validation beyond the shape.
func (s Scanner) Scan(text string, provenance types.Provenance) []types.TokenCandidate {
	if text == "" {
		return nil
	}
	var out []types.TokenCandidate
	for _, m := range tokenPattern.FindAllString(text, -1) {
		if len(m) > s.MinLength {
			out = append(out, types.TokenCandidate{Token: m, Provenance: provenance})
		}
	}
	return out
}

// Scan runs the default scanner.
func Scan(text string, provenance types.Provenance) []types.TokenCandidate {
	return Default.Scan(text, provenance)
}

// BearerToken returns the credential from an "Authorization: Bearer ..." header.
func BearerToken(headers types.Headers) (string, bool) {
	v, ok := headers.Get("Authorization")
	if !ok {
		return "", false
	}
	return ParseBearer(v)
}

// ParseBearer strips a case-insensitive "Bearer " prefix.
func ParseBearer(value string) (string, bool) {
	m := bearerPrefix.FindStringSubmatch(strings.TrimSpace(value))
	if m == nil {
		return "", false
	}
	token := strings.TrimSpace(m[1])
	return token, token != ""
}
