// Package tracker holds the active bearer token and derives its expiry countdown.
package tracker

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Decoded is a token's payload. Signatures are never verified.
type Decoded struct {
	Claims    jwt.MapClaims
	ExpiresAt *time.Time
	IssuedAt  *time.Time
}

var segmentParser = jwt.NewParser()

// Decode splits raw into exactly three dot-separated segments and parses the middle one
// as a base64url JSON object. Any failure yields false.
func Decode(raw string) (Decoded, bool) {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return Decoded{}, false
	}
	payload, err := segmentParser.DecodeSegment(strings.TrimRight(parts[1], "="))
	if err != nil {
		return Decoded{}, false
	}

	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var claims jwt.MapClaims
	if err := dec.Decode(&claims); err != nil || claims == nil || dec.More() {
		return Decoded{}, false
	}

	d := Decoded{Claims: claims}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		t := exp.Time
		d.ExpiresAt = &t
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		t := iat.Time
		d.IssuedAt = &t
	}
	return d, true
}
