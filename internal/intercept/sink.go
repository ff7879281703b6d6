// Package intercept decorates HTTP call surfaces so every request/response pair is recorded
// and scanned for bearer tokens without changing what the caller observes.
package intercept

import (
	"github.com/dgnsrekt/authtap/internal/scanner"
	"github.com/dgnsrekt/authtap/internal/types"
)

// Sink receives completed records and token candidates. Implementations must not block.
type Sink interface {
	Traffic(types.RequestRecord)
	Auth(types.TokenCandidate)
}

// DefaultTextLimit caps captured non-JSON bodies, in characters.
const DefaultTextLimit = 10000

// EmitScan forwards every candidate found in text and returns them.
func EmitScan(sink Sink, s scanner.Scanner, text string, p types.Provenance) []types.TokenCandidate {
	found := s.Scan(text, p)
	for _, c := range found {
		sink.Auth(c)
	}
	return found
}

// EmitBearer forwards the Authorization bearer credential, if any.
func EmitBearer(sink Sink, headers types.Headers, p types.Provenance) {
	if token, ok := scanner.BearerToken(headers); ok {
		sink.Auth(types.TokenCandidate{Token: token, Provenance: p})
	}
}

// EmitResponseBearer forwards a response Authorization bearer credential as resp-header,
// unless the header scan already reported the same token.
func EmitResponseBearer(sink Sink, headers types.Headers, found []types.TokenCandidate) {
	token, ok := scanner.BearerToken(headers)
	if !ok {
		return
	}
	for _, c := range found {
		if c.Token == token {
			return
		}
	}
	sink.Auth(types.TokenCandidate{Token: token, Provenance: types.ProvenanceRespHeader})
}

// SinkFuncs adapts two functions to a Sink. Nil fields are skipped.
type SinkFuncs struct {
	OnTraffic func(types.RequestRecord)
	OnAuth    func(types.TokenCandidate)
}

func (f SinkFuncs) Traffic(r types.RequestRecord) {
	if f.OnTraffic != nil {
		f.OnTraffic(r)
	}
}

func (f SinkFuncs) Auth(c types.TokenCandidate) {
	if f.OnAuth != nil {
		f.OnAuth(c)
	}
}
