package types

// Source tags an envelope with the channel it was published on.
type Source string

const (
	SourceTraffic     Source = "interceptor-traffic"
	SourceAuth        Source = "interceptor-auth"
	SourceTokenStatus Source = "tracker-status"
)

// Envelope is the broadcast message shape. Receivers filter on Source and ignore the rest.
type Envelope struct {
	Source  Source `json:"source"`
	Payload any    `json:"payload"`
}

// Record returns the payload of a traffic envelope.
func (e Envelope) Record() (RequestRecord, bool) {
	if e.Source != SourceTraffic {
		return RequestRecord{}, false
	}
	switch p := e.Payload.(type) {
	case RequestRecord:
		return p, true
	case *RequestRecord:
		if p != nil {
			return *p, true
		}
	}
	return RequestRecord{}, false
}

// Candidate returns the payload of an auth envelope.
func (e Envelope) Candidate() (TokenCandidate, bool) {
	if e.Source != SourceAuth {
		return TokenCandidate{}, false
	}
	switch p := e.Payload.(type) {
	case TokenCandidate:
		return p, true
	case *TokenCandidate:
		if p != nil {
			return *p, true
		}
	}
	return TokenCandidate{}, false
}
