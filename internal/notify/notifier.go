// Package notify delivers interceptor output to the bus and pushes alerts to ntfy.
package notify

import (
	"github.com/dgnsrekt/authtap/internal/intercept"
	"github.com/dgnsrekt/authtap/internal/types"
)

var _ intercept.Sink = (*Notifier)(nil)

// Publisher is the broadcast side of the bus.
type Publisher interface {
	Publish(types.Envelope)
}

// Notifier wraps records and candidates in envelopes and publishes them. Fire-and-forget:
// there is no acknowledgement and no retry.
type Notifier struct {
	pub Publisher
}

func NewNotifier(pub Publisher) *Notifier {
	return &Notifier{pub: pub}
}

// Traffic publishes a completed record on the interceptor-traffic channel.
func (n *Notifier) Traffic(rec types.RequestRecord) {
	n.pub.Publish(types.Envelope{Source: types.SourceTraffic, Payload: rec})
}

// Auth publishes a token candidate on the interceptor-auth channel.
func (n *Notifier) Auth(c types.TokenCandidate) {
	n.pub.Publish(types.Envelope{Source: types.SourceAuth, Payload: c})
}
