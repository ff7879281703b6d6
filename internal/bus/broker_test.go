package bus

import (
	"testing"

	"github.com/dgnsrekt/authtap/internal/types"
)

func TestBrokerFiltersBySource(t *testing.T) {
	b := NewBroker()
	_, all := b.Subscribe()
	_, authOnly := b.Subscribe(types.SourceAuth)

	b.Publish(types.Envelope{Source: types.SourceTraffic, Payload: types.RequestRecord{ID: "1"}})
	b.Publish(types.Envelope{Source: types.SourceAuth, Payload: types.TokenCandidate{Token: "t"}})

	if len(all) != 2 {
		t.Fatalf("unfiltered subscriber got %d envelopes; want 2", len(all))
	}
	if len(authOnly) != 1 {
		t.Fatalf("filtered subscriber got %d envelopes; want 1", len(authOnly))
	}
	if env := <-authOnly; env.Source != types.SourceAuth {
		t.Fatalf("filtered subscriber got %s", env.Source)
	}
}

func TestBrokerDropsForSlowSubscriber(t *testing.T) {
	b := NewBroker()
	_, ch := b.Subscribe()

	for i := 0; i < subscriberBufSize+10; i++ {
		b.Publish(types.Envelope{Source: types.SourceTraffic})
	}
	if len(ch) != subscriberBufSize {
		t.Fatalf("buffer holds %d; want %d", len(ch), subscriberBufSize)
	}
	if b.Dropped() != 10 {
		t.Fatalf("Dropped() = %d; want 10", b.Dropped())
	}
}

func TestBrokerUnsubscribeClosesChannel(t *testing.T) {
	b := NewBroker()
	id, ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("ClientCount() = %d; want 1", b.ClientCount())
	}
	b.Unsubscribe(id)
	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel")
	}
	b.Unsubscribe(id)
	b.Publish(types.Envelope{Source: types.SourceAuth})
	if b.ClientCount() != 0 {
		t.Fatalf("ClientCount() = %d; want 0", b.ClientCount())
	}
}
