package bus

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dgnsrekt/authtap/internal/types"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

func waitForClients(t *testing.T, b *Broker, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for b.ClientCount() < n {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d subscribers", n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSSEHandlerStreamsFilteredEvents(t *testing.T) {
	b := NewBroker()
	srv := httptest.NewServer(SSEHandler(b))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "?sources=interceptor-auth")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	waitForClients(t, b, 1)
	b.Publish(types.Envelope{Source: types.SourceTraffic, Payload: types.RequestRecord{ID: "skip"}})
	b.Publish(types.Envelope{Source: types.SourceAuth, Payload: types.TokenCandidate{Token: "abc", Provenance: types.ProvenanceCookie}})

	reader := bufio.NewReader(resp.Body)
	var lines []string
	for len(lines) < 2 {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read error = %v", err)
		}
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	if lines[0] != "event: interceptor-auth" {
		t.Fatalf("event line = %q", lines[0])
	}
	if lines[1] != `data: {"token":"abc","type":"cookie"}` {
		t.Fatalf("data line = %q", lines[1])
	}
}

func TestWSHandlerStreamsEnvelopes(t *testing.T) {
	b := NewBroker()
	srv := httptest.NewServer(WSHandler(b))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, _, err := ws.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"?sources=interceptor-traffic")
	if err != nil {
		t.Fatalf("Dial error = %v", err)
	}
	defer conn.Close()

	waitForClients(t, b, 1)
	b.Publish(types.Envelope{Source: types.SourceAuth, Payload: types.TokenCandidate{Token: "skip"}})
	b.Publish(types.Envelope{Source: types.SourceTraffic, Payload: types.RequestRecord{ID: "r1", Method: "GET"}})

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	data, err := wsutil.ReadServerText(conn)
	if err != nil {
		t.Fatalf("read error = %v", err)
	}
	var got struct {
		Source  string `json:"source"`
		Payload struct {
			ID string `json:"id"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal error = %v", err)
	}
	if got.Source != "interceptor-traffic" || got.Payload.ID != "r1" {
		t.Fatalf("unexpected envelope %s", data)
	}
}

func TestWSHandlerAnswersPingWhileStreaming(t *testing.T) {
	b := NewBroker()
	srv := httptest.NewServer(WSHandler(b))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, _, err := ws.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"))
	if err != nil {
		t.Fatalf("Dial error = %v", err)
	}
	defer conn.Close()
	waitForClients(t, b, 1)

	const published = 50
	go func() {
		for i := 0; i < published; i++ {
			b.Publish(types.Envelope{Source: types.SourceTraffic, Payload: types.RequestRecord{ID: "r", Method: "GET"}})
		}
	}()
	if err := wsutil.WriteClientMessage(conn, ws.OpPing, []byte("hi")); err != nil {
		t.Fatalf("ping write error = %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	texts, pongs := 0, 0
	for texts < published || pongs < 1 {
		msgs, err := wsutil.ReadServerMessage(conn, nil)
		if err != nil {
			t.Fatalf("read error after %d texts and %d pongs = %v", texts, pongs, err)
		}
		for _, m := range msgs {
			switch m.OpCode {
			case ws.OpPong:
				if string(m.Payload) != "hi" {
					t.Fatalf("pong payload = %q; want hi", m.Payload)
				}
				pongs++
			case ws.OpText:
				if !json.Valid(m.Payload) {
					t.Fatalf("text frame is not JSON: %q", m.Payload)
				}
				texts++
			}
		}
	}
	if pongs != 1 {
		t.Fatalf("pongs = %d; want 1", pongs)
	}
}
