package types

import (
	"encoding/json"
	"testing"
)

func TestHeadersGetIgnoresCase(t *testing.T) {
	h := Headers{{Name: "Authorization", Value: "Bearer abc"}}
	v, ok := h.Get("authorization")
	if !ok || v != "Bearer abc" {
		t.Fatalf("Get() = %q, %v; want %q, true", v, ok, "Bearer abc")
	}
	if _, ok := h.Get("x-missing"); ok {
		t.Fatal("expected missing header")
	}
}

func TestHeadersSet(t *testing.T) {
	h := Headers{{Name: "Accept", Value: "a"}}
	h = h.Set("accept", "b")
	h = h.Set("X-New", "c")
	if len(h) != 2 || h[0].Value != "b" || h[0].Name != "Accept" || h[1].Name != "X-New" {
		t.Fatalf("unexpected headers %+v", h)
	}
}

func TestHeadersJSONKeepsOrder(t *testing.T) {
	in := `{"Z-Last":"1","a-first":"2","Num":3}`
	var h Headers
	if err := json.Unmarshal([]byte(in), &h); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(h) != 3 || h[0].Name != "Z-Last" || h[1].Name != "a-first" || h[2].Value != "3" {
		t.Fatalf("unexpected headers %+v", h)
	}
	out, err := json.Marshal(h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(out) != `{"Z-Last":"1","a-first":"2","Num":"3"}` {
		t.Fatalf("unexpected JSON %s", out)
	}
}

func TestHeadersBlock(t *testing.T) {
	h := Headers{{Name: "A", Value: "1"}, {Name: "B", Value: "2"}}
	if got := h.Block(); got != "A: 1\r\nB: 2\r\n" {
		t.Fatalf("Block() = %q", got)
	}
	if got := Headers(nil).Block(); got != "" {
		t.Fatalf("Block() on nil = %q", got)
	}
}

func TestEmptyHeadersMarshalAsObject(t *testing.T) {
	out, _ := json.Marshal(Headers(nil))
	if string(out) != "{}" {
		t.Fatalf("expected {}, got %s", out)
	}
}
