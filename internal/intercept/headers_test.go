package intercept

import (
	"net/http"
	"testing"

	"github.com/dgnsrekt/authtap/internal/types"
)

func TestNormalizeHeaders(t *testing.T) {
	t.Run("descriptor", func(t *testing.T) {
		h := NormalizeHeaders(http.Header{"Accept": {"a", "b"}, "Authorization": {"Bearer x"}})
		if len(h) != 2 || h[0].Name != "Accept" || h[0].Value != "a, b" {
			t.Fatalf("unexpected headers %+v", h)
		}
	})

	t.Run("ordered_pairs_keep_order_and_combine", func(t *testing.T) {
		h := NormalizeHeaders([][2]string{{"Z", "1"}, {"A", "2"}, {"z", "3"}})
		if len(h) != 2 || h[0].Name != "Z" || h[0].Value != "1, 3" || h[1].Name != "A" {
			t.Fatalf("unexpected headers %+v", h)
		}
	})

	t.Run("plain_mapping", func(t *testing.T) {
		h := NormalizeHeaders(map[string]string{"b": "2", "a": "1"})
		if len(h) != 2 || h[0].Name != "a" || h[1].Name != "b" {
			t.Fatalf("unexpected headers %+v", h)
		}
		h = NormalizeHeaders(map[string]any{"n": 3, "s": "x", "nil": nil})
		if len(h) != 2 || h[0].Value != "3" {
			t.Fatalf("unexpected headers %+v", h)
		}
	})

	t.Run("unknown_shape", func(t *testing.T) {
		if h := NormalizeHeaders(42); h != nil {
			t.Fatalf("expected nil, got %+v", h)
		}
	})

	t.Run("typed_headers_are_copied", func(t *testing.T) {
		in := types.Headers{{Name: "A", Value: "1"}}
		out := NormalizeHeaders(in)
		out[0].Value = "changed"
		if in[0].Value != "1" {
			t.Fatal("input was mutated")
		}
	})
}

func TestParseHeaderBlock(t *testing.T) {
	h := ParseHeaderBlock("content-type: text/html\r\nx-a:  b:c \r\ngarbage\r\n\r\n")
	if len(h) != 2 {
		t.Fatalf("expected 2 headers, got %+v", h)
	}
	if v, _ := h.Get("X-A"); v != "b:c" {
		t.Fatalf("expected value with colon preserved, got %q", v)
	}
}
