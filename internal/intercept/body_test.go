package intercept

import (
	"testing"

	"github.com/dgnsrekt/authtap/internal/types"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		name      string
		in        string
		limit     int
		want      string
		truncated bool
	}{
		{"within_limit", "hello", 10, "hello", false},
		{"cut", "hello world", 5, "hello", true},
		{"counts_characters_not_bytes", "héllo", 2, "hé", true},
		{"disabled", "hello", 0, "hello", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, truncated := Truncate(tt.in, tt.limit)
			if got != tt.want || truncated != tt.truncated {
				t.Fatalf("Truncate() = %q, %v; want %q, %v", got, truncated, tt.want, tt.truncated)
			}
		})
	}
}

func TestCaptureBody(t *testing.T) {
	if b := CaptureBody("application/json", []byte(`[1]`), 10); b.Kind != types.BodyJSON {
		t.Fatalf("expected JSON, got %+v", b)
	}
	if b := CaptureBody("application/json", []byte(`nope`), 10); b.Kind != types.BodyUnreadable {
		t.Fatalf("expected unreadable, got %+v", b)
	}
	if b := CaptureBody("text/html", []byte(`<p>hi</p>`), 3); b.Kind != types.BodyText || b.Text != "<p>" {
		t.Fatalf("expected truncated text, got %+v", b)
	}
}

func TestCaptureText(t *testing.T) {
	if b := CaptureText("Application/JSON", `{"a":1}`, 10); b.Kind != types.BodyJSON {
		t.Fatalf("expected JSON, got %+v", b)
	}
	if b := CaptureText("application/json", `{bad`, 2); b.Kind != types.BodyText || b.Text != `{bad` {
		t.Fatalf("expected raw text fallback, got %+v", b)
	}
}
