package api

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestRequestLogger(t *testing.T) {
	t.Run("query_and_status", func(t *testing.T) {
		buf := captureLogs(t)
		h := requestLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		}))
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/network-logs?type=xhr", nil))

		out := buf.String()
		for _, want := range []string{`msg="API request"`, "level=INFO", "status=418", `query="type=xhr"`, "path=/api/v1/network-logs"} {
			if !strings.Contains(out, want) {
				t.Fatalf("log line %q missing %q", out, want)
			}
		}
	})

	t.Run("event_feed", func(t *testing.T) {
		buf := captureLogs(t)
		h := requestLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/events", nil))
		if !strings.Contains(buf.String(), `msg="Event feed closed"`) {
			t.Fatalf("log line = %q", buf.String())
		}
	})
}

func TestRequestLevel(t *testing.T) {
	cases := []struct {
		path   string
		status int
		want   slog.Level
	}{
		{"/health", 200, slog.LevelDebug},
		{"/api/v1/auth-token", 404, slog.LevelInfo},
		{"/api/v1/tabs", 502, slog.LevelError},
	}
	for _, tc := range cases {
		if got := requestLevel(tc.path, tc.status); got != tc.want {
			t.Fatalf("requestLevel(%q, %d) = %v; want %v", tc.path, tc.status, got, tc.want)
		}
	}
}
