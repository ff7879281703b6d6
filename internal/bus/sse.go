package bus

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dgnsrekt/authtap/internal/types"
)

// parseSources reads the ?sources=a,b filter. Nil means every source.
func parseSources(r *http.Request) []types.Source {
	q := r.URL.Query().Get("sources")
	if q == "" {
		return nil
	}
	var out []types.Source
	for _, s := range strings.Split(q, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, types.Source(s))
		}
	}
	return out
}

// SSEHandler returns an http.HandlerFunc that streams envelopes as SSE. The event name is
// the envelope source and the data is the JSON payload.
func SSEHandler(broker *Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming not supported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		flusher.Flush()

		id, ch := broker.Subscribe(parseSources(r)...)
		defer broker.Unsubscribe(id)

		for {
			select {
			case <-r.Context().Done():
				return
			case env, ok := <-ch:
				if !ok {
					return
				}
				data, err := json.Marshal(env.Payload)
				if err != nil {
					slog.Debug("Failed to encode SSE payload", "source", env.Source, "error", err)
					continue
				}
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", env.Source, data)
				flusher.Flush()
			}
		}
	}
}
