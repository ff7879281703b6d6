package bus

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// WSHandler streams envelopes as JSON text frames over a WebSocket. The ?sources= filter
// works as for SSE. Client frames other than control frames are discarded.
func WSHandler(broker *Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sources := parseSources(r)

		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			slog.Debug("WebSocket upgrade failed", "error", err)
			return
		}
		defer conn.Close()

		id, ch := broker.Subscribe(sources...)
		defer broker.Unsubscribe(id)

		out := &frameWriter{conn: conn}
		closed := make(chan struct{})
		go func() {
			defer close(closed)
			readClientFrames(conn, out)
		}()

		for {
			select {
			case <-closed:
				return
			case <-r.Context().Done():
				return
			case env, ok := <-ch:
				if !ok {
					return
				}
				data, err := json.Marshal(env)
				if err != nil {
					slog.Debug("Failed to encode WebSocket envelope", "source", env.Source, "error", err)
					continue
				}
				if err := out.write(func(w io.Writer) error { return wsutil.WriteServerText(w, data) }); err != nil {
					slog.Debug("WebSocket write failed", "error", err)
					return
				}
			}
		}
	}
}

// frameWriter serializes whole frames onto the connection. A frame is built in a buffer
// and written with a single Write under the lock, so pong and close replies from the
// reader never interleave with data frames.
type frameWriter struct {
	mu   sync.Mutex
	conn net.Conn
}

func (f *frameWriter) write(build func(io.Writer) error) error {
	var buf bytes.Buffer
	if err := build(&buf); err != nil {
		return err
	}
	if buf.Len() == 0 {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	_, err := f.conn.Write(buf.Bytes())
	return err
}

// controlHandler answers ping and close frames through out.
func controlHandler(out *frameWriter) wsutil.FrameHandlerFunc {
	return func(h ws.Header, r io.Reader) error {
		var handlerErr error
		err := out.write(func(w io.Writer) error {
			handlerErr = wsutil.ControlFrameHandler(w, ws.StateServerSide)(h, r)
			return nil
		})
		if handlerErr != nil {
			return handlerErr
		}
		return err
	}
}

// readClientFrames consumes client frames until the connection closes or errors.
func readClientFrames(conn net.Conn, out *frameWriter) {
	onControl := controlHandler(out)
	rd := &wsutil.Reader{
		Source:         conn,
		State:          ws.StateServerSide,
		CheckUTF8:      true,
		OnIntermediate: onControl,
	}
	for {
		hdr, err := rd.NextFrame()
		if err != nil {
			return
		}
		if hdr.OpCode.IsControl() {
			if err := onControl(hdr, rd); err != nil {
				return
			}
			continue
		}
		if err := rd.Discard(); err != nil {
			return
		}
	}
}
