package intercept

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/dgnsrekt/authtap/internal/scanner"
	"github.com/dgnsrekt/authtap/internal/types"
)

// TransportMarker identifies an installed Transport to the integrity watcher.
const TransportMarker = "authtap/intercept.Transport"

// Transport is an http.RoundTripper decorator that records every exchange. The response
// and error returned to the caller are exactly those returned by next.
type Transport struct {
	settings
	next http.RoundTripper
	sink Sink
}

type settings struct {
	scanner   scanner.Scanner
	textLimit int
}

// Option tunes a Transport or a WrapAsync constructor.
type Option func(*settings)

// WithScanner overrides the token scanner.
func WithScanner(s scanner.Scanner) Option {
	return func(o *settings) { o.scanner = s }
}

// WithTextLimit sets the character cap for non-JSON bodies.
func WithTextLimit(n int) Option {
	return func(o *settings) { o.textLimit = n }
}

func newSettings(opts []Option) settings {
	s := settings{scanner: scanner.Default, textLimit: DefaultTextLimit}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// NewTransport wraps next. A nil next uses http.DefaultTransport.
func NewTransport(next http.RoundTripper, sink Sink, opts ...Option) *Transport {
	if next == nil {
		next = http.DefaultTransport
	}
	return &Transport{settings: newSettings(opts), next: next, sink: sink}
}

func (t *Transport) Marker() string { return TransportMarker }

// Unwrap returns the wrapped RoundTripper.
func (t *Transport) Unwrap() http.RoundTripper { return t.next }

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	headers := NormalizeHeaders(req.Header)
	pending := types.Begin(types.CallFetch, req.Method, req.URL.String(), headers)

	EmitScan(t.sink, t.scanner, serializeOptions(req, headers), types.ProvenanceFetchOptions)

	resp, err := t.next.RoundTrip(req)
	if err != nil {
		rec, _ := pending.Fail(err.Error())
		t.sink.Traffic(rec)
		EmitBearer(t.sink, headers, types.ProvenanceHeader)
		return resp, err
	}

	respHeaders := NormalizeHeaders(resp.Header)
	body := types.Body{}
	if resp.Body != nil {
		data, readErr := io.ReadAll(resp.Body)
		closeErr := resp.Body.Close()
		resp.Body = &replayBody{r: bytes.NewReader(data), readErr: readErr, closeErr: closeErr}
		if readErr != nil {
			body = types.UnreadableBodyValue()
		} else {
			body = CaptureBody(resp.Header.Get("Content-Type"), data, t.textLimit)
		}
	}

	rec, _ := pending.Complete(resp.StatusCode, respHeaders, body)
	t.sink.Traffic(rec)
	var found []types.TokenCandidate
	for _, h := range respHeaders {
		found = append(found, EmitScan(t.sink, t.scanner, h.Value, types.ProvenanceRespHeader)...)
	}
	EmitResponseBearer(t.sink, respHeaders, found)
	if body.Kind != types.BodyUnreadable {
		EmitScan(t.sink, t.scanner, body.String(), types.ProvenanceRespBody)
	}
	EmitBearer(t.sink, headers, types.ProvenanceHeader)
	return resp, nil
}

// serializeOptions renders the request the way a caller's options object would look.
// Only replayable bodies are included; streaming bodies are never consumed here.
func serializeOptions(req *http.Request, headers types.Headers) string {
	var body string
	if req.GetBody != nil && req.Body != nil && req.Body != http.NoBody {
		if rc, err := req.GetBody(); err == nil {
			data, _ := io.ReadAll(io.LimitReader(rc, 1<<20))
			rc.Close()
			body = string(data)
		}
	}
	return SerializeOptions(req.Method, req.URL.String(), headers, body)
}

// SerializeOptions renders request options as JSON for scanning.
func SerializeOptions(method, url string, headers types.Headers, body string) string {
	opts := struct {
		Method  string        `json:"method"`
		URL     string        `json:"url"`
		Headers types.Headers `json:"headers"`
		Body    string        `json:"body,omitempty"`
	}{Method: method, URL: url, Headers: headers, Body: body}
	b, err := json.Marshal(opts)
	if err != nil {
		return ""
	}
	return string(b)
}

// replayBody hands back the bytes read from the original body, then the original read
// error at the same offset, and the original Close result.
type replayBody struct {
	r        *bytes.Reader
	readErr  error
	closeErr error
}

func (b *replayBody) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	if err == io.EOF && b.readErr != nil {
		return n, b.readErr
	}
	return n, err
}

func (b *replayBody) Close() error { return b.closeErr }
