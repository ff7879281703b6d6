package intercept

import (
	"errors"
	"strings"
	"sync"

	"github.com/dgnsrekt/authtap/internal/types"
)

// Ready states of an AsyncRequest.
const (
	StateUnsent = iota
	StateOpened
	StateHeadersReceived
	StateLoading
	StateDone
)

// AsyncRequest is an event-driven HTTP call: configure, Send, then one of the load or
// error listeners fires when it settles. Abort fires the error listeners.
type AsyncRequest interface {
	Open(method, url string) error
	SetRequestHeader(name, value string)
	// Send dispatches with an optional body (nil, string, []byte or io.Reader).
	Send(body any) error
	Abort()
	OnLoad(func())
	OnError(func(error))
	Status() int
	// ResponseHeaders returns the raw CRLF-separated response header block.
	ResponseHeaders() string
	ResponseText() string
	ReadyState() int
}

// AsyncConstructor creates AsyncRequest instances.
type AsyncConstructor func() AsyncRequest

// Unwrapper exposes the undecorated instance.
type Unwrapper interface {
	Unwrap() AsyncRequest
}

// AsyncMarker identifies constructors produced by WrapAsync.
const AsyncMarker = "authtap/intercept.WrapAsync"

// ErrNetwork is reported when an async request fails without a specific error.
var ErrNetwork = errors.New("network error")

// WrapAsync returns a constructor whose instances record and scan every Send. The returned
// instances satisfy AsyncRequest and delegate every method to the original instance.
func WrapAsync(ctor AsyncConstructor, sink Sink, opts ...Option) AsyncConstructor {
	cfg := newSettings(opts)
	return func() AsyncRequest {
		inner := ctor()
		w := &asyncRecorder{
			AsyncRequest: inner,
			settings:     cfg,
			sink:         sink,
		}
		inner.OnLoad(w.handleLoad)
		inner.OnError(w.handleError)
		return w
	}
}

// Unwrap returns the original instance behind a wrapped request, or r itself.
func Unwrap(r AsyncRequest) AsyncRequest {
	if u, ok := r.(Unwrapper); ok {
		return u.Unwrap()
	}
	return r
}

type asyncRecorder struct {
	AsyncRequest

	settings
	sink Sink

	mu      sync.Mutex
	method  string
	url     string
	headers types.Headers
	pending *types.Pending
}

func (w *asyncRecorder) Unwrap() AsyncRequest { return w.AsyncRequest }

func (w *asyncRecorder) Marker() string { return AsyncMarker }

func (w *asyncRecorder) Open(method, url string) error {
	w.mu.Lock()
	w.method = method
	w.url = url
	w.headers = nil
	w.mu.Unlock()
	return w.AsyncRequest.Open(method, url)
}

func (w *asyncRecorder) SetRequestHeader(name, value string) {
	w.mu.Lock()
	w.headers = appendCombined(w.headers, name, value)
	w.mu.Unlock()
	w.AsyncRequest.SetRequestHeader(name, value)
}

// Send installs the new pending record before dispatching, since the inner instance may
// settle before Send returns. A rejected Send puts the in-flight record back and reports
// nothing: no call was made.
func (w *asyncRecorder) Send(body any) error {
	w.mu.Lock()
	headers := NormalizeHeaders(w.headers)
	pending := types.Begin(types.CallXHR, w.method, w.url, headers)
	prev := w.pending
	w.pending = pending
	w.mu.Unlock()

	if err := w.AsyncRequest.Send(body); err != nil {
		w.mu.Lock()
		if w.pending == pending {
			w.pending = prev
		}
		w.mu.Unlock()
		return err
	}

	EmitBearer(w.sink, headers, types.ProvenanceXHRSendHeader)
	if s, ok := body.(string); ok && s != "" {
		EmitScan(w.sink, w.scanner, s, types.ProvenanceXHRBody)
	}
	return nil
}

// take claims the current pending record.
func (w *asyncRecorder) take() *types.Pending {
	w.mu.Lock()
	defer w.mu.Unlock()
	p := w.pending
	w.pending = nil
	return p
}

func (w *asyncRecorder) handleLoad() {
	p := w.take()
	if p == nil {
		return
	}
	block := w.ResponseHeaders()
	respHeaders := ParseHeaderBlock(block)
	contentType, _ := respHeaders.Get("Content-Type")
	body := CaptureText(contentType, w.ResponseText(), w.textLimit)

	rec, sealed := p.Complete(w.Status(), respHeaders, body)
	if !sealed {
		return
	}
	w.sink.Traffic(rec)
	var found []types.TokenCandidate
	if strings.TrimSpace(block) != "" {
		found = EmitScan(w.sink, w.scanner, block, types.ProvenanceRespHeader)
	}
	EmitResponseBearer(w.sink, respHeaders, found)
	EmitScan(w.sink, w.scanner, body.String(), types.ProvenanceRespBody)
	EmitBearer(w.sink, rec.RequestHeaders, types.ProvenanceXHRHeader)
}

func (w *asyncRecorder) handleError(err error) {
	p := w.take()
	if p == nil {
		return
	}
	if err == nil {
		err = ErrNetwork
	}
	if rec, sealed := p.Fail(err.Error()); sealed {
		w.sink.Traffic(rec)
	}
}
