package capture

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/dgnsrekt/authtap/internal/intercept"
	"github.com/dgnsrekt/authtap/internal/scanner"
	"github.com/dgnsrekt/authtap/internal/types"
)

const (
	defaultStaleAfter    = 5 * time.Minute
	defaultSweepInterval = 1 * time.Minute
)

// BodyGetter fetches the response body of a finished request.
type BodyGetter func() ([]byte, error)

// HTTPOptions tunes an HTTPCapture. Zero values select defaults.
type HTTPOptions struct {
	Scanner       scanner.Scanner
	TextLimit     int
	StaleAfter    time.Duration
	SweepInterval time.Duration
}

// HTTPCapture correlates CDP Network events into request records for the page's fetch and
// XHR traffic. Each request's state lives in its own pending entry keyed by request ID.
type HTTPCapture struct {
	sink       intercept.Sink
	scanner    scanner.Scanner
	textLimit  int
	staleAfter time.Duration

	pending   map[network.RequestID]*pendingRequest
	pendingMu sync.Mutex

	inflight sync.WaitGroup
	done     chan struct{}
	closed   sync.Once
}

type pendingRequest struct {
	record  *types.Pending
	kind    types.CallKind
	headers types.Headers
	seenAt  time.Time

	responded   bool
	status      int
	respHeaders types.Headers
	mimeType    string
}

func NewHTTPCapture(sink intercept.Sink, opts HTTPOptions) *HTTPCapture {
	if opts.Scanner.MinLength == 0 {
		opts.Scanner = scanner.Default
	}
	if opts.TextLimit == 0 {
		opts.TextLimit = intercept.DefaultTextLimit
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = defaultStaleAfter
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = defaultSweepInterval
	}
	h := &HTTPCapture{
		sink:       sink,
		scanner:    opts.Scanner,
		textLimit:  opts.TextLimit,
		staleAfter: opts.StaleAfter,
		pending:    make(map[network.RequestID]*pendingRequest),
		done:       make(chan struct{}),
	}
	go h.cleanupLoop(opts.SweepInterval)
	return h
}

// Close stops the sweep and waits for in-flight body reads.
func (h *HTTPCapture) Close() {
	h.closed.Do(func() { close(h.done) })
	h.inflight.Wait()
}

// Wait blocks until every finished request has been emitted.
func (h *HTTPCapture) Wait() {
	h.inflight.Wait()
}

// Pending returns the number of requests awaiting a completion event.
func (h *HTTPCapture) Pending() int {
	h.pendingMu.Lock()
	defer h.pendingMu.Unlock()
	return len(h.pending)
}

func callKind(t network.ResourceType) (types.CallKind, bool) {
	switch t {
	case network.ResourceTypeFetch:
		return types.CallFetch, true
	case network.ResourceTypeXHR:
		return types.CallXHR, true
	default:
		return "", false
	}
}

func (h *HTTPCapture) OnRequestWillBeSent(tabID string, ev *network.EventRequestWillBeSent) {
	if ev.Request == nil {
		return
	}
	kind, ok := callKind(ev.Type)
	if !ok {
		return
	}

	// A redirect reuses the request ID; the previous hop settles with the redirect response.
	if ev.RedirectResponse != nil {
		h.pendingMu.Lock()
		prev, found := h.pending[ev.RequestID]
		delete(h.pending, ev.RequestID)
		h.pendingMu.Unlock()
		if found {
			prev.responded = true
			prev.status = int(ev.RedirectResponse.Status)
			prev.respHeaders = intercept.NormalizeHeaders(map[string]any(ev.RedirectResponse.Headers))
			h.complete(prev, types.Body{})
		}
	}

	headers := intercept.NormalizeHeaders(map[string]any(ev.Request.Headers))
	postData := decodePostData(ev.Request)

	p := types.Begin(kind, ev.Request.Method, ev.Request.URL, headers)
	p.SetTabID(tabID)

	h.pendingMu.Lock()
	h.pending[ev.RequestID] = &pendingRequest{
		record:  p,
		kind:    kind,
		headers: headers,
		seenAt:  time.Now(),
	}
	h.pendingMu.Unlock()

	if kind == types.CallXHR {
		intercept.EmitBearer(h.sink, headers, types.ProvenanceXHRSendHeader)
		if postData != "" {
			intercept.EmitScan(h.sink, h.scanner, postData, types.ProvenanceXHRBody)
		}
		return
	}
	options := intercept.SerializeOptions(ev.Request.Method, ev.Request.URL, headers, postData)
	intercept.EmitScan(h.sink, h.scanner, options, types.ProvenanceFetchOptions)
}

func (h *HTTPCapture) OnResponseReceived(tabID string, ev *network.EventResponseReceived) {
	if ev.Response == nil {
		return
	}
	h.pendingMu.Lock()
	defer h.pendingMu.Unlock()

	pending, ok := h.pending[ev.RequestID]
	if !ok {
		return
	}
	pending.responded = true
	pending.status = int(ev.Response.Status)
	pending.respHeaders = intercept.NormalizeHeaders(map[string]any(ev.Response.Headers))
	pending.mimeType = ev.Response.MimeType
}

// OnLoadingFinished reads the body through getBody off the event goroutine, then emits.
func (h *HTTPCapture) OnLoadingFinished(tabID string, ev *network.EventLoadingFinished, getBody BodyGetter) {
	pending, ok := h.take(ev.RequestID)
	if !ok {
		return
	}

	h.inflight.Add(1)
	go func() {
		defer h.inflight.Done()

		body := types.UnreadableBodyValue()
		if getBody != nil {
			data, err := getBody()
			if err != nil {
				slog.Debug("Failed to get response body", "request_id", ev.RequestID, "error", err)
			} else {
				contentType, ok := pending.respHeaders.Get("Content-Type")
				if !ok {
					contentType = pending.mimeType
				}
				if pending.kind == types.CallXHR {
					body = intercept.CaptureText(contentType, string(data), h.textLimit)
				} else {
					body = intercept.CaptureBody(contentType, data, h.textLimit)
				}
			}
		}
		h.complete(pending, body)
	}()
}

func (h *HTTPCapture) OnLoadingFailed(tabID string, ev *network.EventLoadingFailed) {
	pending, ok := h.take(ev.RequestID)
	if !ok {
		return
	}
	msg := ev.ErrorText
	if ev.Canceled {
		msg = fmt.Sprintf("canceled: %s", ev.ErrorText)
	}
	h.fail(pending, msg)
}

func (h *HTTPCapture) take(id network.RequestID) (*pendingRequest, bool) {
	h.pendingMu.Lock()
	defer h.pendingMu.Unlock()
	pending, ok := h.pending[id]
	if ok {
		delete(h.pending, id)
	}
	return pending, ok
}

func (h *HTTPCapture) complete(pending *pendingRequest, body types.Body) {
	rec, sealed := pending.record.Complete(pending.status, pending.respHeaders, body)
	if !sealed {
		return
	}
	h.sink.Traffic(rec)

	var found []types.TokenCandidate
	if pending.kind == types.CallXHR {
		if block := pending.respHeaders.Block(); block != "" {
			found = intercept.EmitScan(h.sink, h.scanner, block, types.ProvenanceRespHeader)
		}
	} else {
		for _, hdr := range pending.respHeaders {
			found = append(found, intercept.EmitScan(h.sink, h.scanner, hdr.Value, types.ProvenanceRespHeader)...)
		}
	}
	intercept.EmitResponseBearer(h.sink, pending.respHeaders, found)
	if body.Kind != types.BodyUnreadable {
		intercept.EmitScan(h.sink, h.scanner, body.String(), types.ProvenanceRespBody)
	}
	intercept.EmitBearer(h.sink, pending.headers, bearerProvenance(pending.kind))
}

func (h *HTTPCapture) fail(pending *pendingRequest, msg string) {
	rec, sealed := pending.record.Fail(msg)
	if !sealed {
		return
	}
	h.sink.Traffic(rec)
	if pending.kind == types.CallFetch {
		intercept.EmitBearer(h.sink, pending.headers, types.ProvenanceHeader)
	}
}

func bearerProvenance(kind types.CallKind) types.Provenance {
	if kind == types.CallXHR {
		return types.ProvenanceXHRHeader
	}
	return types.ProvenanceHeader
}

func (h *HTTPCapture) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.cleanupStale(time.Now())
		case <-h.done:
			return
		}
	}
}

// cleanupStale settles requests that never saw a completion event as Error records.
func (h *HTTPCapture) cleanupStale(now time.Time) int {
	threshold := now.Add(-h.staleAfter)

	h.pendingMu.Lock()
	var stale []*pendingRequest
	for id, pending := range h.pending {
		if pending.seenAt.Before(threshold) {
			stale = append(stale, pending)
			delete(h.pending, id)
		}
	}
	h.pendingMu.Unlock()

	for _, pending := range stale {
		h.fail(pending, "no completion event received")
	}
	if len(stale) > 0 {
		slog.Debug("Settled stale requests", "count", len(stale))
	}
	return len(stale)
}

func decodePostData(req *network.Request) string {
	if !req.HasPostData || len(req.PostDataEntries) == 0 {
		return ""
	}
	var decodedParts []byte
	for _, entry := range req.PostDataEntries {
		if entry.Bytes == "" {
			continue
		}
		decoded, err := base64.StdEncoding.DecodeString(entry.Bytes)
		if err != nil {
			decodedParts = append(decodedParts, []byte(entry.Bytes)...)
		} else {
			decodedParts = append(decodedParts, decoded...)
		}
	}
	return string(decodedParts)
}
