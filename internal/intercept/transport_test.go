package intercept

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dgnsrekt/authtap/internal/types"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

type failingReader struct {
	data []byte
	err  error
	read bool
}

func (r *failingReader) Read(p []byte) (int, error) {
	if !r.read {
		r.read = true
		return copy(p, r.data), nil
	}
	return 0, r.err
}

type closeErrBody struct {
	io.Reader
	err error
}

func (b closeErrBody) Close() error { return b.err }

func TestTransportRecordsJSONResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Authorization", "Bearer "+testToken)
		_, _ = w.Write([]byte(`{"email":"a@b.com"}`))
	}))
	defer srv.Close()

	sink := &recordingSink{}
	client := &http.Client{Transport: NewTransport(nil, sink)}

	resp, err := client.Get(srv.URL + "/me")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != `{"email":"a@b.com"}` {
		t.Fatalf("caller saw body %q", body)
	}

	records, _ := sink.snapshot()
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	rec := records[0]
	if rec.URL != srv.URL+"/me" || rec.Method != "GET" || rec.Type != types.CallFetch {
		t.Fatalf("unexpected record %+v", rec)
	}
	if rec.Status != types.StatusCode(200) {
		t.Fatalf("expected status 200, got %v", rec.Status)
	}
	if rec.ResponseBody.Kind != types.BodyJSON || rec.ResponseBody.String() != `{"email":"a@b.com"}` {
		t.Fatalf("unexpected body %+v", rec.ResponseBody)
	}
	if rec.FinishedAt.Before(rec.StartedAt) {
		t.Fatal("finishedAt before startedAt")
	}

	got := sink.byProvenance(types.ProvenanceRespHeader)
	if len(got) != 1 || got[0] != testToken {
		t.Fatalf("resp-header candidates = %v; want [%s]", got, testToken)
	}
}

func TestTransportTextIsTruncated(t *testing.T) {
	long := strings.Repeat("x", 20)
	sink := &recordingSink{}
	tr := NewTransport(roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: 200,
			Header:     http.Header{"Content-Type": {"text/plain"}},
			Body:       io.NopCloser(strings.NewReader(long)),
		}, nil
	}), sink, WithTextLimit(5))

	req := httptest.NewRequest(http.MethodGet, "http://example.com/", nil)
	resp, err := tr.RoundTrip(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != long {
		t.Fatalf("caller body was modified: %q", body)
	}
	records, _ := sink.snapshot()
	if records[0].ResponseBody.Text != "xxxxx" {
		t.Fatalf("expected truncated text, got %q", records[0].ResponseBody.Text)
	}
}

func TestTransportNetworkFailure(t *testing.T) {
	boom := errors.New("dial tcp: connection refused")
	sink := &recordingSink{}
	tr := NewTransport(roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return nil, boom
	}), sink)

	req := httptest.NewRequest(http.MethodPost, "http://example.com/login", nil)
	req.Header.Set("Authorization", "Bearer "+testToken)
	resp, err := tr.RoundTrip(req)
	if err != boom {
		t.Fatalf("RoundTrip() error = %v; want the original error", err)
	}
	if resp != nil {
		t.Fatalf("expected nil response, got %+v", resp)
	}

	records, _ := sink.snapshot()
	if len(records) != 1 || !records[0].Status.Err || records[0].Error != boom.Error() {
		t.Fatalf("expected one error record, got %+v", records)
	}
	if got := sink.byProvenance(types.ProvenanceHeader); len(got) != 1 || got[0] != testToken {
		t.Fatalf("header candidates = %v", got)
	}
}

func TestTransportReplaysReadAndCloseErrors(t *testing.T) {
	readErr := errors.New("unexpected EOF")
	closeErr := errors.New("close failed")
	sink := &recordingSink{}
	tr := NewTransport(roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: 200,
			Header:     http.Header{"Content-Type": {"application/json"}},
			Body:       closeErrBody{Reader: &failingReader{data: []byte(`{"par`), err: readErr}, err: closeErr},
		}, nil
	}), sink)

	resp, err := tr.RoundTrip(httptest.NewRequest(http.MethodGet, "http://example.com/", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, gotErr := io.ReadAll(resp.Body)
	if string(data) != `{"par` {
		t.Fatalf("caller saw %q", data)
	}
	if gotErr != readErr {
		t.Fatalf("read error = %v; want %v", gotErr, readErr)
	}
	if err := resp.Body.Close(); err != closeErr {
		t.Fatalf("Close() = %v; want %v", err, closeErr)
	}

	records, _ := sink.snapshot()
	if records[0].ResponseBody.Kind != types.BodyUnreadable {
		t.Fatalf("expected unreadable body, got %+v", records[0].ResponseBody)
	}
}

func TestTransportUnparseableJSONIsUnreadable(t *testing.T) {
	sink := &recordingSink{}
	tr := NewTransport(roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: 500,
			Header:     http.Header{"Content-Type": {"application/json; charset=utf-8"}},
			Body:       io.NopCloser(strings.NewReader("<html>oops</html>")),
		}, nil
	}), sink)

	if _, err := tr.RoundTrip(httptest.NewRequest(http.MethodGet, "http://example.com/", nil)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	records, _ := sink.snapshot()
	if records[0].ResponseBody.Kind != types.BodyUnreadable || records[0].Status != types.StatusCode(500) {
		t.Fatalf("unexpected record %+v", records[0])
	}
}

func TestTransportScansRequestOptions(t *testing.T) {
	var seenBody string
	sink := &recordingSink{}
	tr := NewTransport(roundTripFunc(func(r *http.Request) (*http.Response, error) {
		b, _ := io.ReadAll(r.Body)
		seenBody = string(b)
		return &http.Response{StatusCode: 204, Header: http.Header{}, Body: http.NoBody}, nil
	}), sink)

	payload := `{"refresh_token":"` + testToken + `"}`
	req, _ := http.NewRequest(http.MethodPost, "http://example.com/token", bytes.NewBufferString(payload))
	if _, err := tr.RoundTrip(req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seenBody != payload {
		t.Fatalf("next saw body %q; want %q", seenBody, payload)
	}
	if got := sink.byProvenance(types.ProvenanceFetchOptions); len(got) != 1 || got[0] != testToken {
		t.Fatalf("fetch-options candidates = %v", got)
	}
}

func TestTransportMarkerAndUnwrap(t *testing.T) {
	base := roundTripFunc(func(r *http.Request) (*http.Response, error) { return nil, nil })
	tr := NewTransport(base, &recordingSink{})
	if tr.Marker() != TransportMarker {
		t.Fatalf("Marker() = %q", tr.Marker())
	}
	if tr.Unwrap() == nil {
		t.Fatal("Unwrap() returned nil")
	}
	if NewTransport(nil, &recordingSink{}).Unwrap() != http.DefaultTransport {
		t.Fatal("expected default transport when next is nil")
	}
}

func TestTransportResponseAuthorizationScenario(t *testing.T) {
	const short = "eyJhbGciOiJIUzI1NiJ9.eyJleHAiOjE3MDAwMDAwMDB9.sig"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Authorization", "Bearer "+short)
		_, _ = w.Write([]byte(`{"email":"a@b.com"}`))
	}))
	defer srv.Close()

	sink := &recordingSink{}
	client := &http.Client{Transport: NewTransport(nil, sink)}
	resp, err := client.Get(srv.URL + "/me")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, _ = io.ReadAll(resp.Body)
	resp.Body.Close()

	records, _ := sink.snapshot()
	if len(records) != 1 || records[0].Status != types.StatusCode(200) || records[0].ResponseBody.String() != `{"email":"a@b.com"}` {
		t.Fatalf("records = %+v", records)
	}
	got := sink.byProvenance(types.ProvenanceRespHeader)
	if len(got) != 1 || got[0] != short {
		t.Fatalf("resp-header candidates = %v; want [%s]", got, short)
	}
}
