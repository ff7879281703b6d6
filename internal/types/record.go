package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// CallKind identifies which request surface produced a record.
type CallKind string

const (
	CallFetch CallKind = "fetch"
	CallXHR   CallKind = "xhr"
)

// UnreadableBody is the wire marker for a response body that could not be read or parsed.
const UnreadableBody = "[Unreadable body]"

// RequestRecord is one intercepted request/response pair. It is sealed once and never
// mutated afterwards.
type RequestRecord struct {
	ID              string   `json:"id"`
	URL             string   `json:"url"`
	Method          string   `json:"method"`
	Type            CallKind `json:"type"`
	Timestamp       int64    `json:"timestamp"`
	Duration        int64    `json:"duration"`
	Status          Status   `json:"status"`
	RequestHeaders  Headers  `json:"requestHeaders"`
	ResponseHeaders Headers  `json:"responseHeaders"`
	ResponseBody    Body     `json:"responseBody"`
	Error           string   `json:"error,omitempty"`
	TabID           string   `json:"tabId,omitempty"`

	StartedAt  time.Time `json:"-"`
	FinishedAt time.Time `json:"-"`
}

// Status is either an HTTP status code or the Error sentinel.
type Status struct {
	Code int
	Err  bool
}

// StatusCode returns a Status holding an HTTP code.
func StatusCode(code int) Status { return Status{Code: code} }

// StatusError is the sentinel used when the call itself failed.
var StatusError = Status{Err: true}

func (s Status) String() string {
	if s.Err {
		return "Error"
	}
	return fmt.Sprintf("%d", s.Code)
}

func (s Status) MarshalJSON() ([]byte, error) {
	if s.Err {
		return []byte(`"Error"`), nil
	}
	return json.Marshal(s.Code)
}

func (s *Status) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		if str != "Error" {
			return fmt.Errorf("status: unexpected string %q", str)
		}
		*s = StatusError
		return nil
	}
	var code int
	if err := json.Unmarshal(data, &code); err != nil {
		return fmt.Errorf("status: %w", err)
	}
	*s = Status{Code: code}
	return nil
}

// BodyKind tells how a captured response body is represented.
type BodyKind int

const (
	BodyNone BodyKind = iota
	BodyJSON
	BodyText
	BodyUnreadable
)

// Body is a captured response body: a JSON value, text, or the unreadable sentinel.
type Body struct {
	Kind BodyKind
	JSON json.RawMessage
	Text string
}

// JSONBody compacts raw and wraps it as a JSON body. Invalid JSON yields the unreadable sentinel.
func JSONBody(raw []byte) Body {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return UnreadableBodyValue()
	}
	return Body{Kind: BodyJSON, JSON: json.RawMessage(buf.Bytes())}
}

func TextBody(text string) Body { return Body{Kind: BodyText, Text: text} }

func UnreadableBodyValue() Body { return Body{Kind: BodyUnreadable} }

// String returns the scannable form of the body: compact JSON, the text, or the marker.
func (b Body) String() string {
	switch b.Kind {
	case BodyJSON:
		return string(b.JSON)
	case BodyText:
		return b.Text
	case BodyUnreadable:
		return UnreadableBody
	default:
		return ""
	}
}

func (b Body) MarshalJSON() ([]byte, error) {
	switch b.Kind {
	case BodyJSON:
		if len(b.JSON) == 0 {
			return []byte("null"), nil
		}
		return b.JSON, nil
	case BodyText:
		return json.Marshal(b.Text)
	case BodyUnreadable:
		return json.Marshal(UnreadableBody)
	default:
		return []byte("null"), nil
	}
}

func (b *Body) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || string(data) == "null":
		*b = Body{}
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == UnreadableBody {
			*b = UnreadableBodyValue()
		} else {
			*b = TextBody(s)
		}
	default:
		*b = JSONBody(data)
		if b.Kind == BodyUnreadable {
			return fmt.Errorf("body: invalid JSON value")
		}
	}
	return nil
}

// Pending holds an in-flight record until the call settles.
type Pending struct {
	once   sync.Once
	record RequestRecord
}

// Begin starts a record now.
func Begin(kind CallKind, method, url string, headers Headers) *Pending {
	return BeginAt(kind, method, url, headers, time.Now())
}

// BeginAt starts a record with an explicit start time.
func BeginAt(kind CallKind, method, url string, headers Headers, startedAt time.Time) *Pending {
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		method = "GET"
	}
	return &Pending{record: RequestRecord{
		ID:             uuid.NewString(),
		URL:            url,
		Method:         method,
		Type:           kind,
		Timestamp:      startedAt.UnixMilli(),
		RequestHeaders: headers,
		StartedAt:      startedAt,
	}}
}

// SetTabID tags the record with the browser tab it came from. Only valid before sealing.
func (p *Pending) SetTabID(tabID string) { p.record.TabID = tabID }

// SetRequestHeaders replaces the request headers. Only valid before sealing.
func (p *Pending) SetRequestHeaders(h Headers) { p.record.RequestHeaders = h }

// Snapshot returns a copy of the unsealed record.
func (p *Pending) Snapshot() RequestRecord { return p.record }

// Complete seals the record with a response. The second return value is false when the
// record had already been sealed; the first sealed value is returned in that case.
func (p *Pending) Complete(status int, headers Headers, body Body) (RequestRecord, bool) {
	return p.seal(func(r *RequestRecord) {
		r.Status = StatusCode(status)
		r.ResponseHeaders = headers
		r.ResponseBody = body
	})
}

// Fail seals the record with the Error sentinel.
func (p *Pending) Fail(message string) (RequestRecord, bool) {
	return p.seal(func(r *RequestRecord) {
		r.Status = StatusError
		r.Error = message
	})
}

func (p *Pending) seal(apply func(*RequestRecord)) (RequestRecord, bool) {
	sealed := false
	p.once.Do(func() {
		finished := time.Now()
		if finished.Before(p.record.StartedAt) {
			finished = p.record.StartedAt
		}
		apply(&p.record)
		p.record.FinishedAt = finished
		p.record.Duration = finished.Sub(p.record.StartedAt).Milliseconds()
		sealed = true
	})
	return p.record, sealed
}
