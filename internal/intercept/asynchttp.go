package intercept

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
)

// ErrInvalidState is returned when Send is called before Open or while a call is in flight.
var ErrInvalidState = errors.New("async request: invalid state")

// NewHTTPAsync returns a constructor of AsyncRequests backed by client. Listeners run on
// the goroutine that completes the call.
func NewHTTPAsync(client *http.Client) AsyncConstructor {
	if client == nil {
		client = http.DefaultClient
	}
	return func() AsyncRequest {
		return &httpAsync{client: client}
	}
}

type httpAsync struct {
	client *http.Client

	mu          sync.Mutex
	method      string
	url         string
	header      http.Header
	state       int
	sending     bool
	status      int
	respHeaders string
	text        string
	cancel      context.CancelFunc
	onLoad      []func()
	onError     []func(error)
}

func (a *httpAsync) Open(method, url string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sending {
		return ErrInvalidState
	}
	a.method = method
	a.url = url
	a.header = make(http.Header)
	a.state = StateOpened
	a.status = 0
	a.respHeaders = ""
	a.text = ""
	return nil
}

func (a *httpAsync) SetRequestHeader(name, value string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != StateOpened || a.sending {
		return
	}
	a.header.Add(name, value)
}

func (a *httpAsync) Send(body any) error {
	a.mu.Lock()
	if a.state != StateOpened || a.sending {
		a.mu.Unlock()
		return ErrInvalidState
	}
	reader, err := bodyReader(body)
	if err != nil {
		a.mu.Unlock()
		return err
	}
	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, a.method, a.url, reader)
	if err != nil {
		a.mu.Unlock()
		cancel()
		return fmt.Errorf("build request: %w", err)
	}
	req.Header = a.header.Clone()
	a.sending = true
	a.cancel = cancel
	a.mu.Unlock()

	go a.dispatch(req, cancel)
	return nil
}

func (a *httpAsync) dispatch(req *http.Request, cancel context.CancelFunc) {
	defer cancel()
	resp, err := a.client.Do(req)
	if err != nil {
		a.fail(err)
		return
	}
	defer resp.Body.Close()

	a.mu.Lock()
	a.state = StateHeadersReceived
	a.mu.Unlock()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		a.fail(err)
		return
	}
	var block strings.Builder
	_ = resp.Header.Write(&block)

	a.mu.Lock()
	a.status = resp.StatusCode
	a.respHeaders = block.String()
	a.text = string(data)
	a.state = StateDone
	a.sending = false
	listeners := append([]func(){}, a.onLoad...)
	a.mu.Unlock()

	for _, fn := range listeners {
		fn()
	}
}

func (a *httpAsync) fail(err error) {
	a.mu.Lock()
	a.state = StateDone
	a.sending = false
	a.status = 0
	listeners := append([]func(error){}, a.onError...)
	a.mu.Unlock()

	for _, fn := range listeners {
		fn(err)
	}
}

func (a *httpAsync) Abort() {
	a.mu.Lock()
	cancel := a.cancel
	sending := a.sending
	a.mu.Unlock()
	if sending && cancel != nil {
		cancel()
	}
}

func (a *httpAsync) OnLoad(fn func()) {
	a.mu.Lock()
	a.onLoad = append(a.onLoad, fn)
	a.mu.Unlock()
}

func (a *httpAsync) OnError(fn func(error)) {
	a.mu.Lock()
	a.onError = append(a.onError, fn)
	a.mu.Unlock()
}

func (a *httpAsync) Status() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

func (a *httpAsync) ResponseHeaders() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.respHeaders
}

func (a *httpAsync) ResponseText() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.text
}

func (a *httpAsync) ReadyState() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func bodyReader(body any) (io.Reader, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case string:
		return strings.NewReader(b), nil
	case []byte:
		return bytes.NewReader(b), nil
	case io.Reader:
		return b, nil
	default:
		return nil, fmt.Errorf("async request: unsupported body type %T", body)
	}
}
