// Package proxy is a plain-HTTP forward proxy whose upstream hop runs through the recording
// transport, so any client pointed at it is captured and scanned.
package proxy

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"time"

	"github.com/dgnsrekt/authtap/internal/intercept"
)

// DefaultMaxBodyBytes caps buffered request bodies.
const DefaultMaxBodyBytes = 10 << 20

// Proxy forwards absolute-form requests. CONNECT is refused.
type Proxy struct {
	client       *http.Client
	rp           *httputil.ReverseProxy
	maxBodyBytes int64
}

// New builds a proxy that sends every upstream hop through client.Transport, read at call
// time. The transport is normally an *intercept.Transport.
func New(client *http.Client) *Proxy {
	p := &Proxy{client: client, maxBodyBytes: DefaultMaxBodyBytes}
	p.rp = &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.Out.Host = ""
		},
		Transport: roundTripFunc(p.roundTrip),
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			slog.Warn("Proxy upstream failed", "method", r.Method, "url", r.URL.String(), "error", err)
			http.Error(w, "upstream request failed", http.StatusBadGateway)
		},
	}
	return p
}

func (p *Proxy) roundTrip(req *http.Request) (*http.Response, error) {
	rt := p.client.Transport
	if rt == nil {
		rt = http.DefaultTransport
	}
	return rt.RoundTrip(req)
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodConnect {
		w.Header().Set("Allow", "GET, HEAD, POST, PUT, PATCH, DELETE, OPTIONS")
		http.Error(w, "CONNECT tunnelling is not supported", http.StatusMethodNotAllowed)
		return
	}
	if !r.URL.IsAbs() || (r.URL.Scheme != "http" && r.URL.Scheme != "https") {
		http.Error(w, "proxy requests need an absolute http(s) URL", http.StatusBadRequest)
		return
	}

	if r.Body != nil && r.Body != http.NoBody {
		body, err := io.ReadAll(io.LimitReader(r.Body, p.maxBodyBytes+1))
		_ = r.Body.Close()
		if err != nil {
			http.Error(w, "failed to read request body", http.StatusBadRequest)
			return
		}
		if int64(len(body)) > p.maxBodyBytes {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		r.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
		r.ContentLength = int64(len(body))
	}
	p.rp.ServeHTTP(w, r)
}

// NewClient returns a client whose transport records through sink. The proxy only uses its
// Transport, so redirects go back to the proxied caller.
func NewClient(upstream http.RoundTripper, sink intercept.Sink, opts ...intercept.Option) *http.Client {
	return &http.Client{Transport: intercept.NewTransport(upstream, sink, opts...)}
}

// Server runs the proxy on its own listener.
type Server struct {
	srv *http.Server
}

// NewServer serves a proxy over client. Use NewClient for a recording client.
func NewServer(client *http.Client) *Server {
	return &Server{srv: &http.Server{
		Handler:           New(client),
		ReadHeaderTimeout: 10 * time.Second,
	}}
}

// Serve accepts on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	slog.Info("Forward proxy listening", "addr", ln.Addr().String())
	if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
