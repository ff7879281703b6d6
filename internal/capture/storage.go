package capture

import (
	"context"
	"log/slog"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/dgnsrekt/authtap/internal/intercept"
	"github.com/dgnsrekt/authtap/internal/scanner"
	"github.com/dgnsrekt/authtap/internal/types"
)

// DefaultCookieInterval is the cookie re-scan period. Cookie changes raise no CDP event.
const DefaultCookieInterval = 5 * time.Second

// StorageItem is one DOM storage key/value pair.
type StorageItem struct {
	Key   string
	Value string
}

// CookieSource lists the cookies visible to the watched page.
type CookieSource interface {
	Cookies(ctx context.Context) ([]*network.Cookie, error)
}

// CookieSourceFunc adapts a function to a CookieSource.
type CookieSourceFunc func(ctx context.Context) ([]*network.Cookie, error)

func (f CookieSourceFunc) Cookies(ctx context.Context) ([]*network.Cookie, error) { return f(ctx) }

// StorageWatcher scans storage writes and cookies for token material. It only reads.
type StorageWatcher struct {
	sink     intercept.Sink
	scanner  scanner.Scanner
	interval time.Duration
}

func NewStorageWatcher(sink intercept.Sink, s scanner.Scanner, cookieInterval time.Duration) *StorageWatcher {
	if s.MinLength == 0 {
		s = scanner.Default
	}
	if cookieInterval <= 0 {
		cookieInterval = DefaultCookieInterval
	}
	return &StorageWatcher{sink: sink, scanner: s, interval: cookieInterval}
}

// ScanInitial scans local and session storage contents present at attach time.
func (w *StorageWatcher) ScanInitial(items []StorageItem) {
	for _, item := range items {
		w.OnItemWritten(item.Key, item.Value)
	}
}

// OnItemWritten scans the value of a storage write.
func (w *StorageWatcher) OnItemWritten(key, value string) {
	if value == "" {
		return
	}
	intercept.EmitScan(w.sink, w.scanner, value, types.ProvenanceStorage)
}

// ScanCookies scans cookie values. Names are never scanned.
func (w *StorageWatcher) ScanCookies(cookies []*network.Cookie) {
	for _, c := range cookies {
		if c == nil || c.Value == "" {
			continue
		}
		intercept.EmitScan(w.sink, w.scanner, c.Value, types.ProvenanceCookie)
	}
}

// RunCookies scans immediately and then on every interval until ctx is done.
func (w *StorageWatcher) RunCookies(ctx context.Context, src CookieSource) {
	w.pollCookies(ctx, src)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.pollCookies(ctx, src)
		case <-ctx.Done():
			return
		}
	}
}

func (w *StorageWatcher) pollCookies(ctx context.Context, src CookieSource) {
	cookies, err := src.Cookies(ctx)
	if err != nil {
		if ctx.Err() == nil {
			slog.Debug("Cookie scan failed", "error", err)
		}
		return
	}
	w.ScanCookies(cookies)
}
