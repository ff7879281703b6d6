package cdp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/domstorage"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/dgnsrekt/authtap/internal/browser"
	"github.com/dgnsrekt/authtap/internal/capture"
	"github.com/dgnsrekt/authtap/internal/config"
	"github.com/dgnsrekt/authtap/internal/types"
)

// ErrNoTabs is returned by Connect when nothing could be attached.
var ErrNoTabs = errors.New("no tabs attached")

// Client manages CDP connections to browser tabs.
type Client struct {
	cfg            *config.Config
	httpCapture    *capture.HTTPCapture
	storageWatcher *capture.StorageWatcher
	tabRegistry    *TabRegistry
	alloc          *browser.Allocator
	browserCtx     context.Context
	browserCancel  context.CancelFunc
	tabs           map[target.ID]*TabContext
	tabsMu         sync.RWMutex
	closeOnce      sync.Once
}

type TabContext struct {
	ID     target.ID
	URL    string
	ctx    context.Context
	cancel context.CancelFunc
}

func NewClient(cfg *config.Config, httpCapture *capture.HTTPCapture, storageWatcher *capture.StorageWatcher, tabRegistry *TabRegistry) *Client {
	return &Client{
		cfg:            cfg,
		httpCapture:    httpCapture,
		storageWatcher: storageWatcher,
		tabRegistry:    tabRegistry,
		tabs:           make(map[target.ID]*TabContext),
	}
}

// Connect attaches to matching tabs and opens the configured start tabs.
func (c *Client) Connect(ctx context.Context) error {
	alloc, err := browser.NewAllocator(context.Background(), browser.Config{
		CDPAddress: c.cfg.CDPAddress,
		CDPPort:    c.cfg.CDPPort,
		Launch:     c.cfg.LaunchBrowser,
		Headless:   c.cfg.Headless,
		ProfileDir: c.cfg.ProfileDir,
	})
	if err != nil {
		return fmt.Errorf("failed to create browser allocator: %w", err)
	}
	c.alloc = alloc
	slog.Info("Connecting to Chromium", "url", c.cfg.GetCDPURL(), "launched", alloc.Launched)

	c.browserCtx, c.browserCancel = chromedp.NewContext(alloc.Ctx)
	if err := chromedp.Run(c.browserCtx); err != nil {
		return fmt.Errorf("failed to connect to browser: %w", err)
	}
	var ownTarget target.ID
	if cc := chromedp.FromContext(c.browserCtx); cc != nil && cc.Target != nil {
		ownTarget = cc.Target.TargetID
	}

	targets, err := chromedp.Targets(c.browserCtx)
	if err != nil {
		return fmt.Errorf("failed to enumerate targets: %w", err)
	}

	slog.Info("Found browser targets", "count", len(targets))

	attachedCount := 0
	for _, t := range targets {
		if t.Type != "page" || t.TargetID == ownTarget {
			continue
		}
		if !c.matchesTabURL(t.URL) {
			slog.Debug("Skipping tab (url filter)", "url", t.URL)
			continue
		}
		if err := c.attachToTab(t.TargetID, t.URL); err != nil {
			slog.Error("Failed to attach to tab", "target_id", t.TargetID, "url", t.URL, "error", err)
			continue
		}
		attachedCount++
	}

	for _, url := range c.startURLs() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.OpenTab(url); err != nil {
			slog.Error("Failed to open start tab", "url", url, "error", err)
			continue
		}
		attachedCount++
	}

	if attachedCount == 0 {
		return fmt.Errorf("%w matching AUTHTAP_TAB_URL_FILTER=%q", ErrNoTabs, c.cfg.TabURLFilter)
	}

	slog.Info("Attached to tabs", "count", attachedCount, "tab_url_filter", c.cfg.TabURLFilter)
	return nil
}

func (c *Client) startURLs() []string {
	var urls []string
	if c.alloc != nil && c.alloc.Launched && c.cfg.StartURL != "" {
		urls = append(urls, c.cfg.StartURL)
	}
	if c.cfg.WindowsConfigPath == "" {
		return urls
	}
	windows, err := config.LoadWindows(c.cfg.WindowsConfigPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("Ignoring windows config", "path", c.cfg.WindowsConfigPath, "error", err)
		}
		return urls
	}
	return append(urls, windows.URLs()...)
}

// OpenTab creates a new tab, attaches before any traffic flows, then navigates it.
func (c *Client) OpenTab(url string) error {
	tabCtx, tabCancel := chromedp.NewContext(c.browserCtx)
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		return fmt.Errorf("failed to create tab: %w", err)
	}
	targetID := chromedp.FromContext(tabCtx).Target.TargetID

	if err := c.setupTab(targetID, "about:blank", tabCtx, tabCancel); err != nil {
		return err
	}

	navCtx, navCancel := context.WithTimeout(tabCtx, 30*time.Second)
	defer navCancel()
	if err := chromedp.Run(navCtx, chromedp.Navigate(url)); err != nil {
		slog.Warn("Failed to navigate new tab (continuing)", "target_id", targetID, "url", truncateURL(url), "error", err)
	}
	return nil
}

func (c *Client) attachToTab(targetID target.ID, url string) error {
	tabCtx, tabCancel := chromedp.NewContext(c.browserCtx, chromedp.WithTargetID(targetID))
	return c.setupTab(targetID, url, tabCtx, tabCancel)
}

func (c *Client) setupTab(targetID target.ID, url string, tabCtx context.Context, tabCancel context.CancelFunc) error {
	tabInfo, _, err := c.tabRegistry.Register(targetID, url)
	if err != nil {
		tabCancel()
		return fmt.Errorf("failed to register tab: %w", err)
	}

	tab := &TabContext{ID: targetID, URL: url, ctx: tabCtx, cancel: tabCancel}

	c.tabsMu.Lock()
	c.tabs[targetID] = tab
	c.tabsMu.Unlock()

	if err := chromedp.Run(tabCtx, network.Enable(), domstorage.Enable(), page.Enable()); err != nil {
		c.dropTab(targetID)
		return fmt.Errorf("failed to enable network/storage/page domains: %w", err)
	}

	slog.Info("Attached to tab", "target_id", targetID, "origin", tabInfo.Origin, "url", truncateURL(url))
	chromedp.ListenTarget(tabCtx, c.createEventHandler(targetID))

	go c.scanStorage(tabCtx, targetID, tabInfo.Origin)
	go c.storageWatcher.RunCookies(tabCtx, c.cookieSource(tabCtx))
	return nil
}

func (c *Client) dropTab(targetID target.ID) {
	c.tabsMu.Lock()
	tab, ok := c.tabs[targetID]
	delete(c.tabs, targetID)
	c.tabsMu.Unlock()
	if ok {
		tab.cancel()
	}
	c.tabRegistry.Remove(targetID)
}

func (c *Client) cookieSource(tabCtx context.Context) capture.CookieSource {
	return capture.CookieSourceFunc(func(ctx context.Context) ([]*network.Cookie, error) {
		var cookies []*network.Cookie
		err := chromedp.Run(tabCtx, chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			cookies, err = network.GetCookies().Do(ctx)
			return err
		}))
		return cookies, err
	})
}

// scanStorage feeds existing local and session storage of origin to the watcher.
func (c *Client) scanStorage(tabCtx context.Context, targetID target.ID, origin string) {
	if origin == "" {
		return
	}
	scanCtx, cancel := context.WithTimeout(tabCtx, 10*time.Second)
	defer cancel()

	var items []capture.StorageItem
	for _, local := range []bool{true, false} {
		id := &domstorage.StorageID{SecurityOrigin: origin, IsLocalStorage: local}
		var entries []domstorage.Item
		err := chromedp.Run(scanCtx, chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			entries, err = domstorage.GetDOMStorageItems(id).Do(ctx)
			return err
		}))
		if err != nil {
			slog.Debug("Failed to read DOM storage", "target_id", targetID, "origin", origin, "local", local, "error", err)
			continue
		}
		for _, entry := range entries {
			if len(entry) == 2 {
				items = append(items, capture.StorageItem{Key: entry[0], Value: entry[1]})
			}
		}
	}
	slog.Debug("Scanned DOM storage", "target_id", targetID, "origin", origin, "items", len(items))
	c.storageWatcher.ScanInitial(items)
}

func (c *Client) createEventHandler(targetID target.ID) func(ev interface{}) {
	tabID := string(targetID)
	return func(ev interface{}) {
		switch e := ev.(type) {
		case *page.EventFrameNavigated:
			if e.Frame.ParentID == "" {
				c.onNavigated(targetID, e.Frame.URL)
			}
		case *page.EventNavigatedWithinDocument:
			c.onNavigated(targetID, e.URL)
		case *network.EventRequestWillBeSent:
			c.httpCapture.OnRequestWillBeSent(tabID, e)
		case *network.EventResponseReceived:
			c.httpCapture.OnResponseReceived(tabID, e)
		case *network.EventLoadingFinished:
			c.httpCapture.OnLoadingFinished(tabID, e, c.bodyGetter(targetID, e.RequestID))
		case *network.EventLoadingFailed:
			c.httpCapture.OnLoadingFailed(tabID, e)
		case *domstorage.EventDomStorageItemAdded:
			c.storageWatcher.OnItemWritten(e.Key, e.NewValue)
		case *domstorage.EventDomStorageItemUpdated:
			c.storageWatcher.OnItemWritten(e.Key, e.NewValue)
		case *target.EventDetachedFromTarget:
			slog.Info("Tab detached", "tab_id", tabID)
		}
	}
}

func (c *Client) onNavigated(targetID target.ID, url string) {
	info, originChanged, err := c.tabRegistry.Register(targetID, url)
	if err != nil {
		return
	}
	slog.Info("Tab navigated", "tab_id", targetID, "origin", info.Origin, "url", truncateURL(url))
	if !originChanged {
		return
	}
	c.tabsMu.RLock()
	tab, ok := c.tabs[targetID]
	c.tabsMu.RUnlock()
	if ok {
		// CDP calls cannot run on the event goroutine.
		go c.scanStorage(tab.ctx, targetID, info.Origin)
	}
}

func (c *Client) bodyGetter(targetID target.ID, requestID network.RequestID) capture.BodyGetter {
	c.tabsMu.RLock()
	tab, ok := c.tabs[targetID]
	c.tabsMu.RUnlock()
	if !ok {
		return nil
	}
	tabCtx := tab.ctx
	return func() ([]byte, error) {
		bodyCtx, bodyCancel := context.WithTimeout(tabCtx, 10*time.Second)
		defer bodyCancel()

		var body []byte
		err := chromedp.Run(bodyCtx, chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			body, err = network.GetResponseBody(requestID).Do(ctx)
			return err
		}))
		return body, err
	}
}

func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.tabsMu.Lock()
		for _, tab := range c.tabs {
			tab.cancel()
		}
		c.tabs = make(map[target.ID]*TabContext)
		c.tabsMu.Unlock()

		if c.browserCancel != nil {
			c.browserCancel()
		}
		if c.alloc != nil {
			c.alloc.Cancel()
		}
		slog.Info("CDP client closed")
	})
	return nil
}

func (c *Client) GetTabCount() int {
	c.tabsMu.RLock()
	defer c.tabsMu.RUnlock()
	return len(c.tabs)
}

// Tabs lists attached tabs.
func (c *Client) Tabs() []types.TabInfo {
	return c.tabRegistry.List()
}

func (c *Client) matchesTabURL(url string) bool {
	if c.cfg.TabURLFilter == "" {
		return true
	}
	return strings.Contains(strings.ToLower(url), strings.ToLower(c.cfg.TabURLFilter))
}

func truncateURL(url string) string {
	if len(url) > 120 {
		return url[:120] + "..."
	}
	return url
}
