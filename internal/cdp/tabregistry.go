package cdp

import (
	"fmt"
	"net/url"
	"sort"
	"sync"

	"github.com/chromedp/cdproto/target"
	"github.com/dgnsrekt/authtap/internal/types"
)

// TabRegistry maps CDP target IDs to tab metadata.
type TabRegistry struct {
	tabs map[target.ID]*types.TabInfo
	mu   sync.RWMutex
}

func NewTabRegistry() *TabRegistry {
	return &TabRegistry{tabs: make(map[target.ID]*types.TabInfo)}
}

// Register records or updates a tab's URL. The returned bool reports an origin change.
func (r *TabRegistry) Register(targetID target.ID, rawURL string) (*types.TabInfo, bool, error) {
	origin, err := OriginOf(rawURL)
	if err != nil {
		return nil, false, err
	}

	info := &types.TabInfo{
		TargetID: string(targetID),
		URL:      rawURL,
		Origin:   origin,
	}

	r.mu.Lock()
	prev, existed := r.tabs[targetID]
	r.tabs[targetID] = info
	r.mu.Unlock()

	return info, !existed || prev.Origin != origin, nil
}

func (r *TabRegistry) Get(targetID target.ID) (*types.TabInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.tabs[targetID]
	return info, ok
}

func (r *TabRegistry) GetByStringID(tabID string) (*types.TabInfo, bool) {
	return r.Get(target.ID(tabID))
}

func (r *TabRegistry) Remove(targetID target.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tabs, targetID)
}

func (r *TabRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tabs)
}

// List returns copies of every registered tab ordered by target ID.
func (r *TabRegistry) List() []types.TabInfo {
	r.mu.RLock()
	out := make([]types.TabInfo, 0, len(r.tabs))
	for _, info := range r.tabs {
		out = append(out, *info)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].TargetID < out[j].TargetID })
	return out
}

// OriginOf returns scheme://host[:port] for http(s) URLs and "" for anything else.
func OriginOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse tab url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", nil
	}
	return u.Scheme + "://" + u.Host, nil
}
