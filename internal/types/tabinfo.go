package types

// TabInfo holds metadata about an attached browser tab.
type TabInfo struct {
	TargetID string `json:"targetId"`
	URL      string `json:"url"`
	Origin   string `json:"origin"` // scheme://host[:port], used for DOM storage lookups
}
