package tracker

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Claim is one flattened claim for display.
type Claim struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Permission is one row of the authorization.permissions grid.
type Permission struct {
	RSName string            `json:"rsname"`
	Scopes []string          `json:"scopes,omitempty"`
	Extra  map[string]string `json:"extra,omitempty"`
}

// Flat lists the claims sorted by key with stringified values. The authorization claim is
// left out when it carries a permissions list, which Permissions renders instead.
func (d Decoded) Flat() []Claim {
	out := make([]Claim, 0, len(d.Claims))
	for k, v := range d.Claims {
		if k == "authorization" && hasPermissions(v) {
			continue
		}
		out = append(out, Claim{Key: k, Value: stringify(v)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Permissions returns the authorization.permissions grid, or nil.
func (d Decoded) Permissions() []Permission {
	authz, ok := d.Claims["authorization"].(map[string]any)
	if !ok {
		return nil
	}
	list, ok := authz["permissions"].([]any)
	if !ok {
		return nil
	}
	out := make([]Permission, 0, len(list))
	for _, item := range list {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		p := Permission{}
		for k, v := range entry {
			switch k {
			case "rsname":
				p.RSName = stringify(v)
			case "scopes":
				if scopes, ok := v.([]any); ok {
					for _, s := range scopes {
						p.Scopes = append(p.Scopes, stringify(s))
					}
				}
			default:
				if p.Extra == nil {
					p.Extra = make(map[string]string)
				}
				p.Extra[k] = stringify(v)
			}
		}
		out = append(out, p)
	}
	return out
}

func hasPermissions(v any) bool {
	m, ok := v.(map[string]any)
	if !ok {
		return false
	}
	_, ok = m["permissions"]
	return ok
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case nil:
		return "null"
	case bool, float64, int64, int:
		return fmt.Sprint(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}
