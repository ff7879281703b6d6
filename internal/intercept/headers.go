package intercept

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/dgnsrekt/authtap/internal/types"
)

// NormalizeHeaders converts any accepted header shape into ordered Headers:
// http.Header or map[string][]string (descriptor), [][2]string (ordered pairs),
// map[string]string or map[string]any (plain mapping). Map keys are sorted since Go maps
// carry no order. Unknown shapes yield nil.
func NormalizeHeaders(v any) types.Headers {
	switch h := v.(type) {
	case nil:
		return nil
	case types.Headers:
		out := make(types.Headers, len(h))
		copy(out, h)
		return out
	case http.Header:
		return fromMultiMap(h)
	case map[string][]string:
		return fromMultiMap(h)
	case [][2]string:
		out := make(types.Headers, 0, len(h))
		for _, kv := range h {
			out = appendCombined(out, kv[0], kv[1])
		}
		return out
	case map[string]string:
		out := make(types.Headers, 0, len(h))
		for _, k := range sortedKeys(h) {
			out = append(out, types.Header{Name: k, Value: h[k]})
		}
		return out
	case map[string]any:
		out := make(types.Headers, 0, len(h))
		for _, k := range sortedKeys(h) {
			if s, ok := h[k].(string); ok {
				out = append(out, types.Header{Name: k, Value: s})
			} else if h[k] != nil {
				out = append(out, types.Header{Name: k, Value: fmt.Sprint(h[k])})
			}
		}
		return out
	default:
		return nil
	}
}

func fromMultiMap(h map[string][]string) types.Headers {
	out := make(types.Headers, 0, len(h))
	for _, k := range sortedKeys(h) {
		out = append(out, types.Header{Name: k, Value: strings.Join(h[k], ", ")})
	}
	return out
}

// appendCombined joins repeated names with ", " the way a header list does.
func appendCombined(h types.Headers, name, value string) types.Headers {
	for i := range h {
		if strings.EqualFold(h[i].Name, name) {
			h[i].Value = h[i].Value + ", " + value
			return h
		}
	}
	return append(h, types.Header{Name: name, Value: value})
}

// ParseHeaderBlock splits a raw "name: value" CRLF block. Malformed lines are skipped.
func ParseHeaderBlock(block string) types.Headers {
	var out types.Headers
	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimRight(line, "\r")
		name, value, ok := strings.Cut(line, ":")
		if !ok || strings.TrimSpace(name) == "" {
			continue
		}
		out = append(out, types.Header{Name: strings.TrimSpace(name), Value: strings.TrimSpace(value)})
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
