package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Header is one name/value pair with the name case preserved.
type Header struct {
	Name  string
	Value string
}

// Headers is an ordered header mapping. Names keep their case; lookups ignore it.
type Headers []Header

// Get returns the first value whose name matches case-insensitively.
func (h Headers) Get(name string) (string, bool) {
	for _, kv := range h {
		if strings.EqualFold(kv.Name, name) {
			return kv.Value, true
		}
	}
	return "", false
}

// Set replaces the value of an existing header (matched case-insensitively) or appends it.
func (h Headers) Set(name, value string) Headers {
	for i, kv := range h {
		if strings.EqualFold(kv.Name, name) {
			h[i].Value = value
			return h
		}
	}
	return append(h, Header{Name: name, Value: value})
}

// Block serializes headers one per line as "name: value", like a raw response header block.
func (h Headers) Block() string {
	var b strings.Builder
	for _, kv := range h {
		b.WriteString(kv.Name)
		b.WriteString(": ")
		b.WriteString(kv.Value)
		b.WriteString("\r\n")
	}
	return b.String()
}

func (h Headers) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, kv := range h {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(kv.Name)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(kv.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object keeping key order.
func (h *Headers) UnmarshalJSON(data []byte) error {
	if string(bytes.TrimSpace(data)) == "null" {
		*h = nil
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("headers: expected object")
	}
	out := Headers{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := keyTok.(string)
		var raw any
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		out = append(out, Header{Name: key, Value: stringify(raw)})
	}
	*h = out
	return nil
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}
