package providers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// MaxSearchDepth bounds the recursive key search over provider documents.
const MaxSearchDepth = 50

// parseTime reads an RFC 3339 timestamp from obj[key]. Missing or malformed values yield nil.
func parseTime(obj map[string]any, key string) *time.Time {
	s, ok := obj[key].(string)
	if !ok || s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil
	}
	return &t
}

func stringField(obj map[string]any, key string) string {
	switch v := obj[key].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	default:
		return ""
	}
}

func ptr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// fallbackName is the "<type> <id>" name used when nothing better exists.
func fallbackName(itemType, id string) string {
	return strings.TrimSpace(itemType + " " + id)
}

// SearchKey walks data depth first and returns the first non-empty string
// stored under key. A map's own key is checked before its children, which
// are visited in sorted key order; lists are visited in order.
func SearchKey(data any, key string) (string, bool) {
	return searchKey(data, key, 0)
}

func searchKey(data any, key string, depth int) (string, bool) {
	if depth > MaxSearchDepth {
		return "", false
	}

	switch v := data.(type) {
	case map[string]any:
		if s, ok := v[key].(string); ok && s != "" {
			return s, true
		}
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if s, ok := searchKey(v[k], key, depth+1); ok {
				return s, true
			}
		}
	case []any:
		for _, item := range v {
			if s, ok := searchKey(item, key, depth+1); ok {
				return s, true
			}
		}
	}
	return "", false
}

// orderedObjects decodes raw as either a list of objects or an object whose
// values are objects. Object values are returned in document order.
func orderedObjects(raw json.RawMessage) ([]map[string]any, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	switch raw[0] {
	case '[':
		var list []any
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, err
		}
		return objects(list), nil
	case '{':
		dec := json.NewDecoder(bytes.NewReader(raw))
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		var out []map[string]any
		for dec.More() {
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			var value any
			if err := dec.Decode(&value); err != nil {
				return nil, err
			}
			if obj, ok := value.(map[string]any); ok {
				out = append(out, obj)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected a list or object, got %q", raw[:1])
	}
}
