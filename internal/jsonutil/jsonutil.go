// Package jsonutil reads loosely shaped backend responses such as
// {"count": 3} or {"url": "..."} without declaring a struct for each.
package jsonutil

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Object decodes raw into a map, keeping numbers as json.Number so large ids
// survive.
func Object(raw []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("decoding json object: %w", err)
	}
	if m == nil {
		return nil, fmt.Errorf("decoding json object: got null")
	}
	return m, nil
}

// Int64FromAny converts the numeric representations produced by
// encoding/json to int64. Anything else yields 0.
func Int64FromAny(v any) int64 {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i
		}
		f, _ := n.Float64()
		return int64(f)
	case float64:
		return int64(n)
	case int:
		return int64(n)
	case int64:
		return n
	default:
		return 0
	}
}

// Int64FromMap extracts an integer by key.
func Int64FromMap(m map[string]any, key string) int64 {
	return Int64FromAny(m[key])
}

// StringFromMap extracts a string by key, or "" when absent or not a string.
func StringFromMap(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}
