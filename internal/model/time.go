package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// localLayouts are tried in order when decoding zone-less timestamps.
var localLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	time.RFC3339Nano,
}

// LocalTime is a wall-clock timestamp without a zone, the way the backend
// serializes its date-times. It decodes ISO strings (with or without a zone)
// and the [y,m,d,h,m,s,nanos] array form, and always encodes as an ISO string.
type LocalTime struct {
	time.Time
}

// MarshalJSON encodes the time as 2006-01-02T15:04:05.
func (t LocalTime) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Format("2006-01-02T15:04:05"))
}

// UnmarshalJSON accepts a string, an array of integers, or null.
func (t *LocalTime) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}

	if data[0] == '[' {
		var parts []int
		if err := json.Unmarshal(data, &parts); err != nil {
			return fmt.Errorf("decoding local time array: %w", err)
		}
		if len(parts) < 3 {
			return fmt.Errorf("local time array too short: %v", parts)
		}
		for len(parts) < 7 {
			parts = append(parts, 0)
		}
		t.Time = time.Date(parts[0], time.Month(parts[1]), parts[2], parts[3], parts[4], parts[5], parts[6], time.Local)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("decoding local time: %w", err)
	}
	for _, layout := range localLayouts {
		if parsed, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("unrecognized local time %q", s)
}
